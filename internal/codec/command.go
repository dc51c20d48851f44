package codec

import (
	"encoding/binary"

	"exchange/internal/schema"
)

// CommandPayloadSize is the fixed part of an encoded command. The binary
// data payload follows it.
const CommandPayloadSize = 92

// EncodeCommand serializes the input fields of a command. Result fields
// are not part of the journal.
func EncodeCommand(dst []byte, cmd *schema.Command) []byte {
	size := CommandPayloadSize + len(cmd.Data)
	if cap(dst) < size {
		dst = make([]byte, size)
	} else {
		dst = dst[:size]
	}

	binary.LittleEndian.PutUint64(dst[0:8], uint64(cmd.Seq))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(cmd.Kind))
	dst[10] = byte(cmd.Side)
	dst[11] = byte(cmd.OrderType)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(cmd.Symbol))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(cmd.UID))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(cmd.OrderID))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(cmd.Price))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(cmd.Size))
	binary.LittleEndian.PutUint32(dst[48:52], uint32(cmd.Currency))
	binary.LittleEndian.PutUint32(dst[52:56], uint32(cmd.TransferID))
	binary.LittleEndian.PutUint64(dst[56:64], uint64(cmd.TransactionID))
	binary.LittleEndian.PutUint64(dst[64:72], uint64(cmd.Amount))
	binary.LittleEndian.PutUint64(dst[72:80], uint64(cmd.StateID))
	binary.LittleEndian.PutUint64(dst[80:88], uint64(cmd.Timestamp))
	binary.LittleEndian.PutUint32(dst[88:92], uint32(len(cmd.Data)))
	copy(dst[CommandPayloadSize:], cmd.Data)

	return dst
}

// DecodeCommand parses an encoded command. The returned data slice is a
// copy and does not alias src.
func DecodeCommand(src []byte) (schema.Command, bool) {
	if len(src) < CommandPayloadSize {
		return schema.Command{}, false
	}
	dataLen := int(binary.LittleEndian.Uint32(src[88:92]))
	if len(src) != CommandPayloadSize+dataLen {
		return schema.Command{}, false
	}
	cmd := schema.Command{
		Seq:           int64(binary.LittleEndian.Uint64(src[0:8])),
		Kind:          schema.CommandKind(binary.LittleEndian.Uint16(src[8:10])),
		Side:          schema.Side(src[10]),
		OrderType:     schema.OrderType(src[11]),
		Symbol:        schema.SymbolID(int32(binary.LittleEndian.Uint32(src[12:16]))),
		UID:           schema.UserID(int64(binary.LittleEndian.Uint64(src[16:24]))),
		OrderID:       schema.OrderID(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Price:         schema.Price(int64(binary.LittleEndian.Uint64(src[32:40]))),
		Size:          schema.Size(int64(binary.LittleEndian.Uint64(src[40:48]))),
		Currency:      schema.Currency(int32(binary.LittleEndian.Uint32(src[48:52]))),
		TransferID:    int32(binary.LittleEndian.Uint32(src[52:56])),
		TransactionID: int64(binary.LittleEndian.Uint64(src[56:64])),
		Amount:        int64(binary.LittleEndian.Uint64(src[64:72])),
		StateID:       int64(binary.LittleEndian.Uint64(src[72:80])),
		Timestamp:     int64(binary.LittleEndian.Uint64(src[80:88])),
	}
	if !cmd.Kind.Valid() {
		return schema.Command{}, false
	}
	if dataLen > 0 {
		cmd.Data = append([]byte(nil), src[CommandPayloadSize:]...)
	}
	return cmd, true
}
