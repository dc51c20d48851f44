package recorder

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
)

const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 44
	recordChecksumSize        = 4
)

var (
	recordMagic = [4]byte{'J', 'N', 'L', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

// RecordType tells what a record payload holds.
type RecordType uint16

const (
	// RecordCommand is an encoded journal command.
	RecordCommand RecordType = iota + 1
	// RecordBatchEnd closes a journal batch. It carries no payload.
	RecordBatchEnd
)

// Header is the fixed part of a record.
type Header struct {
	Type      RecordType
	Flags     uint16
	Seq       int64
	BatchID   int64
	Timestamp int64
}

func encodeHeader(dst []byte, header Header, payloadLen int) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(header.Type))
	binary.LittleEndian.PutUint16(dst[10:12], header.Flags)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(payloadLen))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(header.Seq))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(header.BatchID))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(header.Timestamp))
	binary.LittleEndian.PutUint32(dst[40:44], 0)
}

func checksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

func decodeRecordHeader(src []byte) (Header, uint32, error) {
	if len(src) < recordHeaderSize {
		return Header{}, 0, ErrInvalidRecordHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return Header{}, 0, ErrInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return Header{}, 0, ErrUnsupportedRecordVer
	}
	if headerSize := binary.LittleEndian.Uint16(src[6:8]); headerSize != recordHeaderSize {
		return Header{}, 0, ErrInvalidRecordHeaderSize
	}
	payloadLen := binary.LittleEndian.Uint32(src[12:16])
	h := Header{
		Type:      RecordType(binary.LittleEndian.Uint16(src[8:10])),
		Flags:     binary.LittleEndian.Uint16(src[10:12]),
		Seq:       int64(binary.LittleEndian.Uint64(src[16:24])),
		BatchID:   int64(binary.LittleEndian.Uint64(src[24:32])),
		Timestamp: int64(binary.LittleEndian.Uint64(src[32:40])),
	}
	return h, payloadLen, nil
}
