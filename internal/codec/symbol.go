package codec

import (
	"encoding/binary"

	"exchange/internal/schema"
)

const (
	SymbolSpecPayloadSize = 64
	symbolBatchHeaderSize = 4
)

// EncodeSymbolSpec serializes a symbol spec into a fixed-size payload.
func EncodeSymbolSpec(dst []byte, spec schema.SymbolSpec) []byte {
	if cap(dst) < SymbolSpecPayloadSize {
		dst = make([]byte, SymbolSpecPayloadSize)
	} else {
		dst = dst[:SymbolSpecPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(spec.ID))
	dst[4] = byte(spec.Type)
	dst[5], dst[6], dst[7] = 0, 0, 0
	binary.LittleEndian.PutUint32(dst[8:12], uint32(spec.BaseCurrency))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(spec.QuoteCurrency))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(spec.BaseScaleK))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(spec.QuoteScaleK))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(spec.TakerFee))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(spec.MakerFee))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(spec.MarginBuy))
	binary.LittleEndian.PutUint64(dst[56:64], uint64(spec.MarginSell))

	return dst
}

// DecodeSymbolSpec parses a fixed-size symbol spec payload.
func DecodeSymbolSpec(src []byte) (schema.SymbolSpec, bool) {
	if len(src) < SymbolSpecPayloadSize {
		return schema.SymbolSpec{}, false
	}
	return schema.SymbolSpec{
		ID:            schema.SymbolID(int32(binary.LittleEndian.Uint32(src[0:4]))),
		Type:          schema.SymbolType(src[4]),
		BaseCurrency:  schema.Currency(int32(binary.LittleEndian.Uint32(src[8:12]))),
		QuoteCurrency: schema.Currency(int32(binary.LittleEndian.Uint32(src[12:16]))),
		BaseScaleK:    int64(binary.LittleEndian.Uint64(src[16:24])),
		QuoteScaleK:   int64(binary.LittleEndian.Uint64(src[24:32])),
		TakerFee:      int64(binary.LittleEndian.Uint64(src[32:40])),
		MakerFee:      int64(binary.LittleEndian.Uint64(src[40:48])),
		MarginBuy:     int64(binary.LittleEndian.Uint64(src[48:56])),
		MarginSell:    int64(binary.LittleEndian.Uint64(src[56:64])),
	}, true
}

// EncodeSymbolBatch serializes a list of symbol specs as the opaque
// payload of a binary data command.
func EncodeSymbolBatch(dst []byte, specs []schema.SymbolSpec) []byte {
	size := symbolBatchHeaderSize + len(specs)*SymbolSpecPayloadSize
	if cap(dst) < size {
		dst = make([]byte, size)
	} else {
		dst = dst[:size]
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(len(specs)))
	for i, spec := range specs {
		off := symbolBatchHeaderSize + i*SymbolSpecPayloadSize
		EncodeSymbolSpec(dst[off:off+SymbolSpecPayloadSize], spec)
	}
	return dst
}

// DecodeSymbolBatch parses a binary data payload into symbol specs.
func DecodeSymbolBatch(src []byte) ([]schema.SymbolSpec, bool) {
	if len(src) < symbolBatchHeaderSize {
		return nil, false
	}
	count := int(binary.LittleEndian.Uint32(src[0:4]))
	if len(src) != symbolBatchHeaderSize+count*SymbolSpecPayloadSize {
		return nil, false
	}
	specs := make([]schema.SymbolSpec, 0, count)
	for i := 0; i < count; i++ {
		off := symbolBatchHeaderSize + i*SymbolSpecPayloadSize
		spec, ok := DecodeSymbolSpec(src[off : off+SymbolSpecPayloadSize])
		if !ok {
			return nil, false
		}
		specs = append(specs, spec)
	}
	return specs, true
}
