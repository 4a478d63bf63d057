// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package geoip

import (
	"fmt"
	"math"
	"math/big"
)

// decoder decodes the MMDB self-describing data section.
//
// Decoding is a pure offset -> (value, nextOffset) function with no cursor
// state: pointer indirection jumps around the section nonlinearly, and a
// pointer must return control to just past its own bytes, not past the
// pointed-to value's bytes.
type decoder struct {
	buffer []byte
}

// Data-section type tags. Tags 0-7 fit the control byte's 3-bit type field;
// an extended escape byte carries the rest.
const (
	typeExtended  = 0
	typePointer   = 1
	typeString    = 2
	typeDouble    = 3
	typeBytes     = 4
	typeUint16    = 5
	typeUint32    = 6
	typeMap       = 7
	typeInt32     = 8
	typeUint64    = 9
	typeUint128   = 10
	typeArray     = 11
	typeContainer = 12
	typeEndMarker = 13
	typeBool      = 14
	typeFloat32   = 15
)

// decode reads one value starting at offset and returns it along with the
// offset of the first byte past the value's encoding.
func (d *decoder) decode(offset uint) (interface{}, uint, error) {
	ctrl, offset, err := d.readByte(offset)
	if err != nil {
		return nil, 0, err
	}

	typeNum := uint(ctrl >> 5)

	// Pointers encode their size class in bits 3-4 of the control byte and
	// are resolved before ordinary size handling.
	if typeNum == typePointer {
		target, next, err := d.decodePointerTarget(ctrl, offset)
		if err != nil {
			return nil, 0, err
		}
		value, _, err := d.decode(target)
		if err != nil {
			return nil, 0, err
		}
		return value, next, nil
	}

	if typeNum == typeExtended {
		ext, newOffset, err := d.readByte(offset)
		if err != nil {
			return nil, 0, err
		}
		typeNum = uint(ext) + 7
		offset = newOffset
	}

	size, offset, err := d.decodeSize(ctrl, offset)
	if err != nil {
		return nil, 0, err
	}

	return d.decodeValue(typeNum, size, offset)
}

// decodePointerTarget resolves a pointer control byte to the absolute target
// offset within the data section and the offset past the pointer's bytes.
func (d *decoder) decodePointerTarget(ctrl byte, offset uint) (target, next uint, err error) {
	sizeClass := uint((ctrl >> 3) & 0x3)
	valueBits := uint(ctrl & 0x7)

	bytesNeeded := sizeClass + 1
	raw, next, err := d.readBytes(offset, bytesNeeded)
	if err != nil {
		return 0, 0, err
	}

	var value uint
	switch sizeClass {
	case 0:
		value = valueBits<<8 | uint(raw[0])
	case 1:
		value = (valueBits<<16 | uint(raw[0])<<8 | uint(raw[1])) + 2048
	case 2:
		value = (valueBits<<24 | uint(raw[0])<<16 | uint(raw[1])<<8 | uint(raw[2])) + 526336
	case 3:
		// 4-byte pointers ignore the control byte's value bits.
		value = uint(raw[0])<<24 | uint(raw[1])<<16 | uint(raw[2])<<8 | uint(raw[3])
	}

	return value, next, nil
}

// decodeSize extracts the payload size from the control byte, consuming
// follow-on size bytes for the three escape values.
func (d *decoder) decodeSize(ctrl byte, offset uint) (uint, uint, error) {
	size := uint(ctrl & 0x1f)
	switch size {
	case 29:
		b, next, err := d.readByte(offset)
		if err != nil {
			return 0, 0, err
		}
		return 29 + uint(b), next, nil
	case 30:
		raw, next, err := d.readBytes(offset, 2)
		if err != nil {
			return 0, 0, err
		}
		return 285 + uint(raw[0])<<8 + uint(raw[1]), next, nil
	case 31:
		raw, next, err := d.readBytes(offset, 3)
		if err != nil {
			return 0, 0, err
		}
		return 65821 + uint(raw[0])<<16 + uint(raw[1])<<8 + uint(raw[2]), next, nil
	default:
		return size, offset, nil
	}
}

// decodeValue decodes a non-pointer value of the given type and size.
func (d *decoder) decodeValue(typeNum, size, offset uint) (interface{}, uint, error) {
	switch typeNum {
	case typeString:
		raw, next, err := d.readBytes(offset, size)
		if err != nil {
			return nil, 0, err
		}
		return string(raw), next, nil

	case typeDouble:
		if size != 8 {
			return nil, 0, fmt.Errorf("%w: double with size %d", ErrInvalidDatabase, size)
		}
		raw, next, err := d.readBytes(offset, 8)
		if err != nil {
			return nil, 0, err
		}
		return math.Float64frombits(beUint64(raw)), next, nil

	case typeBytes:
		raw, next, err := d.readBytes(offset, size)
		if err != nil {
			return nil, 0, err
		}
		out := make([]byte, size)
		copy(out, raw)
		return out, next, nil

	case typeUint16, typeUint32, typeUint64:
		maxBytes := map[uint]uint{typeUint16: 2, typeUint32: 4, typeUint64: 8}[typeNum]
		if size > maxBytes {
			return nil, 0, fmt.Errorf("%w: uint with size %d exceeds %d bytes", ErrInvalidDatabase, size, maxBytes)
		}
		raw, next, err := d.readBytes(offset, size)
		if err != nil {
			return nil, 0, err
		}
		var value uint64
		for _, b := range raw {
			value = value<<8 | uint64(b)
		}
		return value, next, nil

	case typeUint128:
		if size > 16 {
			return nil, 0, fmt.Errorf("%w: uint128 with size %d", ErrInvalidDatabase, size)
		}
		raw, next, err := d.readBytes(offset, size)
		if err != nil {
			return nil, 0, err
		}
		return new(big.Int).SetBytes(raw), next, nil

	case typeInt32:
		if size > 4 {
			return nil, 0, fmt.Errorf("%w: int32 with size %d", ErrInvalidDatabase, size)
		}
		raw, next, err := d.readBytes(offset, size)
		if err != nil {
			return nil, 0, err
		}
		var value int32
		for _, b := range raw {
			value = value<<8 | int32(b)
		}
		return value, next, nil

	case typeMap:
		return d.decodeMap(size, offset)

	case typeArray:
		return d.decodeArray(size, offset)

	case typeBool:
		// The size field carries the value; no payload bytes follow.
		return size != 0, offset, nil

	case typeFloat32:
		if size != 4 {
			return nil, 0, fmt.Errorf("%w: float32 with size %d", ErrInvalidDatabase, size)
		}
		raw, next, err := d.readBytes(offset, 4)
		if err != nil {
			return nil, 0, err
		}
		bits := uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])
		return math.Float32frombits(bits), next, nil

	default:
		return nil, 0, fmt.Errorf("%w: tag %d", ErrUnknownType, typeNum)
	}
}

// decodeMap decodes size key-value pairs. Keys are always strings (possibly
// behind pointers).
func (d *decoder) decodeMap(size, offset uint) (map[string]interface{}, uint, error) {
	result := make(map[string]interface{}, size)

	for i := uint(0); i < size; i++ {
		rawKey, next, err := d.decode(offset)
		if err != nil {
			return nil, 0, err
		}
		key, ok := rawKey.(string)
		if !ok {
			return nil, 0, fmt.Errorf("%w: map key is %T, not string", ErrInvalidDatabase, rawKey)
		}

		value, next, err := d.decode(next)
		if err != nil {
			return nil, 0, err
		}

		result[key] = value
		offset = next
	}

	return result, offset, nil
}

// decodeArray decodes size consecutive values.
func (d *decoder) decodeArray(size, offset uint) ([]interface{}, uint, error) {
	result := make([]interface{}, 0, size)

	for i := uint(0); i < size; i++ {
		value, next, err := d.decode(offset)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, value)
		offset = next
	}

	return result, offset, nil
}

func (d *decoder) readByte(offset uint) (byte, uint, error) {
	if offset >= uint(len(d.buffer)) {
		return 0, 0, ErrTruncatedRead
	}
	return d.buffer[offset], offset + 1, nil
}

func (d *decoder) readBytes(offset, n uint) ([]byte, uint, error) {
	end := offset + n
	if end > uint(len(d.buffer)) || end < offset {
		return nil, 0, ErrTruncatedRead
	}
	return d.buffer[offset:end], end, nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
