package tftp

import (
	"encoding/binary"
	"errors"
)

// ErrIllegalBuild is returned by Encode when a Packet value cannot be
// rendered to a valid wire datagram: a DATA payload over 512 bytes, a
// string that would push the datagram over the 2048-byte cap, or an opcode
// that Encode does not know how to render.
var ErrIllegalBuild = errors.New("tftp: illegal packet build")

// Encode renders p to its RFC 1350 wire representation. It enforces, per
// opcode, the section counts and size caps from the wire format table
// before returning bytes: a DATA payload may not exceed 512 bytes, and no
// encoded datagram may exceed 2048 bytes.
func Encode(p Packet) ([]byte, error) {
	var buf []byte
	switch p.Opcode {
	case RRQ, WRQ:
		if p.Filename == "" || p.Mode == "" {
			return nil, ErrIllegalBuild
		}
		buf = make([]byte, 0, 4+len(p.Filename)+len(p.Mode))
		buf = appendUint16(buf, uint16(p.Opcode))
		buf = append(buf, p.Filename...)
		buf = append(buf, 0)
		buf = append(buf, string(p.Mode)...)
		buf = append(buf, 0)

	case DATA:
		if len(p.Payload) > maxPayloadSize {
			return nil, ErrIllegalBuild
		}
		buf = make([]byte, 0, 4+len(p.Payload))
		buf = appendUint16(buf, uint16(p.Opcode))
		buf = appendUint16(buf, p.Block.Value())
		buf = append(buf, p.Payload...)

	case ACK:
		buf = make([]byte, 0, 4)
		buf = appendUint16(buf, uint16(p.Opcode))
		buf = appendUint16(buf, p.Block.Value())

	case ERROR:
		buf = make([]byte, 0, 5+len(p.ErrorMsg))
		buf = appendUint16(buf, uint16(p.Opcode))
		buf = appendUint16(buf, uint16(p.ErrorCode))
		buf = append(buf, p.ErrorMsg...)
		buf = append(buf, 0)

	default:
		return nil, ErrIllegalBuild
	}

	if len(buf) > maxDatagramSize {
		return nil, ErrIllegalBuild
	}
	return buf, nil
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}
