// Package wire defines the on-wire RPC envelope and response frame
// header templates exchanged over Ethernet/IPv4/UDP, using
// google/gopacket's layer types for parsing and serialization rather
// than hand-rolled struct-packing.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/behrlich/flashkv/internal/constants"
)

// ErrEnvelopeTooShort is returned when a buffer is smaller than the
// fixed envelope header.
var ErrEnvelopeTooShort = errors.New("wire: envelope shorter than header")

// Envelope is the RPC request/response envelope carried as the UDP
// payload: a one-byte service kind, a one-byte opcode, a little-endian
// tenant ID, and an opaque body.
type Envelope struct {
	ServiceKind uint8
	Opcode      uint8
	TenantID    uint32
	Body        []byte
}

// DecodeEnvelope parses buf in place; Body aliases buf's backing array
// and must not outlive the caller's ownership of buf.
func DecodeEnvelope(buf []byte) (Envelope, error) {
	if len(buf) < constants.EnvelopeHeaderLen {
		return Envelope{}, ErrEnvelopeTooShort
	}
	return Envelope{
		ServiceKind: buf[0],
		Opcode:      buf[1],
		TenantID:    binary.LittleEndian.Uint32(buf[2:6]),
		Body:        buf[constants.EnvelopeHeaderLen:],
	}, nil
}

// EncodeEnvelope writes e into dst, which must be at least
// constants.EnvelopeHeaderLen+len(e.Body) bytes, and returns the number
// of bytes written.
func EncodeEnvelope(dst []byte, e Envelope) (int, error) {
	need := constants.EnvelopeHeaderLen + len(e.Body)
	if len(dst) < need {
		return 0, fmt.Errorf("wire: dst too small for envelope: have %d need %d", len(dst), need)
	}
	dst[0] = e.ServiceKind
	dst[1] = e.Opcode
	binary.LittleEndian.PutUint32(dst[2:6], e.TenantID)
	copy(dst[constants.EnvelopeHeaderLen:], e.Body)
	return need, nil
}

// AppendEnvelope grows dst by appending the encoded envelope, returning
// the extended slice.
func AppendEnvelope(dst []byte, e Envelope) []byte {
	hdr := make([]byte, constants.EnvelopeHeaderLen)
	hdr[0] = e.ServiceKind
	hdr[1] = e.Opcode
	binary.LittleEndian.PutUint32(hdr[2:6], e.TenantID)
	dst = append(dst, hdr...)
	dst = append(dst, e.Body...)
	return dst
}

// InvokeArgs is the body layout for the MasterService's generic Invoke
// opcode, supplementing the basic get/put/multiget opcodes with
// arbitrary tenant extension calls. Layout: table_id (8 bytes LE),
// extension name (1-byte length prefix + bytes), key (2-byte length
// prefix + bytes), value (2-byte length prefix + bytes, may be empty).
// Grounded on the invoke-RPC body splinter's client builds in
// db/src/bin/client/tao.rs before handing the buffer to the transport.
type InvokeArgs struct {
	TableID       uint64
	ExtensionName string
	Key           []byte
	Value         []byte
}

// Encode serializes args as an Envelope body.
func (a InvokeArgs) Encode() ([]byte, error) {
	if len(a.ExtensionName) > 255 {
		return nil, fmt.Errorf("wire: extension name too long: %d bytes", len(a.ExtensionName))
	}
	if len(a.Key) > 0xFFFF || len(a.Value) > 0xFFFF {
		return nil, errors.New("wire: key or value exceeds 65535 bytes")
	}
	buf := make([]byte, 0, 8+1+len(a.ExtensionName)+2+len(a.Key)+2+len(a.Value))
	tid := make([]byte, 8)
	binary.LittleEndian.PutUint64(tid, a.TableID)
	buf = append(buf, tid...)
	buf = append(buf, byte(len(a.ExtensionName)))
	buf = append(buf, a.ExtensionName...)

	kl := make([]byte, 2)
	binary.LittleEndian.PutUint16(kl, uint16(len(a.Key)))
	buf = append(buf, kl...)
	buf = append(buf, a.Key...)

	vl := make([]byte, 2)
	binary.LittleEndian.PutUint16(vl, uint16(len(a.Value)))
	buf = append(buf, vl...)
	buf = append(buf, a.Value...)
	return buf, nil
}

// DecodeInvokeArgs parses a body previously produced by Encode. It
// allocates fresh Key/Value slices rather than aliasing buf, since
// InvokeArgs is expected to outlive the request's packet buffer across
// the task's lifetime.
func DecodeInvokeArgs(buf []byte) (InvokeArgs, error) {
	if len(buf) < 8+1 {
		return InvokeArgs{}, errors.New("wire: invoke body too short")
	}
	tableID := binary.LittleEndian.Uint64(buf[0:8])
	off := 8
	nameLen := int(buf[off])
	off++
	if off+nameLen+2 > len(buf) {
		return InvokeArgs{}, errors.New("wire: invoke body truncated at extension name")
	}
	name := string(buf[off : off+nameLen])
	off += nameLen

	keyLen := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2
	if off+keyLen+2 > len(buf) {
		return InvokeArgs{}, errors.New("wire: invoke body truncated at key")
	}
	key := append([]byte(nil), buf[off:off+keyLen]...)
	off += keyLen

	valLen := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2
	if off+valLen > len(buf) {
		return InvokeArgs{}, errors.New("wire: invoke body truncated at value")
	}
	val := append([]byte(nil), buf[off:off+valLen]...)

	return InvokeArgs{TableID: tableID, ExtensionName: name, Key: key, Value: val}, nil
}
