package service

import (
	"encoding/binary"
	"errors"

	"github.com/behrlich/flashkv/internal/store"
	"github.com/behrlich/flashkv/internal/wire"
)

// Opcodes registered under constants.ServiceKindMaster. Get/Put/Del/
// MultiGet are the basic KV operations; Invoke dispatches into a
// tenant-registered Extension by name, supplementing the basic ops with
// arbitrary stored-procedure-style calls.
const (
	OpcodeGet      uint8 = 1
	OpcodePut      uint8 = 2
	OpcodeDel      uint8 = 3
	OpcodeMultiGet uint8 = 4
	OpcodeInvoke   uint8 = 5
)

// ErrUnknownOpcode and ErrUnknownExtension are dispatch refusals: a
// request named an opcode or extension this core has no handler for.
// Both are programming/configuration faults, not malformed input.
var (
	ErrUnknownOpcode    = errors.New("service: unknown opcode")
	ErrUnknownExtension = errors.New("service: unknown extension")
)

// MasterService is the top-level RPC handler registered under
// constants.ServiceKindMaster.
type MasterService interface {
	Dispatch(ctx Context) ([]byte, error)
}

// Extension is a tenant-supplied stored procedure, invoked through the
// generic OpcodeInvoke opcode by name.
type Extension interface {
	Name() string
	Invoke(ctx Context, args wire.InvokeArgs) ([]byte, error)
}

// KVService is the reference MasterService: it serves the basic KV
// opcodes directly against a Store and routes OpcodeInvoke to a
// registered Extension.
type KVService struct {
	store      *store.Store
	extensions map[string]Extension
}

// NewKVService returns a KVService backed by st with no extensions
// registered.
func NewKVService(st *store.Store) *KVService {
	return &KVService{store: st, extensions: make(map[string]Extension)}
}

// Register adds ext to the set of extensions reachable via
// OpcodeInvoke, keyed by ext.Name(). Registering a second extension
// under the same name replaces the first.
func (s *KVService) Register(ext Extension) {
	s.extensions[ext.Name()] = ext
}

// Dispatch routes ctx.Opcode() to the matching handler.
func (s *KVService) Dispatch(ctx Context) ([]byte, error) {
	switch ctx.Opcode() {
	case OpcodeGet:
		return s.dispatchGet(ctx)
	case OpcodePut:
		return s.dispatchPut(ctx)
	case OpcodeDel:
		return s.dispatchDel(ctx)
	case OpcodeMultiGet:
		return s.dispatchMultiGet(ctx)
	case OpcodeInvoke:
		return s.dispatchInvoke(ctx)
	default:
		return nil, ErrUnknownOpcode
	}
}

// basicArgs decodes the common tableID(8 LE) + key(2-byte length
// prefix) + optional value(2-byte length prefix) layout shared by the
// basic KV opcodes.
func basicArgs(buf []byte, wantValue bool) (tableID uint64, key, value []byte, err error) {
	if len(buf) < 8+2 {
		return 0, nil, nil, errors.New("service: args too short")
	}
	tableID = binary.LittleEndian.Uint64(buf[0:8])
	off := 8
	keyLen := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2
	if off+keyLen > len(buf) {
		return 0, nil, nil, errors.New("service: args truncated at key")
	}
	key = buf[off : off+keyLen]
	off += keyLen

	if !wantValue {
		return tableID, key, nil, nil
	}
	if off+2 > len(buf) {
		return 0, nil, nil, errors.New("service: args truncated before value length")
	}
	valLen := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2
	if off+valLen > len(buf) {
		return 0, nil, nil, errors.New("service: args truncated at value")
	}
	value = buf[off : off+valLen]
	return tableID, key, value, nil
}

func (s *KVService) dispatchGet(ctx Context) ([]byte, error) {
	tableID, key, _, err := basicArgs(ctx.Args(), false)
	if err != nil {
		return nil, err
	}
	v, ok := ctx.Get(tableID, key)
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (s *KVService) dispatchPut(ctx Context) ([]byte, error) {
	tableID, key, value, err := basicArgs(ctx.Args(), true)
	if err != nil {
		return nil, err
	}
	ctx.Put(tableID, key, value)
	return nil, nil
}

func (s *KVService) dispatchDel(ctx Context) ([]byte, error) {
	tableID, key, _, err := basicArgs(ctx.Args(), false)
	if err != nil {
		return nil, err
	}
	ctx.Del(tableID, key)
	return nil, nil
}

func (s *KVService) dispatchMultiGet(ctx Context) ([]byte, error) {
	buf := ctx.Args()
	if len(buf) < 8+2 {
		return nil, errors.New("service: multiget args too short")
	}
	tableID := binary.LittleEndian.Uint64(buf[0:8])
	count := int(binary.LittleEndian.Uint16(buf[8:10]))
	off := 10

	keys := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if off+2 > len(buf) {
			return nil, errors.New("service: multiget args truncated")
		}
		kl := int(binary.LittleEndian.Uint16(buf[off : off+2]))
		off += 2
		if off+kl > len(buf) {
			return nil, errors.New("service: multiget args truncated at key")
		}
		keys = append(keys, buf[off:off+kl])
		off += kl
	}

	values, err := ctx.MultiGet(tableID, keys)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 2)
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(len(values)))
	out = append(out, lenBuf...)
	for _, v := range values {
		binary.LittleEndian.PutUint16(lenBuf, uint16(len(v)))
		out = append(out, lenBuf...)
		out = append(out, v...)
	}
	return out, nil
}

func (s *KVService) dispatchInvoke(ctx Context) ([]byte, error) {
	args, err := wire.DecodeInvokeArgs(ctx.Args())
	if err != nil {
		return nil, err
	}
	ext, ok := s.extensions[args.ExtensionName]
	if !ok {
		return nil, ErrUnknownExtension
	}
	return ext.Invoke(ctx, args)
}
