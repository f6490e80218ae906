// Package service implements the Context a tenant extension runs
// against, and the reference MasterService that dispatches RPC opcodes
// either to the built-in KV operations or to a tenant-registered
// extension.
package service

import (
	"errors"

	"github.com/behrlich/flashkv/internal/store"
)

// ErrQuotaExceeded is returned by Context.Alloc once a request has
// exhausted its per-request allocation quota. It is surfaced to the
// extension rather than silently truncating the allocation, per the
// quota-exhaustion error kind.
var ErrQuotaExceeded = errors.New("service: context allocation quota exceeded")

// ErrMultiGetMiss is returned by MultiGet when any requested key is
// absent; the caller gets no partial result.
var ErrMultiGetMiss = errors.New("service: multiget key not found")

// Context is the external-collaborator interface a tenant extension (or
// a built-in KV opcode handler) uses to read and write the store, bound
// allocations, and read the request's opcode and argument bytes.
type Context interface {
	// Opcode returns the opcode the RPC envelope carried.
	Opcode() uint8

	// TenantID returns the tenant this request is scoped to. Every
	// store access through this Context is implicitly scoped to this
	// tenant; an extension cannot address another tenant's tables.
	TenantID() uint32

	// Args returns the envelope body following the fixed header,
	// unparsed.
	Args() []byte

	// Get reads one key from tableID.
	Get(tableID uint64, key []byte) ([]byte, bool)

	// MultiGet reads several keys from tableID in one call. Returns
	// ErrMultiGetMiss if any key is absent.
	MultiGet(tableID uint64, keys [][]byte) ([][]byte, error)

	// Put writes key/value into tableID.
	Put(tableID uint64, key, value []byte)

	// Del removes key from tableID, reporting whether it was present.
	Del(tableID uint64, key []byte) bool

	// Alloc returns a zeroed buffer of n bytes charged against this
	// request's allocation quota. Returns ErrQuotaExceeded once the
	// quota is exhausted.
	Alloc(n int) ([]byte, error)

	// Respond records the response body for this request. Calling it
	// more than once replaces the previously recorded body.
	Respond(body []byte)

	// Response returns the body recorded by Respond, and whether
	// Respond has been called yet.
	Response() ([]byte, bool)
}

// RequestContext is the reference Context implementation backing one
// in-flight request task.
type RequestContext struct {
	opcode   uint8
	tenantID uint32
	args     []byte
	store    *store.Store

	quota int
	used  int

	response  []byte
	responded bool
}

// NewRequestContext returns a Context scoped to tenantID, bound to st,
// with the given allocation quota in bytes.
func NewRequestContext(opcode uint8, tenantID uint32, args []byte, st *store.Store, quota int) *RequestContext {
	return &RequestContext{
		opcode:   opcode,
		tenantID: tenantID,
		args:     args,
		store:    st,
		quota:    quota,
	}
}

func (c *RequestContext) Opcode() uint8    { return c.opcode }
func (c *RequestContext) TenantID() uint32 { return c.tenantID }
func (c *RequestContext) Args() []byte     { return c.args }

func (c *RequestContext) Get(tableID uint64, key []byte) ([]byte, bool) {
	return c.store.Table(c.tenantID, tableID).Get(key)
}

func (c *RequestContext) MultiGet(tableID uint64, keys [][]byte) ([][]byte, error) {
	tbl := c.store.Table(c.tenantID, tableID)
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		v, ok := tbl.Get(k)
		if !ok {
			return nil, ErrMultiGetMiss
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *RequestContext) Put(tableID uint64, key, value []byte) {
	c.store.Table(c.tenantID, tableID).Put(key, value)
}

func (c *RequestContext) Del(tableID uint64, key []byte) bool {
	return c.store.Table(c.tenantID, tableID).Delete(key)
}

func (c *RequestContext) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.New("service: negative allocation size")
	}
	if c.used+n > c.quota {
		return nil, ErrQuotaExceeded
	}
	c.used += n
	return make([]byte, n), nil
}

func (c *RequestContext) Respond(body []byte) {
	c.response = body
	c.responded = true
}

func (c *RequestContext) Response() ([]byte, bool) {
	return c.response, c.responded
}
