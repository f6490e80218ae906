// Package response assembles an RPC response frame from a request's
// parsed headers and a service's result bytes: a response header
// template is derived from the request once (source/destination
// swapped), the response payload (opcode echo plus result) follows it,
// and a deferred finalization pass fixes the IPv4/UDP lengths and
// checksum once the final payload size is known.
package response

import (
	"github.com/behrlich/flashkv/internal/constants"
	"github.com/behrlich/flashkv/internal/wire"
)

// Assembler builds response frames. It holds no per-request state and
// is safe for concurrent use by multiple cores.
type Assembler struct{}

// New returns a ready-to-use Assembler.
func New() *Assembler {
	return &Assembler{}
}

// Build constructs a full response frame for req/reqEnv given the
// service's result bytes. A response payload carries no service_kind
// or tenant_id: byte 0 is the opcode echoed back to the client, and
// the rest is the result. Bytes [1..9) of the request's raw payload —
// the client's reserved round-trip timestamp range — are copied
// verbatim onto the same range of the response payload, overwriting
// whatever the service produced there, so a service implementation
// can never accidentally clobber it.
func (a *Assembler) Build(req wire.HeaderSet, reqEnv wire.Envelope, result []byte) ([]byte, error) {
	payload := make([]byte, 0, 1+len(result))
	payload = append(payload, reqEnv.Opcode)
	payload = append(payload, result...)

	reqPayload := wire.AppendEnvelope(nil, reqEnv)
	copyReservedTimestamp(payload, reqPayload)

	respHdrs := wire.NewResponseTemplate(req)
	if err := wire.FinalizeLengths(&respHdrs, len(payload)); err != nil {
		return nil, err
	}
	return wire.SerializeResponse(respHdrs, payload)
}

func copyReservedTimestamp(dst, src []byte) {
	end := constants.ResponseTimestampOffset + constants.ResponseTimestampLen
	if len(src) < end || len(dst) < end {
		return
	}
	copy(dst[constants.ResponseTimestampOffset:end], src[constants.ResponseTimestampOffset:end])
}
