// Package constants holds tunable defaults for the dispatch and scheduling
// core. Values mirror the defaults called out in the design: a 32-packet
// receive/transmit batch, a 10 KiB per-context allocation quota, and the
// RPC envelope layout.
package constants

import "net"

// Batching and queue defaults.
const (
	// DefaultBatchSize is the default burst size N for NIC receive/transmit
	// and for classifier/service-adapter batches.
	DefaultBatchSize = 32

	// DefaultRunQueueCapacity is the initial backing capacity for a
	// Server Core's run-queue. The queue grows past this as needed.
	DefaultRunQueueCapacity = 256
)

// Wire format defaults.
const (
	// DefaultEthertype is the configured Ethertype accepted by the L2
	// classifier stage (IPv4).
	DefaultEthertype = 0x0800

	// IPProtocolUDP is the only L3 protocol this core accepts.
	IPProtocolUDP = 0x11

	// MinIPv4HeaderLen is the minimum accepted IPv4 total length in bytes.
	MinIPv4HeaderLen = 20

	// MinUDPHeaderLen is the minimum accepted UDP header length in bytes.
	MinUDPHeaderLen = 8

	// EnvelopeHeaderLen is the fixed portion of the RPC envelope preceding
	// the opaque body: service_kind (1) + opcode (1) + tenant_id (4).
	EnvelopeHeaderLen = 6

	// ServiceKindMaster is the only registered service kind.
	ServiceKindMaster = uint8(1)

	// ResponseTimestampOffset and ResponseTimestampLen mark the byte range
	// within a response payload reserved for the client's latency
	// timestamp; the core must never write into this range itself.
	ResponseTimestampOffset = 1
	ResponseTimestampLen    = 8
)

// DefaultOwnIP is the server's own IPv4 address, used by the L3
// classifier stage to drop frames not addressed to this host. A real
// deployment supplies its bound address through Params.OwnIP; this
// value only stands in where nothing else is configured.
var DefaultOwnIP = net.IPv4(10, 0, 0, 2)

// Execution context defaults.
const (
	// DefaultContextAllocQuota is the default per-request allocation quota
	// (in bytes) granted to a task's execution Context. Exposed as
	// configuration per the spec's Open Questions rather than hardcoded.
	DefaultContextAllocQuota = 10 * 1024
)

// Telemetry defaults.
const (
	// TelemetryResponseInterval is how many transmitted responses elapse
	// between throughput log lines.
	TelemetryResponseInterval = 1_000_000
)
