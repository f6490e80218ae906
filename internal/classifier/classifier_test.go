package classifier

import (
	"net"
	"testing"

	"github.com/behrlich/flashkv/internal/driver"
	"github.com/behrlich/flashkv/internal/packet"
	"github.com/behrlich/flashkv/internal/wire"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	drops map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{drops: map[string]int{}}
}

func (o *countingObserver) ObserveRequest(uint32, uint64, bool) {}
func (o *countingObserver) ObserveDrop(reason string)           { o.drops[reason]++ }
func (o *countingObserver) ObserveSteal(string, int)            {}
func (o *countingObserver) ObserveQueueDepth(int, uint32)       {}

func validFrame(t *testing.T, body []byte) []byte {
	t.Helper()
	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{1, 2, 3, 4, 5, 6},
		DstMAC:       net.HardwareAddr{6, 5, 4, 3, 2, 1},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	udp := layers.UDP{SrcPort: 1111, DstPort: 2222}
	require.NoError(t, udp.SetNetworkLayerForChecksum(&ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, &eth, &ip, &udp, gopacket.Payload(body)))
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}

func envelopeBody(t *testing.T) []byte {
	t.Helper()
	dst := make([]byte, 64)
	n, err := wire.EncodeEnvelope(dst, wire.Envelope{ServiceKind: 1, Opcode: 2, TenantID: 9, Body: []byte("hi")})
	require.NoError(t, err)
	return dst[:n]
}

func ownTestIP() net.IP { return net.IPv4(10, 0, 0, 2) }

func TestBatchAcceptsWellFormedPacket(t *testing.T) {
	frame := validFrame(t, envelopeBody(t))
	p := packet.New(driver.NewMemBuffer(frame))
	obs := newCountingObserver()

	survivors := Batch([]*packet.Packet{p}, obs, nil, ownTestIP())
	require.Len(t, survivors, 1)
	assert.Equal(t, uint8(1), survivors[0].Envelope.ServiceKind)
	assert.Equal(t, uint32(9), survivors[0].Envelope.TenantID)
	assert.Empty(t, obs.drops)
}

func TestBatchDropsBadEthertype(t *testing.T) {
	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{1, 2, 3, 4, 5, 6},
		DstMAC:       net.HardwareAddr{6, 5, 4, 3, 2, 1},
		EthernetType: layers.EthernetTypeARP,
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &eth, gopacket.Payload([]byte("x"))))
	frame := make([]byte, len(buf.Bytes()))
	copy(frame, buf.Bytes())

	p := packet.New(driver.NewMemBuffer(frame))
	obs := newCountingObserver()

	survivors := Batch([]*packet.Packet{p}, obs, nil, ownTestIP())
	assert.Empty(t, survivors)
	assert.True(t, p.Freed())
	assert.Equal(t, 1, obs.drops["l2_ethertype"])
}

func TestBatchDropsTruncatedIPHeader(t *testing.T) {
	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{1, 2, 3, 4, 5, 6},
		DstMAC:       net.HardwareAddr{6, 5, 4, 3, 2, 1},
		EthernetType: layers.EthernetTypeIPv4,
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &eth, gopacket.Payload([]byte{1, 2, 3})))
	frame := make([]byte, len(buf.Bytes()))
	copy(frame, buf.Bytes())

	p := packet.New(driver.NewMemBuffer(frame))
	obs := newCountingObserver()

	survivors := Batch([]*packet.Packet{p}, obs, nil, ownTestIP())
	assert.Empty(t, survivors)
	assert.True(t, p.Freed())
	assert.Equal(t, 1, obs.drops["l3_short"])
}

// TestBatchDropsZeroTTL covers scenario S2: a frame identical to a
// well-formed request but with IP.ttl=0 must be freed at the L3 stage
// with no response and no task ever enqueued.
func TestBatchDropsZeroTTL(t *testing.T) {
	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{1, 2, 3, 4, 5, 6},
		DstMAC:       net.HardwareAddr{6, 5, 4, 3, 2, 1},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      0,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	udp := layers.UDP{SrcPort: 1111, DstPort: 2222}
	require.NoError(t, udp.SetNetworkLayerForChecksum(&ip))

	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		&eth, &ip, &udp, gopacket.Payload(envelopeBody(t))))
	frame := make([]byte, len(buf.Bytes()))
	copy(frame, buf.Bytes())

	p := packet.New(driver.NewMemBuffer(frame))
	obs := newCountingObserver()

	survivors := Batch([]*packet.Packet{p}, obs, nil, ownTestIP())
	assert.Empty(t, survivors)
	assert.True(t, p.Freed())
	assert.Equal(t, 1, obs.drops["l3_ttl"])
}

// TestBatchDropsWrongDestinationIP covers the destination-address check
// alongside the TTL check: a frame not addressed to this host's
// configured IP is dropped at L3 even with a healthy TTL.
func TestBatchDropsWrongDestinationIP(t *testing.T) {
	frame := validFrame(t, envelopeBody(t))
	p := packet.New(driver.NewMemBuffer(frame))
	obs := newCountingObserver()

	survivors := Batch([]*packet.Packet{p}, obs, nil, net.IPv4(10, 0, 0, 99))
	assert.Empty(t, survivors)
	assert.True(t, p.Freed())
	assert.Equal(t, 1, obs.drops["l3_destination"])
}

// TestBatchDropsWrongServiceKind covers scenario S3: a frame identical
// to a well-formed request but with payload[0] (service_kind) set to an
// unregistered value must be dropped with no survivor and no transmit.
func TestBatchDropsWrongServiceKind(t *testing.T) {
	dst := make([]byte, 64)
	n, err := wire.EncodeEnvelope(dst, wire.Envelope{ServiceKind: 0xFF, Opcode: 2, TenantID: 9, Body: []byte("hi")})
	require.NoError(t, err)

	frame := validFrame(t, dst[:n])
	p := packet.New(driver.NewMemBuffer(frame))
	obs := newCountingObserver()

	survivors := Batch([]*packet.Packet{p}, obs, nil, ownTestIP())
	assert.Empty(t, survivors)
	assert.True(t, p.Freed())
	assert.Equal(t, 1, obs.drops["l4_service_kind"])
}

func TestBatchPreservesOrderAmongSurvivors(t *testing.T) {
	good1 := packet.New(driver.NewMemBuffer(validFrame(t, envelopeBody(t))))
	bad := packet.New(driver.NewMemBuffer([]byte{0xff}))
	good2 := packet.New(driver.NewMemBuffer(validFrame(t, envelopeBody(t))))

	obs := newCountingObserver()
	survivors := Batch([]*packet.Packet{good1, bad, good2}, obs, nil, ownTestIP())

	require.Len(t, survivors, 2)
	assert.Same(t, good1, survivors[0])
	assert.Same(t, good2, survivors[1])
	assert.True(t, bad.Freed())
}
