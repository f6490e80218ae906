package wire

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildRequestFrame(t *testing.T, body []byte) []byte {
	t.Helper()

	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
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
	udp := layers.UDP{
		SrcPort: 40000,
		DstPort: 9000,
	}
	require.NoError(t, udp.SetNetworkLayerForChecksum(&ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, &eth, &ip, &udp, gopacket.Payload(body)))

	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}

func TestParseHeadersRoundTrip(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0xde, 0xad}
	frame := buildRequestFrame(t, body)

	hs, payload, err := ParseHeaders(frame)
	require.NoError(t, err)
	assert.Equal(t, body, payload)
	assert.Equal(t, layers.UDPPort(40000), hs.UDP.SrcPort)
	assert.Equal(t, layers.UDPPort(9000), hs.UDP.DstPort)
}

func TestResponseTemplateSwapsAddressing(t *testing.T) {
	frame := buildRequestFrame(t, []byte("hello"))
	req, _, err := ParseHeaders(frame)
	require.NoError(t, err)

	resp := NewResponseTemplate(req)
	assert.Equal(t, req.Eth.SrcMAC, resp.Eth.DstMAC)
	assert.Equal(t, req.Eth.DstMAC, resp.Eth.SrcMAC)
	assert.True(t, req.IP.SrcIP.Equal(resp.IP.DstIP))
	assert.True(t, req.IP.DstIP.Equal(resp.IP.SrcIP))
	assert.Equal(t, req.UDP.SrcPort, resp.UDP.DstPort)
	assert.Equal(t, req.UDP.DstPort, resp.UDP.SrcPort)
}

func TestFinalizeLengthsIdempotent(t *testing.T) {
	frame := buildRequestFrame(t, []byte("hello"))
	req, _, err := ParseHeaders(frame)
	require.NoError(t, err)
	resp := NewResponseTemplate(req)

	payload := []byte("0123456789")
	require.NoError(t, FinalizeLengths(&resp, len(payload)))
	first := resp.IP.Length

	require.NoError(t, FinalizeLengths(&resp, len(payload)))
	assert.Equal(t, first, resp.IP.Length)
	assert.Equal(t, uint16(8+len(payload)), resp.UDP.Length)
	assert.Equal(t, uint16(20+8+len(payload)), resp.IP.Length)
}

func TestSerializeResponseProducesValidFrame(t *testing.T) {
	frame := buildRequestFrame(t, []byte("ping"))
	req, _, err := ParseHeaders(frame)
	require.NoError(t, err)
	resp := NewResponseTemplate(req)

	out, err := SerializeResponse(resp, []byte("pong!"))
	require.NoError(t, err)

	roundTrip, payload, err := ParseHeaders(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong!"), payload)
	assert.Equal(t, req.UDP.SrcPort, roundTrip.UDP.DstPort)
}

func TestEnvelopeEncodeDecode(t *testing.T) {
	e := Envelope{ServiceKind: 1, Opcode: 7, TenantID: 42, Body: []byte("payload")}
	dst := make([]byte, 64)
	n, err := EncodeEnvelope(dst, e)
	require.NoError(t, err)

	got, err := DecodeEnvelope(dst[:n])
	require.NoError(t, err)
	assert.Equal(t, e.ServiceKind, got.ServiceKind)
	assert.Equal(t, e.Opcode, got.Opcode)
	assert.Equal(t, e.TenantID, got.TenantID)
	assert.Equal(t, e.Body, got.Body)
}

func TestDecodeEnvelopeTooShort(t *testing.T) {
	_, err := DecodeEnvelope([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrEnvelopeTooShort)
}

func TestInvokeArgsEncodeDecode(t *testing.T) {
	a := InvokeArgs{
		TableID:       9,
		ExtensionName: "recommend",
		Key:           []byte("user:42"),
		Value:         []byte("payload-bytes"),
	}
	enc, err := a.Encode()
	require.NoError(t, err)

	got, err := DecodeInvokeArgs(enc)
	require.NoError(t, err)
	assert.Equal(t, a.TableID, got.TableID)
	assert.Equal(t, a.ExtensionName, got.ExtensionName)
	assert.Equal(t, a.Key, got.Key)
	assert.Equal(t, a.Value, got.Value)
}
