package wire

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// HeaderSet holds the three parsed or templated headers of one
// Ethernet/IPv4/UDP frame. Values, not pointers: a HeaderSet is cheap to
// copy and a response template is built once per request by copying and
// mutating its request's HeaderSet.
type HeaderSet struct {
	Eth layers.Ethernet
	IP  layers.IPv4
	UDP layers.UDP
}

// ParseHeaders decodes the Ethernet, IPv4, and UDP headers from data in
// turn, in the same per-layer order the classifier validates them in.
// It returns the parsed HeaderSet and the slice of data following the
// UDP header (the RPC envelope).
func ParseHeaders(data []byte) (HeaderSet, []byte, error) {
	var hs HeaderSet

	if err := hs.Eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return HeaderSet{}, nil, err
	}
	rest := hs.Eth.LayerPayload()

	if err := hs.IP.DecodeFromBytes(rest, gopacket.NilDecodeFeedback); err != nil {
		return HeaderSet{}, nil, err
	}
	rest = hs.IP.LayerPayload()

	if err := hs.UDP.DecodeFromBytes(rest, gopacket.NilDecodeFeedback); err != nil {
		return HeaderSet{}, nil, err
	}
	return hs, hs.UDP.LayerPayload(), nil
}

// NewResponseTemplate builds the header template for a response to req:
// source and destination are swapped at every layer, and the length and
// checksum fields are left as-is for a later, deferred finalization pass
// once the response body's size is known.
func NewResponseTemplate(req HeaderSet) HeaderSet {
	resp := req

	resp.Eth.SrcMAC, resp.Eth.DstMAC = req.Eth.DstMAC, req.Eth.SrcMAC

	resp.IP.SrcIP, resp.IP.DstIP = req.IP.DstIP, req.IP.SrcIP
	resp.IP.Options = nil
	resp.IP.Padding = nil

	resp.UDP.SrcPort, resp.UDP.DstPort = req.UDP.DstPort, req.UDP.SrcPort

	return resp
}

// FinalizeLengths fixes the IPv4 total length and UDP length fields
// given the final response payload length, and binds the IPv4 header as
// the UDP checksum's pseudo-header; the checksum itself is computed by
// SerializeResponse.
// Idempotent: calling it twice with the same payloadLen reproduces the
// same header state, so a response frame may pass through this pass more
// than once without corruption.
func FinalizeLengths(hs *HeaderSet, payloadLen int) error {
	udpLen := 8 + payloadLen
	hs.UDP.Length = uint16(udpLen)
	hs.IP.Length = uint16(20 + udpLen)

	if err := hs.UDP.SetNetworkLayerForChecksum(&hs.IP); err != nil {
		return err
	}
	return nil
}

// SerializeResponse serializes hs followed by payload into a single
// frame, in layer order (Ethernet, IPv4, UDP, payload). Lengths and
// checksums are (re)computed in the same pass.
func SerializeResponse(hs HeaderSet, payload []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	if err := gopacket.SerializeLayers(buf, opts,
		&hs.Eth,
		&hs.IP,
		&hs.UDP,
		gopacket.Payload(payload),
	); err != nil {
		return nil, err
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}
