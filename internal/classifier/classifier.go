// Package classifier validates a burst of received packets in three
// batched passes — L2, then L3, then L4 — rather than interleaving
// layers packet-by-packet. Every packet in a batch is pushed through a
// layer before any of them moves to the next, so a single bad frame
// early in the burst never delays classification of the frames behind
// it, and every packet that fails a layer is freed exactly once and
// removed from the batch without disturbing receive order among the
// survivors.
package classifier

import (
	"net"

	"github.com/behrlich/flashkv/internal/constants"
	"github.com/behrlich/flashkv/internal/driver"
	"github.com/behrlich/flashkv/internal/packet"
	"github.com/behrlich/flashkv/internal/wire"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Batch validates pkts through L2, L3, and L4 in turn and returns the
// surviving packets, each with Headers and Envelope populated, in their
// original receive order. Every packet dropped at any layer has Free
// called on it before this function returns. ownIP is this host's
// configured address; an L3 frame not addressed to it is dropped.
func Batch(pkts []*packet.Packet, obs driver.Observer, logger driver.Logger, ownIP net.IP) []*packet.Packet {
	if obs == nil {
		obs = driver.NoOpObserver{}
	}
	if ownIP == nil {
		ownIP = constants.DefaultOwnIP
	}

	survivors := classifyL2(pkts, obs)
	survivors = classifyL3(survivors, obs, ownIP)
	survivors = classifyL4(survivors, obs, logger)
	return survivors
}

func classifyL2(pkts []*packet.Packet, obs driver.Observer) []*packet.Packet {
	out := pkts[:0]
	for _, p := range pkts {
		if err := p.Headers.Eth.DecodeFromBytes(p.Data(), gopacket.NilDecodeFeedback); err != nil {
			p.Free()
			obs.ObserveDrop("l2_decode")
			continue
		}
		if p.Headers.Eth.EthernetType != layers.EthernetTypeIPv4 {
			p.Free()
			obs.ObserveDrop("l2_ethertype")
			continue
		}
		out = append(out, p)
	}
	return out
}

func classifyL3(pkts []*packet.Packet, obs driver.Observer, ownIP net.IP) []*packet.Packet {
	out := pkts[:0]
	for _, p := range pkts {
		rest := p.Headers.Eth.LayerPayload()
		if len(rest) < constants.MinIPv4HeaderLen {
			p.Free()
			obs.ObserveDrop("l3_short")
			continue
		}
		if err := p.Headers.IP.DecodeFromBytes(rest, gopacket.NilDecodeFeedback); err != nil {
			p.Free()
			obs.ObserveDrop("l3_decode")
			continue
		}
		if p.Headers.IP.Version != 4 || p.Headers.IP.Protocol != layers.IPProtocolUDP {
			p.Free()
			obs.ObserveDrop("l3_protocol")
			continue
		}
		if p.Headers.IP.TTL == 0 {
			p.Free()
			obs.ObserveDrop("l3_ttl")
			continue
		}
		if !p.Headers.IP.DstIP.Equal(ownIP) {
			p.Free()
			obs.ObserveDrop("l3_destination")
			continue
		}
		out = append(out, p)
	}
	return out
}

func classifyL4(pkts []*packet.Packet, obs driver.Observer, logger driver.Logger) []*packet.Packet {
	out := pkts[:0]
	for _, p := range pkts {
		rest := p.Headers.IP.LayerPayload()
		if len(rest) < constants.MinUDPHeaderLen {
			p.Free()
			obs.ObserveDrop("l4_short")
			continue
		}
		if err := p.Headers.UDP.DecodeFromBytes(rest, gopacket.NilDecodeFeedback); err != nil {
			p.Free()
			obs.ObserveDrop("l4_decode")
			continue
		}
		body := p.Headers.UDP.LayerPayload()
		env, err := wire.DecodeEnvelope(body)
		if err != nil {
			p.Free()
			obs.ObserveDrop("l4_envelope")
			continue
		}
		if env.ServiceKind != constants.ServiceKindMaster {
			p.Free()
			obs.ObserveDrop("l4_service_kind")
			if logger != nil {
				logger.Debugf("dropped frame for unknown service_kind %d (tenant %d)", env.ServiceKind, env.TenantID)
			}
			continue
		}
		p.Envelope = env
		out = append(out, p)
	}
	return out
}
