package vpn

import (
	"sort"
	"time"

	"packwire/pkg/model"
)

// PeerStatus is the per-peer element of the admin read model.
type PeerStatus struct {
	UUID          string `json:"uuid"`
	Username      string `json:"username"`
	IPAddress     string `json:"ip_address"`
	Online        bool   `json:"online"`
	LastHandshake *int64 `json:"last_handshake"` // unix seconds, null = never
	BytesSent     int64  `json:"bytes_sent"`
	BytesReceived int64  `json:"bytes_received"`
	RegisteredAt  int64  `json:"registered_at"`
}

// FleetStats is the admin read model: fleet totals plus one entry per peer.
// OnlineThresholdSeconds is included so clients render "online" with the
// same policy the server classified with.
type FleetStats struct {
	TotalPeers             int          `json:"total_peers"`
	ActiveConnections      int          `json:"active_connections"`
	TotalBandwidthSent     int64        `json:"total_bandwidth_sent"`
	TotalBandwidthReceived int64        `json:"total_bandwidth_received"`
	OnlineThresholdSeconds int          `json:"online_threshold_seconds"`
	Peers                  []PeerStatus `json:"peers"`
}

// Snapshot builds the read model from a store listing. Pure and side-effect
// free, so it is safe on every poll tick. Peers are ordered by registration
// time (then uuid) for stable output.
func Snapshot(records []model.PeerRecord, now time.Time, threshold time.Duration) FleetStats {
	if threshold <= 0 {
		threshold = DefaultOnlineThreshold
	}
	sent, received := AggregateTraffic(records)
	out := FleetStats{
		TotalPeers:             len(records),
		TotalBandwidthSent:     sent,
		TotalBandwidthReceived: received,
		OnlineThresholdSeconds: int(threshold / time.Second),
		Peers:                  make([]PeerStatus, 0, len(records)),
	}
	for _, r := range records {
		ps := PeerStatus{
			UUID:          r.UUID,
			Username:      r.Username,
			IPAddress:     r.IPAddress,
			Online:        Online(r, now, threshold),
			BytesSent:     r.BytesSent,
			BytesReceived: r.BytesReceived,
			RegisteredAt:  r.RegisteredAt.Unix(),
		}
		if !r.LastHandshake.IsZero() {
			hs := r.LastHandshake.Unix()
			ps.LastHandshake = &hs
		}
		if ps.Online {
			out.ActiveConnections++
		}
		out.Peers = append(out.Peers, ps)
	}
	sort.Slice(out.Peers, func(i, j int) bool {
		if out.Peers[i].RegisteredAt != out.Peers[j].RegisteredAt {
			return out.Peers[i].RegisteredAt < out.Peers[j].RegisteredAt
		}
		return out.Peers[i].UUID < out.Peers[j].UUID
	})
	return out
}
