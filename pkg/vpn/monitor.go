package vpn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"packwire/pkg/model"
	"packwire/pkg/store"
	"packwire/pkg/wireguard"
)

// DefaultMonitorInterval matches the admin UI polling cadence.
const DefaultMonitorInterval = 10 * time.Second

type deviceCounters struct {
	rx, tx int64
}

// Monitor periodically reads absolute per-peer counters from the device and
// turns them into store deltas. Baselines live only in memory: the first
// observation of a key records the current absolute values without adding
// traffic, so a server restart never double-counts.
//
// Single goroutine; all per-key state is confined to it.
type Monitor struct {
	store     store.PeerStore
	tunnel    wireguard.ControlPlane
	events    EventSink
	interval  time.Duration
	threshold time.Duration

	last   map[string]deviceCounters // by public key
	online map[string]bool           // by uuid
}

func NewMonitor(st store.PeerStore, tunnel wireguard.ControlPlane, events EventSink, interval, threshold time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	if threshold <= 0 {
		threshold = DefaultOnlineThreshold
	}
	return &Monitor{
		store:     st,
		tunnel:    tunnel,
		events:    events,
		interval:  interval,
		threshold: threshold,
		last:      make(map[string]deviceCounters),
		online:    make(map[string]bool),
	}
}

// Run polls until ctx is done. Collection errors are transient by contract
// (the device may be mid-restart, the store busy); they are logged and the
// next tick retries.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Collect(time.Now()); err != nil {
				log.Warningf("traffic collect: %v", err)
			}
		}
	}
}

// Collect performs one polling pass.
func (m *Monitor) Collect(now time.Time) error {
	stats, err := m.tunnel.PeerStats()
	if err != nil {
		return fmt.Errorf("device stats: %w", err)
	}
	records, err := m.store.List()
	if err != nil {
		return fmt.Errorf("list peers: %w", err)
	}

	liveKeys := make(map[string]struct{}, len(records))
	liveIDs := make(map[string]struct{}, len(records))
	for _, rec := range records {
		liveKeys[rec.PublicKey] = struct{}{}
		liveIDs[rec.UUID] = struct{}{}

		handshake := rec.LastHandshake
		if st, ok := stats[rec.PublicKey]; ok {
			prev, seen := m.last[rec.PublicKey]
			var txDelta, rxDelta int64
			if seen {
				txDelta = counterDelta(prev.tx, st.TransmitBytes)
				rxDelta = counterDelta(prev.rx, st.ReceiveBytes)
			}
			if txDelta > 0 || rxDelta > 0 || st.LastHandshake.After(handshake) {
				err := m.store.UpsertTraffic(rec.UUID, txDelta, rxDelta, st.LastHandshake)
				if errors.Is(err, store.ErrNotFound) {
					// Revoked between the listing and this update; a late
					// delta must never resurrect the record.
					continue
				}
				if err != nil {
					// Baseline untouched so the delta is retried next tick.
					log.Warningf("upsert traffic for %s: %v", rec.UUID, err)
					continue
				}
			}
			m.last[rec.PublicKey] = deviceCounters{rx: st.ReceiveBytes, tx: st.TransmitBytes}
			if st.LastHandshake.After(handshake) {
				handshake = st.LastHandshake
			}
		}

		current := Online(model.PeerRecord{LastHandshake: handshake}, now, m.threshold)
		if current != m.online[rec.UUID] {
			event := model.EventPeerOffline
			if current {
				event = model.EventPeerOnline
			}
			if m.events != nil {
				m.events.Publish(event, map[string]any{
					"uuid": rec.UUID, "username": rec.Username, "ip_address": rec.IPAddress,
				})
			}
		}
		m.online[rec.UUID] = current
	}

	for key := range m.last {
		if _, ok := liveKeys[key]; !ok {
			delete(m.last, key)
		}
	}
	for id := range m.online {
		if _, ok := liveIDs[id]; !ok {
			delete(m.online, id)
		}
	}

	if m.events != nil {
		updated, err := m.store.List()
		if err != nil {
			return fmt.Errorf("list peers after update: %w", err)
		}
		m.events.Publish(model.EventStats, Snapshot(updated, now, m.threshold))
	}
	return nil
}

// counterDelta converts an absolute device counter into a store delta. A
// counter that moved backwards means the device restarted and began counting
// from zero, so everything it currently shows is new traffic.
func counterDelta(prev, abs int64) int64 {
	if abs >= prev {
		return abs - prev
	}
	return abs
}
