package store

import (
	"sync"
	"time"

	"packwire/pkg/model"
)

// MemoryStore keeps peer records in process memory. Used by tests and as an
// ephemeral backend; counters do not survive a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	peers map[string]model.PeerRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{peers: make(map[string]model.PeerRecord)}
}

func (m *MemoryStore) Create(rec model.PeerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peers[rec.UUID]; ok {
		return ErrExists
	}
	for _, p := range m.peers {
		if p.IPAddress == rec.IPAddress {
			return ErrAddressInUse
		}
	}
	m.peers[rec.UUID] = rec
	return nil
}

func (m *MemoryStore) Get(uuid string) (model.PeerRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[uuid]
	return p, ok, nil
}

func (m *MemoryStore) List() ([]model.PeerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.PeerRecord, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	return out, nil
}

func (m *MemoryStore) UpsertTraffic(uuid string, sentDelta, recvDelta int64, handshakeAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[uuid]
	if !ok {
		return ErrNotFound
	}
	if sentDelta > 0 {
		p.BytesSent += sentDelta
	}
	if recvDelta > 0 {
		p.BytesReceived += recvDelta
	}
	if !handshakeAt.IsZero() && handshakeAt.After(p.LastHandshake) {
		p.LastHandshake = handshakeAt
	}
	m.peers[uuid] = p
	return nil
}

func (m *MemoryStore) UpdateIdentity(uuid, username, publicKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[uuid]
	if !ok {
		return ErrNotFound
	}
	p.Username = username
	p.PublicKey = publicKey
	m.peers[uuid] = p
	return nil
}

func (m *MemoryStore) Remove(uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peers[uuid]; !ok {
		return ErrNotFound
	}
	delete(m.peers, uuid)
	return nil
}

// Ping reports readiness for health/diagnose endpoints.
func (m *MemoryStore) Ping() error { return nil }

func (m *MemoryStore) Close() error { return nil }
