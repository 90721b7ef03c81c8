//go:build consul

package store

import (
	"encoding/json"
	"fmt"
	"time"

	consulapi "github.com/hashicorp/consul/api"

	"packwire/pkg/model"
)

const peerPrefix = "packwire/peers/"

// casRetries bounds the optimistic-update loop for counter writes.
const casRetries = 5

// ConsulStore is a Consul KV backed PeerStore. Mutations go through
// check-and-set keyed on ModifyIndex so concurrent writers cannot lose
// updates.
type ConsulStore struct {
	cli *consulapi.Client
}

// NewConsulStore creates a Consul-backed store. A client that cannot be
// built leaves cli nil and every operation reports it.
func NewConsulStore(addr string) PeerStore {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		log.Errorf("consul client for %s: %v", addr, err)
	}
	return &ConsulStore{cli: cli}
}

func (s *ConsulStore) Create(rec model.PeerRecord) error {
	if s.cli == nil {
		return fmt.Errorf("consul client not configured")
	}
	existing, err := s.List()
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p.IPAddress == rec.IPAddress && p.UUID != rec.UUID {
			return ErrAddressInUse
		}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	// ModifyIndex 0 makes the CAS a create-if-absent.
	ok, _, err := s.cli.KV().CAS(&consulapi.KVPair{Key: peerPrefix + rec.UUID, Value: b, ModifyIndex: 0}, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (s *ConsulStore) Get(uuid string) (model.PeerRecord, bool, error) {
	if s.cli == nil {
		return model.PeerRecord{}, false, fmt.Errorf("consul client not configured")
	}
	kv, _, err := s.cli.KV().Get(peerPrefix+uuid, nil)
	if err != nil || kv == nil {
		return model.PeerRecord{}, false, err
	}
	var rec model.PeerRecord
	if err := json.Unmarshal(kv.Value, &rec); err != nil {
		return model.PeerRecord{}, false, err
	}
	return rec, true, nil
}

func (s *ConsulStore) List() ([]model.PeerRecord, error) {
	if s.cli == nil {
		return nil, fmt.Errorf("consul client not configured")
	}
	pairs, _, err := s.cli.KV().List(peerPrefix, nil)
	if err != nil {
		return nil, err
	}
	var out []model.PeerRecord
	for _, p := range pairs {
		var rec model.PeerRecord
		if err := json.Unmarshal(p.Value, &rec); err == nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *ConsulStore) UpsertTraffic(uuid string, sentDelta, recvDelta int64, handshakeAt time.Time) error {
	return s.mutate(uuid, func(rec *model.PeerRecord) {
		if sentDelta > 0 {
			rec.BytesSent += sentDelta
		}
		if recvDelta > 0 {
			rec.BytesReceived += recvDelta
		}
		if !handshakeAt.IsZero() && handshakeAt.After(rec.LastHandshake) {
			rec.LastHandshake = handshakeAt
		}
	})
}

func (s *ConsulStore) UpdateIdentity(uuid, username, publicKey string) error {
	return s.mutate(uuid, func(rec *model.PeerRecord) {
		rec.Username = username
		rec.PublicKey = publicKey
	})
}

func (s *ConsulStore) Remove(uuid string) error {
	if s.cli == nil {
		return fmt.Errorf("consul client not configured")
	}
	for i := 0; i < casRetries; i++ {
		kv, _, err := s.cli.KV().Get(peerPrefix+uuid, nil)
		if err != nil {
			return err
		}
		if kv == nil {
			return ErrNotFound
		}
		ok, _, err := s.cli.KV().DeleteCAS(kv, nil)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("remove %s: CAS retries exhausted", uuid)
}

// Ping reports readiness for health/diagnose endpoints.
func (s *ConsulStore) Ping() error {
	if s.cli == nil {
		return fmt.Errorf("consul client not configured")
	}
	_, err := s.cli.Status().Leader()
	return err
}

func (s *ConsulStore) Close() error { return nil }

func (s *ConsulStore) mutate(uuid string, apply func(*model.PeerRecord)) error {
	if s.cli == nil {
		return fmt.Errorf("consul client not configured")
	}
	for i := 0; i < casRetries; i++ {
		kv, _, err := s.cli.KV().Get(peerPrefix+uuid, nil)
		if err != nil {
			return err
		}
		if kv == nil {
			return ErrNotFound
		}
		var rec model.PeerRecord
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			return err
		}
		apply(&rec)
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		ok, _, err := s.cli.KV().CAS(&consulapi.KVPair{Key: kv.Key, Value: b, ModifyIndex: kv.ModifyIndex}, nil)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("update %s: CAS retries exhausted", uuid)
}
