package vpn

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/op/go-logging"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"packwire/pkg/model"
	"packwire/pkg/store"
	"packwire/pkg/wireguard"
)

var log = logging.MustGetLogger("VPN")

// ErrTunnel marks tunnel control-plane failures. Handlers map it to a 502;
// local state is never mutated once it has been reported.
var ErrTunnel = errors.New("tunnel control plane failure")

// EventSink receives lifecycle events for the admin stream. A nil sink
// drops everything.
type EventSink interface {
	Publish(event string, payload any)
}

// Config carries the service knobs; zero values fall back to defaults.
type Config struct {
	Subnet    string        // tunnel subnet CIDR, default 10.8.0.0/24
	Endpoint  string        // host:port advertised to clients
	DNS       string        // optional resolver pushed to clients
	Threshold time.Duration // online threshold, default 180s
}

// Service owns the peer lifecycle: registration with address assignment,
// revocation with device-before-store ordering, and the stats read model.
// Register and Revoke are mutually exclusive, so a registration can never
// race a revocation into handing out an address whose key is still live.
type Service struct {
	store     store.PeerStore
	tunnel    wireguard.ControlPlane
	alloc     *Allocator
	events    EventSink
	endpoint  string
	dns       string
	threshold time.Duration

	mu sync.Mutex
}

func NewService(st store.PeerStore, tunnel wireguard.ControlPlane, events EventSink, cfg Config) (*Service, error) {
	subnet := cfg.Subnet
	if subnet == "" {
		subnet = "10.8.0.0/24"
	}
	alloc, err := NewAllocator(subnet)
	if err != nil {
		return nil, err
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultOnlineThreshold
	}
	return &Service{
		store:     st,
		tunnel:    tunnel,
		alloc:     alloc,
		events:    events,
		endpoint:  cfg.Endpoint,
		dns:       cfg.DNS,
		threshold: threshold,
	}, nil
}

// RegisterResult is everything a client needs to render its tunnel config.
type RegisterResult struct {
	AssignedIP      string
	ServerPublicKey string
	Endpoint        string
	Subnet          string
	DNS             string
}

// Register creates or refreshes a peer. A known identity presenting a new
// key gets the old key dropped from the device and keeps its address and
// registration time; an unknown identity gets the lowest free address.
func (s *Service) Register(uuid, username, publicKey string) (RegisterResult, error) {
	uuid = strings.TrimSpace(uuid)
	username = strings.TrimSpace(username)
	publicKey = strings.TrimSpace(publicKey)
	if uuid == "" || username == "" || publicKey == "" {
		return RegisterResult{}, fmt.Errorf("uuid, username and public_key are required")
	}
	if _, err := wgtypes.ParseKey(publicKey); err != nil {
		return RegisterResult{}, fmt.Errorf("invalid public key: %v", err)
	}
	serverKey, err := s.tunnel.PublicKey()
	if err != nil {
		return RegisterResult{}, fmt.Errorf("%w: %v", ErrTunnel, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok, err := s.store.Get(uuid)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("lookup peer: %w", err)
	}
	var ip string
	if ok {
		ip = existing.IPAddress
		if existing.PublicKey != publicKey {
			// Key rotation: drop the stale device entry first. Tolerated on
			// failure, the key may already be gone.
			if err := s.tunnel.RemovePeer(existing.PublicKey); err != nil {
				log.Warningf("remove stale key for %s: %v", uuid, err)
			}
		}
		if existing.PublicKey != publicKey || existing.Username != username {
			if err := s.store.UpdateIdentity(uuid, username, publicKey); err != nil {
				return RegisterResult{}, fmt.Errorf("update peer: %w", err)
			}
		}
	} else {
		records, err := s.store.List()
		if err != nil {
			return RegisterResult{}, fmt.Errorf("list peers: %w", err)
		}
		used := make(map[string]bool, len(records))
		for _, r := range records {
			used[r.IPAddress] = true
		}
		ip, err = s.alloc.Next(used)
		if err != nil {
			return RegisterResult{}, err
		}
		rec := model.PeerRecord{
			UUID:         uuid,
			Username:     username,
			PublicKey:    publicKey,
			IPAddress:    ip,
			RegisteredAt: time.Now(),
		}
		if err := s.store.Create(rec); err != nil {
			return RegisterResult{}, fmt.Errorf("create peer: %w", err)
		}
	}

	// A failure here leaves the record in place; the client retries the
	// same registration and lands in the known-identity path.
	if err := s.tunnel.AddPeer(publicKey, ip); err != nil {
		return RegisterResult{}, fmt.Errorf("%w: %v", ErrTunnel, err)
	}
	log.Infof("registered peer %s (%s) at %s", uuid, username, ip)
	s.publish(model.EventPeerRegistered, map[string]any{
		"uuid": uuid, "username": username, "ip_address": ip,
	})
	return RegisterResult{
		AssignedIP:      ip,
		ServerPublicKey: serverKey,
		Endpoint:        s.endpoint,
		Subnet:          s.alloc.Subnet(),
		DNS:             s.dns,
	}, nil
}

// Revoke removes a peer's network access and record. Device first, then the
// row: if the device call fails the record must stay, otherwise its address
// could be reused while the old key still decrypts.
func (s *Service) Revoke(uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.store.Get(uuid)
	if err != nil {
		return fmt.Errorf("lookup peer: %w", err)
	}
	if !ok {
		return store.ErrNotFound
	}
	if err := s.tunnel.RemovePeer(rec.PublicKey); err != nil {
		return fmt.Errorf("%w: %v", ErrTunnel, err)
	}
	if err := s.store.Remove(uuid); err != nil {
		return err
	}
	log.Infof("revoked peer %s (%s)", uuid, rec.IPAddress)
	s.publish(model.EventPeerRevoked, map[string]any{
		"uuid": uuid, "username": rec.Username, "ip_address": rec.IPAddress,
	})
	return nil
}

// Stats assembles the admin read model from a fresh store listing.
func (s *Service) Stats(now time.Time) (FleetStats, error) {
	records, err := s.store.List()
	if err != nil {
		return FleetStats{}, fmt.Errorf("list peers: %w", err)
	}
	return Snapshot(records, now, s.threshold), nil
}

// Peers returns the per-peer view without fleet totals.
func (s *Service) Peers(now time.Time) ([]PeerStatus, error) {
	stats, err := s.Stats(now)
	if err != nil {
		return nil, err
	}
	return stats.Peers, nil
}

func (s *Service) Threshold() time.Duration { return s.threshold }

// PoolUsage reports assigned and total assignable host addresses.
func (s *Service) PoolUsage() (used, capacity int, err error) {
	records, err := s.store.List()
	if err != nil {
		return 0, 0, err
	}
	bits := 32 - s.alloc.prefix.Bits()
	capacity = 1<<bits - 3 // minus network, broadcast, server host
	if capacity < 0 {
		capacity = 0
	}
	return len(records), capacity, nil
}

func (s *Service) publish(event string, payload any) {
	if s.events != nil {
		s.events.Publish(event, payload)
	}
}
