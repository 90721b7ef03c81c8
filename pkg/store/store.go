package store

import (
	"errors"
	"time"

	"github.com/op/go-logging"

	"packwire/pkg/model"
)

var log = logging.MustGetLogger("STORE")

// ErrNotFound reports an identity with no record. Callers must surface it
// rather than swallow it, so a stale revocation fails loudly instead of
// silently succeeding.
var ErrNotFound = errors.New("peer not found")

// ErrExists reports a create for an identity that is already registered.
var ErrExists = errors.New("peer already registered")

// ErrAddressInUse reports a create that would duplicate an assigned address.
var ErrAddressInUse = errors.New("address already assigned")

// PeerStore is the persistence layer for peer records. All methods are safe
// for concurrent use and may block on I/O. Updates to a single identity are
// applied atomically and in arrival order.
type PeerStore interface {
	Create(rec model.PeerRecord) error
	Get(uuid string) (model.PeerRecord, bool, error)
	List() ([]model.PeerRecord, error)
	// UpsertTraffic adds non-negative counter deltas and, when handshakeAt is
	// non-zero and newer than the stored value, advances the last-handshake
	// timestamp. Returns ErrNotFound when uuid has no record.
	UpsertTraffic(uuid string, sentDelta, recvDelta int64, handshakeAt time.Time) error
	// UpdateIdentity rewrites username and public key, keeping the assigned
	// address, counters and registration time.
	UpdateIdentity(uuid, username, publicKey string) error
	Remove(uuid string) error
	Close() error
}
