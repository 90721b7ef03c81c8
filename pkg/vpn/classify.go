package vpn

import (
	"time"

	"packwire/pkg/model"
)

// DefaultOnlineThreshold is how recent a handshake must be for a peer to
// count as online. An active tunnel rotates handshakes about every two
// minutes, so three minutes of silence means the client is gone.
const DefaultOnlineThreshold = 180 * time.Second

// Online reports whether a record counts as connected at now. A peer that
// has never completed a handshake is offline no matter how recently it
// registered. Pure: repeated calls with the same inputs agree.
func Online(rec model.PeerRecord, now time.Time, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = DefaultOnlineThreshold
	}
	if rec.LastHandshake.IsZero() {
		return false
	}
	return now.Sub(rec.LastHandshake) <= threshold
}
