package model

import "time"

// PeerRecord is the durable state for one registered VPN client.
// Counters only grow while the record exists; a zero LastHandshake means
// the peer has never completed a handshake.
type PeerRecord struct {
	UUID          string    `json:"uuid"`
	Username      string    `json:"username"`
	PublicKey     string    `json:"public_key"`
	IPAddress     string    `json:"ip_address"`
	BytesSent     int64     `json:"bytes_sent"`
	BytesReceived int64     `json:"bytes_received"`
	LastHandshake time.Time `json:"last_handshake"`
	RegisteredAt  time.Time `json:"registered_at"`
}
