package model

// Event names published on the admin stream.
const (
	EventPeerRegistered = "peer_registered"
	EventPeerRevoked    = "peer_revoked"
	EventPeerOnline     = "peer_online"
	EventPeerOffline    = "peer_offline"
	EventStats          = "stats"
)
