package api

import "packwire/pkg/model"

// RegisterRequest is sent by the launcher agent when joining the VPN.
type RegisterRequest struct {
	UUID      string `json:"uuid"`
	Username  string `json:"username"`
	PublicKey string `json:"public_key"`
}

// RegisterResponse carries everything the client needs to render its
// tunnel config.
type RegisterResponse struct {
	AssignedIP      string `json:"assigned_ip"`
	ServerPublicKey string `json:"server_public_key"`
	Endpoint        string `json:"endpoint"`
	Subnet          string `json:"subnet"`
	DNS             string `json:"dns,omitempty"`
}

// TrackerUpdateRequest is pushed by the game-server tracker mod.
type TrackerUpdateRequest struct {
	OnlinePlayers []model.PlayerPresence `json:"online_players"`
	TPS           *float64               `json:"tps,omitempty"`
	MSPT          *float64               `json:"mspt,omitempty"`
}
