package model

// PlayerPresence is one online player as reported by the game server.
type PlayerPresence struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	JoinedAt int64  `json:"joined_at"`
}

// ChatMessage is a single chat line relayed by the tracker mod.
type ChatMessage struct {
	Player    string `json:"player"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// TrackerState aggregates the most recent game-server report. It lives in
// memory only and resets on restart.
type TrackerState struct {
	OnlinePlayers []PlayerPresence `json:"online_players"`
	RecentChat    []ChatMessage    `json:"recent_chat"`
	TPS           *float64         `json:"tps,omitempty"`
	MSPT          *float64         `json:"mspt,omitempty"`
	LastUpdated   int64            `json:"last_updated"`
}
