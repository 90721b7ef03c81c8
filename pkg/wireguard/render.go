package wireguard

import (
	"fmt"
	"strings"
)

// ClientConfig holds everything needed to render a client-side tunnel config.
type ClientConfig struct {
	PrivateKey string
	Address    string // assigned tunnel address, e.g. 10.8.0.5/24
	DNS        string
	ServerKey  string
	Endpoint   string
	AllowedIPs string
	Keepalive  int
}

// RenderClientConfig produces the wg-quick config a registered client writes
// to disk: its own address and key in [Interface], the server as sole [Peer].
func RenderClientConfig(cfg ClientConfig) string {
	var b strings.Builder
	b.WriteString("[Interface]\n")
	if cfg.PrivateKey != "" {
		fmt.Fprintf(&b, "PrivateKey = %s\n", cfg.PrivateKey)
	}
	if cfg.Address != "" {
		fmt.Fprintf(&b, "Address = %s\n", cfg.Address)
	}
	if cfg.DNS != "" {
		fmt.Fprintf(&b, "DNS = %s\n", cfg.DNS)
	}
	b.WriteString("\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", cfg.ServerKey)
	if cfg.Endpoint != "" {
		fmt.Fprintf(&b, "Endpoint = %s\n", cfg.Endpoint)
	}
	if cfg.AllowedIPs != "" {
		fmt.Fprintf(&b, "AllowedIPs = %s\n", cfg.AllowedIPs)
	}
	if cfg.Keepalive > 0 {
		fmt.Fprintf(&b, "PersistentKeepalive = %d\n", cfg.Keepalive)
	}
	return b.String()
}
