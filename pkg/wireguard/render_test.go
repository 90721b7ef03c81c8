package wireguard

import (
	"strings"
	"testing"
)

func TestRenderClientConfig_Full(t *testing.T) {
	t.Parallel()

	out := RenderClientConfig(ClientConfig{
		PrivateKey: "PRIV",
		Address:    "10.8.0.5/32",
		DNS:        "1.1.1.1",
		ServerKey:  "SRV",
		Endpoint:   "play.example.com:51820",
		AllowedIPs: "10.8.0.0/24",
		Keepalive:  25,
	})
	for _, want := range []string{
		"[Interface]",
		"PrivateKey = PRIV",
		"Address = 10.8.0.5/32",
		"DNS = 1.1.1.1",
		"[Peer]",
		"PublicKey = SRV",
		"Endpoint = play.example.com:51820",
		"AllowedIPs = 10.8.0.0/24",
		"PersistentKeepalive = 25",
	} {
		if !strings.Contains(out, want+"\n") {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRenderClientConfig_OmitsEmptyFields(t *testing.T) {
	t.Parallel()

	out := RenderClientConfig(ClientConfig{ServerKey: "SRV"})
	for _, absent := range []string{"DNS", "Endpoint", "AllowedIPs", "PersistentKeepalive", "PrivateKey", "Address"} {
		if strings.Contains(out, absent) {
			t.Fatalf("unexpected %q in:\n%s", absent, out)
		}
	}
	if !strings.Contains(out, "PublicKey = SRV\n") {
		t.Fatalf("server key missing:\n%s", out)
	}
}
