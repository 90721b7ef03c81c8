package wireguard

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// Device states reported to operators and the agent.
const (
	StatusNotInstalled = "not_installed"
	StatusStopped      = "stopped"
	StatusRunning      = "running"
)

// PeerStats is one peer's view from the device: absolute counters since the
// device came up and the most recent handshake (zero when none).
type PeerStats struct {
	LastHandshake time.Time
	ReceiveBytes  int64
	TransmitBytes int64
	Endpoint      string
}

// ControlPlane is the tunnel collaborator the VPN service drives. The real
// implementation talks to a kernel WireGuard device; tests inject fakes.
type ControlPlane interface {
	AddPeer(publicKey, ip string) error
	RemovePeer(publicKey string) error
	// PeerStats returns per-peer device state keyed by public key.
	PeerStats() (map[string]PeerStats, error)
	// PublicKey returns the server's device public key.
	PublicKey() (string, error)
	DeviceStatus() string
}

// Controller drives a named WireGuard device through wgctrl. Each call opens
// a fresh client so a stale netlink socket cannot wedge the process.
type Controller struct {
	iface string
}

func NewController(iface string) *Controller {
	if iface == "" {
		iface = "wg0"
	}
	return &Controller{iface: iface}
}

func (c *Controller) AddPeer(publicKey, ip string) error {
	key, err := wgtypes.ParseKey(publicKey)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	_, ipNet, err := net.ParseCIDR(ip + "/32")
	if err != nil {
		return fmt.Errorf("parse peer address %q: %w", ip, err)
	}
	cli, err := wgctrl.New()
	if err != nil {
		return fmt.Errorf("open wgctrl: %w", err)
	}
	defer cli.Close()
	cfg := wgtypes.Config{
		Peers: []wgtypes.PeerConfig{{
			PublicKey:         key,
			ReplaceAllowedIPs: true,
			AllowedIPs:        []net.IPNet{*ipNet},
		}},
	}
	if err := cli.ConfigureDevice(c.iface, cfg); err != nil {
		return fmt.Errorf("configure %s: %w", c.iface, err)
	}
	return nil
}

func (c *Controller) RemovePeer(publicKey string) error {
	key, err := wgtypes.ParseKey(publicKey)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	cli, err := wgctrl.New()
	if err != nil {
		return fmt.Errorf("open wgctrl: %w", err)
	}
	defer cli.Close()
	cfg := wgtypes.Config{
		Peers: []wgtypes.PeerConfig{{
			PublicKey: key,
			Remove:    true,
		}},
	}
	if err := cli.ConfigureDevice(c.iface, cfg); err != nil {
		return fmt.Errorf("configure %s: %w", c.iface, err)
	}
	return nil
}

func (c *Controller) PeerStats() (map[string]PeerStats, error) {
	cli, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("open wgctrl: %w", err)
	}
	defer cli.Close()
	dev, err := cli.Device(c.iface)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", c.iface, err)
	}
	out := make(map[string]PeerStats, len(dev.Peers))
	for _, p := range dev.Peers {
		st := PeerStats{
			LastHandshake: p.LastHandshakeTime,
			ReceiveBytes:  p.ReceiveBytes,
			TransmitBytes: p.TransmitBytes,
		}
		if p.Endpoint != nil {
			st.Endpoint = p.Endpoint.String()
		}
		out[p.PublicKey.String()] = st
	}
	return out, nil
}

func (c *Controller) PublicKey() (string, error) {
	cli, err := wgctrl.New()
	if err != nil {
		return "", fmt.Errorf("open wgctrl: %w", err)
	}
	defer cli.Close()
	dev, err := cli.Device(c.iface)
	if err != nil {
		return "", fmt.Errorf("device %s: %w", c.iface, err)
	}
	return dev.PublicKey.String(), nil
}

func (c *Controller) DeviceStatus() string {
	cli, err := wgctrl.New()
	if err != nil {
		return StatusNotInstalled
	}
	defer cli.Close()
	if _, err := cli.Device(c.iface); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StatusStopped
		}
		return StatusNotInstalled
	}
	return StatusRunning
}
