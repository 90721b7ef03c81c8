package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"packwire/pkg/wireguard"
)

const confFile = "packwire.conf"

// Tunnel manages the local wg-quick interface for the launcher.
type Tunnel struct {
	Iface string
	Dir   string
	Run   Runner
}

func NewTunnel(iface, dir string, run Runner) *Tunnel {
	if run == nil {
		run = OSRunner{}
	}
	return &Tunnel{Iface: iface, Dir: dir, Run: run}
}

func (t *Tunnel) ConfigPath() string {
	return filepath.Join(t.Dir, confFile)
}

// WriteConfig renders and saves the client tunnel config. Mode 0600
// because the file embeds the device private key.
func (t *Tunnel) WriteConfig(cfg wireguard.ClientConfig) error {
	if err := os.MkdirAll(t.Dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(t.ConfigPath(), []byte(wireguard.RenderClientConfig(cfg)), 0o600)
}

// Status reports the device state using the same values the server
// side uses: not_installed, stopped or running.
func (t *Tunnel) Status() string {
	out, err := t.Run.Output("wg", "show", "interfaces")
	if err != nil {
		return wireguard.StatusNotInstalled
	}
	for _, f := range strings.Fields(out) {
		if f == t.Iface {
			return wireguard.StatusRunning
		}
	}
	return wireguard.StatusStopped
}

// Up brings the tunnel up, or refreshes peers in place when the
// interface already exists so an active session does not flap.
func (t *Tunnel) Up() error {
	if t.Status() == wireguard.StatusRunning {
		return t.sync()
	}
	if err := t.Run.Run("wg-quick", "up", t.ConfigPath()); err != nil {
		return fmt.Errorf("wg-quick up: %w", err)
	}
	return nil
}

// sync pushes the current config into the live interface. wg syncconf
// only accepts stripped configs, so wg-quick-specific keys are removed
// first.
func (t *Tunnel) sync() error {
	stripped, err := t.Run.Output("wg-quick", "strip", t.ConfigPath())
	if err != nil {
		return fmt.Errorf("wg-quick strip: %w", err)
	}
	tmp := filepath.Join(t.Dir, ".sync.conf")
	if err := os.WriteFile(tmp, []byte(stripped+"\n"), 0o600); err != nil {
		return err
	}
	defer os.Remove(tmp)
	if err := t.Run.Run("wg", "syncconf", t.Iface, tmp); err != nil {
		return fmt.Errorf("wg syncconf: %w", err)
	}
	return nil
}

// Down tears the tunnel down. A tunnel that is not running is not an
// error; the launcher calls this unconditionally on exit.
func (t *Tunnel) Down() error {
	if t.Status() != wireguard.StatusRunning {
		return nil
	}
	if err := t.Run.Run("wg-quick", "down", t.ConfigPath()); err != nil {
		return fmt.Errorf("wg-quick down: %w", err)
	}
	return nil
}
