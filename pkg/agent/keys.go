package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

const (
	privateKeyFile = "private.key"
	publicKeyFile  = "public.key"
)

// EnsureKeypair loads the device keypair, generating one on first run.
// The private key never leaves dir; registration only sends the public
// half.
func EnsureKeypair(dir string) (wgtypes.Key, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return wgtypes.Key{}, err
	}
	path := filepath.Join(dir, privateKeyFile)
	if data, err := os.ReadFile(path); err == nil {
		key, err := wgtypes.ParseKey(strings.TrimSpace(string(data)))
		if err != nil {
			return wgtypes.Key{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return key, nil
	}
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return wgtypes.Key{}, err
	}
	if err := os.WriteFile(path, []byte(key.String()+"\n"), 0o600); err != nil {
		return wgtypes.Key{}, err
	}
	// Public half kept alongside for quick inspection.
	pub := key.PublicKey().String() + "\n"
	if err := os.WriteFile(filepath.Join(dir, publicKeyFile), []byte(pub), 0o644); err != nil {
		return wgtypes.Key{}, err
	}
	return key, nil
}

// HasKeypair reports whether a device key already exists in dir.
func HasKeypair(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, privateKeyFile))
	return err == nil
}
