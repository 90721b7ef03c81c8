package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("CONF")

// Config holds everything the server binary needs. All fields come
// from the environment (a .env file in the working directory is loaded
// first) so the controller can run under systemd or in a container
// without a config file.
type Config struct {
	Addr    string
	DataDir string
	LogDir  string

	LogLevel string

	Store      string
	ConsulAddr string

	WGInterface string
	WGSubnet    string
	WGEndpoint  string
	WGDNS       string

	OnlineThreshold time.Duration
	MonitorInterval time.Duration

	NettestAddr string

	TrackerSecret string

	TLSCert     string
	TLSKey      string
	TLSClientCA string

	RequireAuth bool
}

// Load reads the environment and applies defaults. Secrets left at
// their defaults are warned about but do not fail startup so local
// experiments stay frictionless.
func Load() Config {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Addr:            getenv("PACKWIRE_ADDR", ":8080"),
		DataDir:         getenv("PACKWIRE_DATA_DIR", "./data"),
		LogDir:          os.Getenv("LOG_DIR"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		Store:           getenv("PACKWIRE_STORE", "sqlite"),
		ConsulAddr:      os.Getenv("CONSUL_ADDR"),
		WGInterface:     getenv("WG_INTERFACE", "wg0"),
		WGSubnet:        getenv("WG_SUBNET", "10.8.0.0/24"),
		WGEndpoint:      os.Getenv("WG_ENDPOINT"),
		WGDNS:           os.Getenv("WG_DNS"),
		OnlineThreshold: getduration("ONLINE_THRESHOLD", 180*time.Second),
		MonitorInterval: getduration("MONITOR_INTERVAL", 10*time.Second),
		NettestAddr:     getenv("NETTEST_ADDR", ":25567"),
		TrackerSecret:   os.Getenv("TRACKER_SECRET"),
		TLSCert:         os.Getenv("TLS_CERT"),
		TLSKey:          os.Getenv("TLS_KEY"),
		TLSClientCA:     os.Getenv("TLS_CLIENT_CA"),
		RequireAuth:     getenv("REQUIRE_AUTH", "1") != "0",
	}

	if os.Getenv("JWT_SECRET") == "" {
		log.Warning("JWT_SECRET is not set, using the built-in default; admin tokens are forgeable")
	}
	if cfg.TrackerSecret == "" {
		log.Warning("TRACKER_SECRET is not set, tracker updates are unauthenticated")
	}
	if cfg.WGEndpoint == "" {
		log.Warning("WG_ENDPOINT is not set, client configs will omit the server endpoint")
	}
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getduration accepts either a Go duration string ("90s", "3m") or a
// bare number of seconds.
func getduration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	log.Warningf("invalid %s=%q, using %s", key, v, def)
	return def
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	switch c.Store {
	case "sqlite", "memory", "consul":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("TLS_CERT and TLS_KEY must be set together")
	}
	return nil
}
