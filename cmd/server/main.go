package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/op/go-logging"

	"packwire/pkg/api"
	"packwire/pkg/config"
	"packwire/pkg/db"
	"packwire/pkg/nettest"
	"packwire/pkg/store"
	"packwire/pkg/version"
	"packwire/pkg/vpn"
	"packwire/pkg/wireguard"
)

var log = logging.MustGetLogger("MAIN")

func main() {
	cfg := config.Load()

	// Flags override the environment for quick local runs.
	addr := flag.String("addr", cfg.Addr, "listen address")
	storeType := flag.String("store", cfg.Store, "peer store backend: sqlite|memory|consul (consul requires build tag consul)")
	dataDir := flag.String("data-dir", cfg.DataDir, "data directory")
	iface := flag.String("iface", cfg.WGInterface, "wireguard interface name")
	noAuth := flag.Bool("no-auth", !cfg.RequireAuth, "disable JWT checks on admin endpoints")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("packwire server", version.Build)
		return
	}

	cfg.Addr = *addr
	cfg.Store = *storeType
	cfg.DataDir = *dataDir
	cfg.WGInterface = *iface
	cfg.RequireAuth = !*noAuth

	config.SetupLogging(cfg.LogDir, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	var peerStore store.PeerStore
	var err error
	switch cfg.Store {
	case "sqlite":
		peerStore, err = store.NewSQLiteStore(filepath.Join(cfg.DataDir, "peers.db"))
		if err != nil {
			log.Fatalf("open peer store: %v", err)
		}
	case "memory":
		peerStore = store.NewMemoryStore()
	case "consul":
		peerStore = store.NewConsulStore(cfg.ConsulAddr)
	}
	defer peerStore.Close()

	gormDB, err := db.Init(cfg.DataDir)
	if err != nil {
		log.Fatalf("open account database: %v", err)
	}

	tunnel := wireguard.NewController(cfg.WGInterface)
	hub := api.NewEventHub()
	hub.RequireAuth = cfg.RequireAuth

	svc, err := vpn.NewService(peerStore, tunnel, hub, vpn.Config{
		Subnet:    cfg.WGSubnet,
		Endpoint:  cfg.WGEndpoint,
		DNS:       cfg.WGDNS,
		Threshold: cfg.OnlineThreshold,
	})
	if err != nil {
		log.Fatalf("vpn service: %v", err)
	}

	mux := http.NewServeMux()
	api.RegisterBaseRoutes(mux)
	(&api.AuthHandler{DB: gormDB}).RegisterRoutes(mux)
	(&api.VPNHandler{Service: svc, Store: peerStore, RequireAuth: cfg.RequireAuth}).RegisterRoutes(mux)
	(&api.DiagnoseHandler{Service: svc, Store: peerStore, Tunnel: tunnel, RequireAuth: cfg.RequireAuth}).RegisterRoutes(mux)
	api.NewTrackerHandler(cfg.TrackerSecret).RegisterRoutes(mux)
	hub.RegisterRoutes(mux)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	monitor := vpn.NewMonitor(peerStore, tunnel, hub, cfg.MonitorInterval, cfg.OnlineThreshold)
	go monitor.Run(ctx)

	if cfg.NettestAddr != "" {
		go func() {
			if err := nettest.NewServer(cfg.NettestAddr).Run(ctx); err != nil {
				log.Errorf("network test server: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	tlsCfg, err := api.ServerTLSConfig(cfg.TLSCert, cfg.TLSKey, cfg.TLSClientCA)
	if err != nil {
		log.Fatalf("build TLS config: %v", err)
	}

	go func() {
		<-ctx.Done()
		shutCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutCtx)
	}()

	log.Noticef("packwire server %s listening on %s (store=%s device=%s)",
		version.Build, cfg.Addr, cfg.Store, tunnel.DeviceStatus())
	if tlsCfg != nil {
		srv.TLSConfig = tlsCfg
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
