package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"packwire/pkg/agent"
	"packwire/pkg/api"
	"packwire/pkg/version"
	"packwire/pkg/wireguard"
)

const defaultIface = "packwire0"

func usage() {
	fmt.Fprint(os.Stderr, `usage: packwire-agent <command> [flags]

commands:
  register   generate a keypair if needed, register with the server, write the tunnel config
  up         bring the tunnel up (wg-quick)
  down       tear the tunnel down
  status     print the tunnel state
  version    print version and exit

run "packwire-agent <command> -h" for command flags
`)
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "register":
		runRegister(args)
	case "up":
		runTunnel(args, func(t *agent.Tunnel) error { return t.Up() })
	case "down":
		runTunnel(args, func(t *agent.Tunnel) error { return t.Down() })
	case "status":
		runStatus(args)
	case "version":
		fmt.Println("packwire agent", version.Build)
	default:
		usage()
	}
}

func runRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	server := fs.String("server", envOr("PACKWIRE_SERVER", "http://127.0.0.1:8080"), "server base URL (env PACKWIRE_SERVER)")
	token := fs.String("token", os.Getenv("PACKWIRE_TOKEN"), "launcher session token (env PACKWIRE_TOKEN)")
	uuid := fs.String("uuid", "", "player uuid")
	name := fs.String("name", "", "player name")
	dir := fs.String("dir", defaultStateDir(), "state directory")
	iface := fs.String("iface", defaultIface, "interface name")
	_ = fs.Parse(args)

	if *uuid == "" || *name == "" {
		log.Fatal("register: -uuid and -name are required")
	}
	key, err := agent.EnsureKeypair(*dir)
	if err != nil {
		log.Fatalf("keypair: %v", err)
	}
	resp, err := agent.NewClient(*server, *token).Register(api.RegisterRequest{
		UUID:      *uuid,
		Username:  *name,
		PublicKey: key.PublicKey().String(),
	})
	if err != nil {
		log.Fatalf("register: %v", err)
	}
	tun := agent.NewTunnel(*iface, *dir, nil)
	err = tun.WriteConfig(wireguard.ClientConfig{
		PrivateKey: key.String(),
		Address:    resp.AssignedIP + "/32",
		DNS:        resp.DNS,
		ServerKey:  resp.ServerPublicKey,
		Endpoint:   resp.Endpoint,
		AllowedIPs: resp.Subnet,
		Keepalive:  25,
	})
	if err != nil {
		log.Fatalf("write config: %v", err)
	}
	log.Printf("registered as %s, config written to %s", resp.AssignedIP, tun.ConfigPath())
}

func runTunnel(args []string, op func(*agent.Tunnel) error) {
	fs := flag.NewFlagSet("tunnel", flag.ExitOnError)
	dir := fs.String("dir", defaultStateDir(), "state directory")
	iface := fs.String("iface", defaultIface, "interface name")
	_ = fs.Parse(args)

	tun := agent.NewTunnel(*iface, *dir, nil)
	if err := op(tun); err != nil {
		log.Fatal(err)
	}
	log.Printf("tunnel %s: %s", tun.Iface, tun.Status())
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dir := fs.String("dir", defaultStateDir(), "state directory")
	iface := fs.String("iface", defaultIface, "interface name")
	_ = fs.Parse(args)

	tun := agent.NewTunnel(*iface, *dir, nil)
	fmt.Println(tun.Status())
	if agent.HasKeypair(*dir) {
		fmt.Println("keypair: present")
	} else {
		fmt.Println("keypair: missing (run register)")
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "packwire")
	}
	return "./packwire"
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
