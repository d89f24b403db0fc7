// Package main implements the Vector Racer network core server.
//
// Architecture Overview:
// - TLS-wrapped TCP control channel: newline-delimited JSON commands
// - UDP datagram channel: length-prefixed, AES-256-CBC encrypted once a
//   session authenticates
// - Session lifecycle: Connected -> Authenticated -> InRoom -> InGame
// - Rooms are created and joined explicitly by clients (CREATE_ROOM /
//   JOIN_ROOM); there is no automatic matchmaking queue
//
// Connection Flow:
// 1. Client dials the control port over TLS, server replies CONNECTED|<id>
// 2. Client sends NAME (optionally with a password) or AUTHENTICATE
// 3. Client sends CREATE_ROOM or JOIN_ROOM
// 4. Host sends START_GAME, server assigns spawn positions
// 5. Clients exchange UPDATE/INPUT datagrams over UDP, relayed by the server
package main

import (
	"log"
	"os"
	"strconv"

	"github.com/vectorrace/racecore/config"
	"github.com/vectorrace/racecore/internal/certs"
	"github.com/vectorrace/racecore/internal/eventlog"
	"github.com/vectorrace/racecore/internal/server"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := loadConfig()
	sink := eventlog.NewLoggerSink()

	identity, err := certs.LoadOrGenerate(cfg.CertBundlePath, cfg.Hostname, cfg.PublicIP)
	if err != nil {
		log.Fatalf("Certificate provisioning failed: %v", err)
	}

	srv := server.New(cfg, identity.TLSConfig(), sink)

	log.Printf("=================================")
	log.Printf("  Vector Racer Network Core")
	log.Printf("=================================")
	log.Printf("  Host: %s", cfg.Host)
	log.Printf("  Control Port: %d", cfg.ControlPort)
	log.Printf("  Datagram Port: %d", cfg.DatagramPort)
	log.Printf("  Max Players/Room: %d", cfg.MaxPlayersPerRoom)
	log.Printf("  Control Rate Limit: %d msg/s", cfg.ControlRateLimit)
	log.Printf("  Datagram Rate Limit: %d pkt/s", cfg.DatagramRateLimit)
	log.Printf("=================================")

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// loadConfig reads configuration from environment variables, falling
// back to the defaults in config.DefaultServerConfig.
func loadConfig() *config.ServerConfig {
	cfg := config.DefaultServerConfig()

	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("CONTROL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.ControlPort = p
		}
	}
	if port := os.Getenv("DATAGRAM_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.DatagramPort = p
		}
	}
	if hostname := os.Getenv("CERT_HOSTNAME"); hostname != "" {
		cfg.Hostname = hostname
	}
	if ip := os.Getenv("PUBLIC_IP"); ip != "" {
		cfg.PublicIP = ip
	}
	if path := os.Getenv("CERT_BUNDLE_PATH"); path != "" {
		cfg.CertBundlePath = path
	}

	return cfg
}
