package main

import (
	"flag"
	"log"
	"path/filepath"

	"github.com/Hussein-Mazeh/nostr-identity/internal/config"
	"github.com/Hussein-Mazeh/nostr-identity/internal/db"
)

func main() {
	configPath := flag.String("config", "", "config file")
	dataDir := flag.String("data-dir", "", "identity data directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	store, err := db.Open(filepath.Join(cfg.DataDir, "identity.db"))
	if err != nil {
		log.Fatalf("open identity database: %v", err)
	}
	defer store.Close()

	log.Printf("identity database ready at %s", store.Path())
}
