package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"flowforge/config"
	"flowforge/executors"
	"flowforge/runtime"
	"flowforge/secrets"
	"flowforge/server"
	"flowforge/store/memory"
	"flowforge/store/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	var (
		store  runtime.Store
		ledger runtime.CreditLedger
	)
	if cfg.Postgres.ConnectionString != "" {
		pg, err := postgres.Open(cfg.Postgres)
		if err != nil {
			log.Fatalf("Error connecting to postgres: %v", err)
		}
		defer pg.Close()
		if err := pg.Migrate(context.Background()); err != nil {
			log.Fatalf("Error migrating schema: %v", err)
		}
		store = pg
		ledger = postgres.NewLedger(pg)
		logger.Info("using postgres store")
	} else {
		store = memory.NewStore()
		ledger = memory.NewLedger()
		logger.Info("using in-memory store")
	}

	cipher, err := secrets.NewCipher(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("Error initializing cipher: %v", err)
	}

	registry := executors.NewRegistry(cfg.Executors, secrets.NewCredentialSource(store, cipher))
	runner := runtime.NewRunner(logger, store, ledger, registry)

	g := gin.Default()
	server.New(logger, store, ledger, runner, cipher).Routes(g)

	if err := g.Run(cfg.Addr); err != nil {
		log.Fatalf("Error running server: %v", err)
	}
}
