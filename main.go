// Package main is the entry point for archwall (aw). It connects a wallet,
// opens a ledger session and serves the dashboard for the shared image list.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"archwall.mini/aw/internal/client"
	"archwall.mini/aw/internal/config"
	"archwall.mini/aw/internal/identity"
	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/logger"
	"archwall.mini/aw/internal/program"
	"archwall.mini/aw/internal/session"
	"archwall.mini/aw/internal/trust"
	"archwall.mini/aw/internal/types"
	"archwall.mini/aw/internal/wallet"
	"archwall.mini/aw/internal/web"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "path to the JSON configuration file")
	flag.Parse()

	cfg, _ := config.LoadConfig(*configFile)

	ring := logger.NewRing(200) // Keep last 200 messages
	log := logger.NewLogger(cfg.LogLevel, zerolog.ConsoleWriter{Out: os.Stderr}, ring)
	log.Info().Str("version", types.Version).Msg("archwall starting...")

	opts, err := session.OptionsFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid ledger configuration")
	}
	if opts.Backend == session.BackendLocal {
		// every session shares one in-process ledger
		opts.App = program.NewApp(log)
	}

	account, err := identity.LoadOrCreateIdentity(cfg.AccountKeyFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.AccountKeyFile).Msg("Failed to load list account key")
	}
	log.Info().Str("account", account.Address()).Msg("List account key loaded")

	store, err := trust.NewStore(cfg.TrustDBFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize trust store")
	}
	defer store.Close()

	var approver wallet.Approver = wallet.NewPromptApprover(os.Stdin, os.Stderr)
	if cfg.AutoApprove {
		log.Warn().Msg("Auto-approve enabled: connections and signatures will not prompt")
		approver = wallet.AutoApprover
	}
	keyfile := wallet.NewKeyfileWallet(cfg.WalletKeyFile, store, approver, log)
	adapter := wallet.NewAdapter(keyfile.Capability(), log)
	if !adapter.IsAvailable() {
		log.Warn().Str("path", cfg.WalletKeyFile).Msg("No wallet key found; generate one with keygen")
	}

	machine := client.New(client.Options{
		Wallet:  adapter,
		Account: account,
		Open: func(id *wallet.Identity) ledger.Session {
			return session.Open(id, opts, log)
		},
		OperationTimeout: cfg.OperationTimeout.Duration,
		Log:              log,
	})

	if err := ensurePortAvailable(cfg.Port); err != nil {
		log.Fatal().Err(err).Int("port", cfg.Port).Msg("Port unavailable")
	}
	server, err := web.NewServer(web.Options{
		Machine: machine,
		Store:   store,
		Ring:    ring,
		Port:    cfg.Port,
		Log:     log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize web server")
	}

	serverErrors := server.Start()
	log.Info().Msgf("Web dashboard available at http://localhost:%d", cfg.Port)

	// silent reconnect of a previously trusted wallet
	go func() {
		if err := machine.Start(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Automatic reconnect failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-serverErrors:
		if err != nil {
			log.Error().Err(err).Msg("Web server exited")
		}
	}

	log.Info().Msg("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Web server shutdown")
	}
	if path, err := store.BackupCurrent(0); err != nil {
		log.Warn().Err(err).Msg("Trust backup failed")
	} else {
		log.Info().Str("path", path).Msg("Trust database backed up")
	}
}

func ensurePortAvailable(port int) error {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return listener.Close()
}
