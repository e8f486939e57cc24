// Command walld hosts the list program as an ABCI application for a
// CometBFT node. With -node it also initializes and launches the node.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"archwall.mini/aw/internal/config"
	"archwall.mini/aw/internal/logger"
	"archwall.mini/aw/internal/program"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "path to the JSON configuration file")
	home := flag.String("home", program.DefaultHome(), "CometBFT home directory")
	runNode := flag.Bool("node", false, "initialize and run a CometBFT node against this program")
	flag.Parse()

	cfg, _ := config.LoadConfig(*configFile)
	log := logger.NewLogger(cfg.LogLevel, zerolog.ConsoleWriter{Out: os.Stderr})

	app := program.NewApp(log)
	srv, err := program.NewServer(app, cfg.ABCISocket)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create ABCI server")
	}
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start ABCI server")
	}
	defer srv.Stop()
	log.Info().Str("socket", srv.SocketPath()).Msg("List program listening")

	nodeExit := make(chan error, 1)
	if *runNode {
		if err := program.InitHome(*home); err != nil {
			log.Fatal().Err(err).Str("home", *home).Msg("Failed to initialize CometBFT home")
		}
		cmd := program.NodeCommand(*home, cfg.ABCISocket)
		if err := cmd.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start CometBFT node")
		}
		log.Info().Int("pid", cmd.Process.Pid).Str("home", *home).Msg("CometBFT node started")
		go func() { nodeExit <- cmd.Wait() }()
		defer cmd.Process.Signal(syscall.SIGTERM)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-nodeExit:
		log.Error().Err(err).Msg("CometBFT node exited")
	}
	log.Info().Msg("Shutting down...")
}
