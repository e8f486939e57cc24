package program

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// InitHome initializes a CometBFT home directory with config and genesis
// files unless it already has them. It runs: `cometbft init --home <home>`
func InitHome(home string) error {
	if home == "" {
		home = DefaultHome()
	}

	if _, err := os.Stat(filepath.Join(home, "config", "config.toml")); err == nil {
		return nil
	}

	cmd := exec.Command("cometbft", "init", "--home", home)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to initialize CometBFT: %w", err)
	}
	return nil
}

// NodeCommand returns the command that starts a CometBFT node wired to the
// list program listening on socketAddr.
func NodeCommand(home, socketAddr string) *exec.Cmd {
	if home == "" {
		home = DefaultHome()
	}
	if socketAddr == "" {
		socketAddr = "unix://walld.sock"
	}

	cmd := exec.Command("cometbft", "node",
		"--home", home,
		"--proxy_app", socketAddr,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// DefaultHome returns CMTHOME or ~/.cometbft.
func DefaultHome() string {
	if home := os.Getenv("CMTHOME"); home != "" {
		return home
	}
	return filepath.Join(os.Getenv("HOME"), ".cometbft")
}
