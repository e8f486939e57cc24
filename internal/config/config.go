// Package config centralizes runtime configuration for archwall. It loads a
// JSON configuration file and exposes a process-wide configuration with
// sensible defaults. Tests and development builds will use defaults when the
// file is not present. Operators point CONFIG_FILE at their own file.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Config holds configurable options for the archwall client.
type Config struct {
	// Backend selects the ledger session implementation: comet, solana or local.
	Backend string `json:"backend"`
	// Endpoint is the ledger RPC address (or a cluster moniker for solana).
	Endpoint string `json:"endpoint"`
	// Commitment is one of processed, confirmed, finalized.
	Commitment string `json:"commitment"`
	// ProgramID is the base58 id of the list program (solana backend only).
	ProgramID string `json:"program_id"`

	AccountKeyFile string `json:"account_key_file"`
	WalletKeyFile  string `json:"wallet_key_file"`
	TrustDBFile    string `json:"trust_db_file"`

	Port        int    `json:"port"`
	LogLevel    string `json:"log_level"`
	AutoApprove bool   `json:"auto_approve"`

	// OperationTimeout bounds each ledger round trip. Zero disables it.
	OperationTimeout Duration `json:"operation_timeout"`
	// PollInterval is how often signature status is polled while waiting
	// for the configured commitment.
	PollInterval Duration `json:"poll_interval"`

	// ABCISocket is the address walld listens on for a CometBFT node.
	ABCISocket string `json:"abci_socket"`
}

// Duration is a time.Duration that reads from JSON strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts either a duration string or integer nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		d.Duration = v
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	d.Duration = time.Duration(n)
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

var cfg *Config

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		Backend:          "comet",
		Endpoint:         "http://localhost:26657",
		Commitment:       "confirmed",
		AccountKeyFile:   "list_account.pem",
		WalletKeyFile:    "wallet.pem",
		TrustDBFile:      "trust.db",
		Port:             8080,
		LogLevel:         "info",
		AutoApprove:      false,
		OperationTimeout: Duration{60 * time.Second},
		PollInterval:     Duration{500 * time.Millisecond},
		ABCISocket:       "unix://walld.sock",
	}
}

// LoadConfig reads a JSON file at path. If the file does not exist or
// cannot be parsed, LoadConfig returns defaults (and no error) so that the
// application can run in development with minimal friction. The PORT
// environment variable overrides the port in both cases.
func LoadConfig(path string) (*Config, error) {
	def := Defaults()

	c, keys, ok := readFile(path)
	if !ok {
		cfg = applyEnv(def)
		return cfg, nil
	}

	// merge defaults for any zero-value fields
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.Endpoint == "" {
		c.Endpoint = def.Endpoint
	}
	if c.Commitment == "" {
		c.Commitment = def.Commitment
	}
	if c.AccountKeyFile == "" {
		c.AccountKeyFile = def.AccountKeyFile
	}
	if c.WalletKeyFile == "" {
		c.WalletKeyFile = def.WalletKeyFile
	}
	if c.TrustDBFile == "" {
		c.TrustDBFile = def.TrustDBFile
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	// an explicit zero timeout disables the per-operation deadline
	if _, set := keys["operation_timeout"]; !set {
		c.OperationTimeout = def.OperationTimeout
	}
	if c.PollInterval.Duration == 0 {
		c.PollInterval = def.PollInterval
	}
	if c.ABCISocket == "" {
		c.ABCISocket = def.ABCISocket
	}

	cfg = applyEnv(c)
	return cfg, nil
}

// readFile decodes the config file and reports which top-level keys it set.
func readFile(path string) (*Config, map[string]json.RawMessage, bool) {
	if path == "" {
		return nil, nil, false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, false
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, nil, false
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return nil, nil, false
	}
	return &c, keys, true
}

func applyEnv(c *Config) *Config {
	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 && port <= 65535 {
			c.Port = port
		}
	}
	return c
}

// Get returns the loaded configuration. If LoadConfig hasn't been called
// yet, it loads the file named by CONFIG_FILE (or defaults).
func Get() *Config {
	if cfg == nil {
		LoadConfig(os.Getenv("CONFIG_FILE"))
	}
	return cfg
}
