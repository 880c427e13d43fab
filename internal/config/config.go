// Package config loads the oracle pusher configuration from a JSON or YAML
// file, applies environment overrides and validates the result into domain
// specs.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
	"github.com/archon-research/oracle-pusher/internal/pkg/env"
)

// Environment variables read by Load.
const (
	EnvPrivateKey   = "PRIVATE_KEY"
	EnvHermesURL    = "PYTH_HERMES_URL"
	EnvPollInterval = "POLL_INTERVAL_SECONDS"
)

// NetworkConfig is the file representation of a target network.
type NetworkConfig struct {
	Name          string `json:"name" yaml:"name"`
	ChainID       int64  `json:"chain_id" yaml:"chain_id"`
	RPCURL        string `json:"rpc_url" yaml:"rpc_url"`
	PythContract  string `json:"pyth_contract" yaml:"pyth_contract"`
	NativeFeedID  string `json:"native_feed_id" yaml:"native_feed_id"`
	BlockExplorer string `json:"block_explorer" yaml:"block_explorer"`
}

// FeedConfig is the file representation of a price feed.
type FeedConfig struct {
	PriceFeedID        string   `json:"price_feed_id" yaml:"price_feed_id"`
	Symbol             string   `json:"symbol" yaml:"symbol"`
	DeviationThreshold float64  `json:"deviation_threshold" yaml:"deviation_threshold"`
	HeartbeatSeconds   int64    `json:"heartbeat_seconds" yaml:"heartbeat_seconds"`
	Networks           []string `json:"networks" yaml:"networks"`
}

// File mirrors the configuration file layout.
type File struct {
	Networks            []NetworkConfig `json:"networks" yaml:"networks"`
	Feeds               []FeedConfig    `json:"feeds" yaml:"feeds"`
	PythHermesURL       string          `json:"pyth_hermes_url" yaml:"pyth_hermes_url"`
	PollIntervalSeconds int64           `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
}

// Config is the validated runtime configuration.
type Config struct {
	Networks     []entity.NetworkSpec
	Feeds        []entity.FeedSpec
	HermesURL    string
	PollInterval time.Duration

	// PrivateKey signs update transactions on every network. Never log it.
	PrivateKey string
}

// LogValue implements slog.LogValuer and omits the private key.
func (c *Config) LogValue() slog.Value {
	names := make([]string, len(c.Networks))
	for i, n := range c.Networks {
		names[i] = n.Name
	}
	return slog.GroupValue(
		slog.Any("networks", names),
		slog.Int("feeds", len(c.Feeds)),
		slog.String("hermesURL", c.HermesURL),
		slog.Duration("pollInterval", c.PollInterval),
	)
}

// Load reads the file at path, applies environment overrides and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a JSON or YAML document, applies environment overrides and
// validates it.
func Parse(data []byte) (*Config, error) {
	f, err := decode(data)
	if err != nil {
		return nil, entity.NewConfigurationError("", "parsing config: %v", err)
	}

	if err = f.overrideWithEnv(); err != nil {
		return nil, err
	}

	cfg, err := f.Validate()
	if err != nil {
		return nil, err
	}

	key, err := privateKeyFromEnv()
	if err != nil {
		return nil, err
	}
	cfg.PrivateKey = key
	return cfg, nil
}

// decode parses JSON documents with encoding/json, since tab-indented JSON is
// not valid YAML, and everything else with yaml.v3.
func decode(data []byte) (*File, error) {
	var f File
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, err
		}
		return &f, nil
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) overrideWithEnv() error {
	if u := env.Get(EnvHermesURL, ""); u != "" {
		f.PythHermesURL = u
	}
	if raw := env.Get(EnvPollInterval, ""); raw != "" {
		d, err := env.Seconds(EnvPollInterval, 0)
		if err != nil {
			return entity.NewConfigurationError(EnvPollInterval, "not an integer: %q", raw)
		}
		f.PollIntervalSeconds = int64(d / time.Second)
	}
	return nil
}

func privateKeyFromEnv() (string, error) {
	key := strings.TrimPrefix(env.Get(EnvPrivateKey, ""), "0x")
	if key == "" {
		return "", entity.NewConfigurationError(EnvPrivateKey, "environment variable not set")
	}
	if _, err := crypto.HexToECDSA(key); err != nil {
		return "", entity.NewConfigurationError(EnvPrivateKey, "not a valid secp256k1 key")
	}
	return key, nil
}

// Validate checks the file and converts it into domain specs. The first
// problem found is returned as a *entity.ConfigurationError.
func (f *File) Validate() (*Config, error) {
	if len(f.Networks) == 0 {
		return nil, entity.NewConfigurationError("networks", "at least one network is required")
	}
	if len(f.Feeds) == 0 {
		return nil, entity.NewConfigurationError("feeds", "at least one feed is required")
	}
	if f.PythHermesURL == "" {
		return nil, entity.NewConfigurationError("pyth_hermes_url", "must not be empty")
	}
	if _, err := url.ParseRequestURI(f.PythHermesURL); err != nil {
		return nil, entity.NewConfigurationError("pyth_hermes_url", "invalid url %q", f.PythHermesURL)
	}
	if f.PollIntervalSeconds <= 0 {
		return nil, entity.NewConfigurationError("poll_interval_seconds", "must be positive, got %d", f.PollIntervalSeconds)
	}

	networks := make([]entity.NetworkSpec, 0, len(f.Networks))
	declared := make(map[string]bool, len(f.Networks))
	for i, n := range f.Networks {
		spec, err := n.toSpec(i)
		if err != nil {
			return nil, err
		}
		if declared[spec.Name] {
			return nil, entity.NewConfigurationError(fmt.Sprintf("networks[%d].name", i), "duplicate network %q", spec.Name)
		}
		declared[spec.Name] = true
		networks = append(networks, spec)
	}

	feeds := make([]entity.FeedSpec, 0, len(f.Feeds))
	seen := make(map[entity.FeedID]bool, len(f.Feeds))
	for i, fc := range f.Feeds {
		spec, err := fc.toSpec(i, declared)
		if err != nil {
			return nil, err
		}
		if seen[spec.ID] {
			return nil, entity.NewConfigurationError(fmt.Sprintf("feeds[%d].price_feed_id", i), "duplicate feed %s", spec.ID)
		}
		seen[spec.ID] = true
		feeds = append(feeds, spec)
	}

	return &Config{
		Networks:     networks,
		Feeds:        feeds,
		HermesURL:    f.PythHermesURL,
		PollInterval: time.Duration(f.PollIntervalSeconds) * time.Second,
	}, nil
}

func (n NetworkConfig) toSpec(i int) (entity.NetworkSpec, error) {
	field := func(name string) string { return fmt.Sprintf("networks[%d].%s", i, name) }

	if n.Name == "" {
		return entity.NetworkSpec{}, entity.NewConfigurationError(field("name"), "must not be empty")
	}
	if n.ChainID <= 0 {
		return entity.NetworkSpec{}, entity.NewConfigurationError(field("chain_id"), "must be positive, got %d", n.ChainID)
	}
	if n.RPCURL == "" {
		return entity.NetworkSpec{}, entity.NewConfigurationError(field("rpc_url"), "must not be empty")
	}
	if !common.IsHexAddress(n.PythContract) {
		return entity.NetworkSpec{}, entity.NewConfigurationError(field("pyth_contract"), "invalid address %q", n.PythContract)
	}
	oracle := common.HexToAddress(n.PythContract)
	if oracle == (common.Address{}) {
		return entity.NetworkSpec{}, entity.NewConfigurationError(field("pyth_contract"), "must not be the zero address")
	}
	native, err := entity.ParseFeedID(n.NativeFeedID)
	if err != nil {
		return entity.NetworkSpec{}, entity.NewConfigurationError(field("native_feed_id"), "%v", err)
	}

	spec, err := entity.NewNetworkSpec(n.Name, n.ChainID, n.RPCURL, oracle, native, n.BlockExplorer)
	if err != nil {
		return entity.NetworkSpec{}, entity.NewConfigurationError(field("name"), "%v", err)
	}
	return *spec, nil
}

func (fc FeedConfig) toSpec(i int, declared map[string]bool) (entity.FeedSpec, error) {
	field := func(name string) string { return fmt.Sprintf("feeds[%d].%s", i, name) }

	id, err := entity.ParseFeedID(fc.PriceFeedID)
	if err != nil {
		return entity.FeedSpec{}, entity.NewConfigurationError(field("price_feed_id"), "%v", err)
	}
	if fc.Symbol == "" {
		return entity.FeedSpec{}, entity.NewConfigurationError(field("symbol"), "must not be empty")
	}
	if fc.DeviationThreshold < 0 {
		return entity.FeedSpec{}, entity.NewConfigurationError(field("deviation_threshold"), "must be non-negative, got %v", fc.DeviationThreshold)
	}
	if fc.HeartbeatSeconds <= 0 {
		return entity.FeedSpec{}, entity.NewConfigurationError(field("heartbeat_seconds"), "must be positive, got %d", fc.HeartbeatSeconds)
	}
	if len(fc.Networks) == 0 {
		return entity.FeedSpec{}, entity.NewConfigurationError(field("networks"), "feed %s must target at least one network", fc.Symbol)
	}
	for _, name := range fc.Networks {
		if !declared[name] {
			return entity.FeedSpec{}, entity.NewConfigurationError(field("networks"), "feed %s references undeclared network %q", fc.Symbol, name)
		}
	}

	spec, err := entity.NewFeedSpec(id, fc.Symbol, fc.DeviationThreshold, uint64(fc.HeartbeatSeconds), fc.Networks)
	if err != nil {
		return entity.FeedSpec{}, entity.NewConfigurationError(field("price_feed_id"), "%v", err)
	}
	return *spec, nil
}
