package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEventSignature is the bridge lock event watched when none is configured.
const DefaultEventSignature = "TokensLocked(address,uint256,address,address,uint256,bytes32)"

// Config holds the YAML configuration.
type Config struct {
	Version     int               `yaml:"version"`
	Source      SourceConfig      `yaml:"source"`
	Destination DestinationConfig `yaml:"destination"`
	Relayer     RelayerConfig     `yaml:"relayer"`
	State       StateConfig       `yaml:"state"`
}

// SourceConfig describes the watched chain and contract.
type SourceConfig struct {
	RPCURL   string `yaml:"rpc_url"`
	Contract string `yaml:"contract"`
	Event    string `yaml:"event"`
	ABIPath  string `yaml:"abi_path"`
}

// DestinationConfig describes the relay target API.
type DestinationConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Timeout  Duration `yaml:"timeout"`
}

// RelayerConfig holds loop timing, finality, and retry settings.
type RelayerConfig struct {
	PollInterval  Duration `yaml:"poll_interval"`
	Confirmations uint64   `yaml:"confirmations"`
	ReorgMargin   uint64   `yaml:"reorg_margin"`
	MaxAttempts   int      `yaml:"max_attempts"`
	BackoffBase   Duration `yaml:"backoff_base"`
	BackoffMax    Duration `yaml:"backoff_max"`
}

// StateConfig holds paths for durable relayer state.
type StateConfig struct {
	CheckpointPath string `yaml:"checkpoint_path"`
	JournalPath    string `yaml:"journal_path"`
}

// Duration parses YAML strings like "15s" via time.ParseDuration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, applies defaults, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

func (c *Config) applyDefaults() {
	if c.Source.Event == "" {
		c.Source.Event = DefaultEventSignature
	}
	if c.Destination.Timeout == 0 {
		c.Destination.Timeout = Duration(10 * time.Second)
	}
	if c.Relayer.PollInterval == 0 {
		c.Relayer.PollInterval = Duration(15 * time.Second)
	}
	if c.Relayer.MaxAttempts == 0 {
		c.Relayer.MaxAttempts = 5
	}
	if c.Relayer.BackoffBase == 0 {
		c.Relayer.BackoffBase = Duration(time.Second)
	}
	if c.Relayer.BackoffMax == 0 {
		c.Relayer.BackoffMax = Duration(time.Minute)
	}
	if c.State.CheckpointPath == "" {
		c.State.CheckpointPath = "relayer-state.json"
	}
	if c.State.JournalPath == "" {
		c.State.JournalPath = "relayer.db"
	}
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := c.Destination.Validate(); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if err := c.Relayer.Validate(); err != nil {
		return fmt.Errorf("relayer: %w", err)
	}
	return nil
}

func (s *SourceConfig) Validate() error {
	if s.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if s.Contract == "" {
		return errors.New("contract is required")
	}
	if !common.IsHexAddress(s.Contract) {
		return fmt.Errorf("contract %q is not a hex address", s.Contract)
	}
	if common.HexToAddress(s.Contract) == (common.Address{}) {
		return errors.New("contract is the zero address; set a real bridge address")
	}
	if !strings.Contains(s.Event, "(") || !strings.HasSuffix(s.Event, ")") {
		return fmt.Errorf("event %q is not a full signature", s.Event)
	}
	return nil
}

func (d *DestinationConfig) Validate() error {
	if d.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	u, err := url.Parse(d.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint %q must be http(s)", d.Endpoint)
	}
	if d.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

func (r *RelayerConfig) Validate() error {
	if r.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if r.MaxAttempts < 1 {
		return errors.New("max_attempts must be at least 1")
	}
	if r.BackoffBase <= 0 || r.BackoffMax <= 0 {
		return errors.New("backoff_base and backoff_max must be positive")
	}
	if r.BackoffBase.Std() > r.BackoffMax.Std() {
		return errors.New("backoff_base must not exceed backoff_max")
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
