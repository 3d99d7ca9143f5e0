// Package config resolves the endpoint list, the requested operation and the
// connection settings of a dlqm run.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"
)

// Environment variables read by Load
const (
	EnvEndpoints = "ARTEMIS_URI"
	EnvOperation = "REQUESTED_OPERATION"
	EnvConfig    = "DLQM_CONFIG"
	EnvUser      = "DLQM_USER"
	EnvPassword  = "DLQM_PASSWORD"
	EnvLogFormat = "DLQM_LOG_FORMAT"
	EnvTimeout   = "DLQM_TIMEOUT"
)

const (
	DefaultReceiveTimeout = time.Second
	DefaultBrowseLimit    = 10000

	// MaxBrowseLimit is the largest AMQP link credit
	MaxBrowseLimit = math.MaxInt32
)

var (
	ErrMissingEndpoints = errors.New("CLI option artemisUri or env variable " + EnvEndpoints + " is not set")
	ErrMissingOperation = errors.New("CLI option operation or env variable " + EnvOperation + " is not set")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidValue     = errors.New("invalid value")
)

// Error is a configuration problem found before any broker is contacted
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration error in %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TLS holds TLS connection parameters
type TLS struct {
	Enabled    bool   `yaml:"enabled"`
	CACert     string `yaml:"caCert"`   // Path to CA certificate file
	ClientCert string `yaml:"cert"`     // Path to client certificate file
	ClientKey  string `yaml:"keyFile"`  // Path to client key file
	Insecure   bool   `yaml:"insecure"` // Skip certificate verification
}

// Config is everything a run needs. It is passed by value; nothing below the
// command layer reads the environment.
type Config struct {
	Endpoints      []string      `yaml:"endpoints"`
	Operation      Operation     `yaml:"operation"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	TLS            TLS           `yaml:"tls"`
	ReceiveTimeout time.Duration `yaml:"receiveTimeout"`
	BrowseLimit    int           `yaml:"browseLimit"`
	ManagementPort int           `yaml:"managementPort"` // 0 picks the driver's default
	Parallel       bool          `yaml:"parallel"`
	LogFormat      string        `yaml:"logFormat"`
	Verbose        bool          `yaml:"verbose"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		ReceiveTimeout: DefaultReceiveTimeout,
		BrowseLimit:    DefaultBrowseLimit,
		LogFormat:      "text",
	}
}

// Load starts from the defaults, overlays the YAML file at path (or the file named by
// DLQM_CONFIG when path is empty) and then the environment. Command-line flags are
// applied by the caller on top of the result.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = getenv(EnvConfig)
	}
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := ApplyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto cfg
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Error{Field: "config", Err: err}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &Error{Field: "config", Err: fmt.Errorf("parsing %s: %w", path, err)}
	}
	return nil
}

// LoadDotEnv loads a .env file into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Field: "env", Err: fmt.Errorf("loading %s: %w", path, err)}
	}
	return nil
}

// ApplyEnv overlays every set environment variable onto cfg
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv(EnvEndpoints); v != "" {
		cfg.Endpoints = ParseEndpoints(v)
	}
	if v := getenv(EnvOperation); v != "" {
		cfg.Operation = Operation(v)
	}
	if v := getenv(EnvUser); v != "" {
		cfg.User = v
	}
	if v := getenv(EnvPassword); v != "" {
		cfg.Password = v
	}
	if v := getenv(EnvLogFormat); v != "" {
		cfg.LogFormat = v
	}
	if v := getenv(EnvTimeout); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return &Error{Field: EnvTimeout, Err: err}
		}
		cfg.ReceiveTimeout = d
	}
	return nil
}

// ParseEndpoints splits a comma separated endpoint list, dropping blanks
func ParseEndpoints(s string) []string {
	var endpoints []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			endpoints = append(endpoints, e)
		}
	}
	return endpoints
}

// Seconds converts a CLI timeout in seconds to a duration
func Seconds(s float32) time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

func parseSeconds(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is neither a duration nor a number of seconds", ErrInvalidValue, s)
	}
	return Seconds(float32(f)), nil
}

// Validate reports the first problem that would stop a run
func (c Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return &Error{Field: "artemisUri", Err: ErrMissingEndpoints}
	}
	if slices.Contains(c.Endpoints, "") {
		return &Error{Field: "artemisUri", Err: fmt.Errorf("%w: empty endpoint", ErrInvalidValue)}
	}
	if c.Operation == "" {
		return &Error{Field: "operation", Err: ErrMissingOperation}
	}
	if !c.Operation.Valid() {
		return &Error{Field: "operation", Err: fmt.Errorf("%w %q (want one of %s)", ErrUnknownOperation, c.Operation, operationList())}
	}
	if c.ReceiveTimeout <= 0 {
		return &Error{Field: "timeout", Err: fmt.Errorf("%w: must be positive, got %s", ErrInvalidValue, c.ReceiveTimeout)}
	}
	if c.BrowseLimit <= 0 || c.BrowseLimit > MaxBrowseLimit {
		return &Error{Field: "browse-limit", Err: fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidValue, MaxBrowseLimit, c.BrowseLimit)}
	}
	if c.ManagementPort < 0 || c.ManagementPort > 65535 {
		return &Error{Field: "management-port", Err: fmt.Errorf("%w: %d is not a port", ErrInvalidValue, c.ManagementPort)}
	}
	return nil
}
