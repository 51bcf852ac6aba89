// Package config provides configuration management for btmgen.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/solatis/btmgen/internal/scan"
	"github.com/solatis/btmgen/internal/types"
	"github.com/solatis/btmgen/internal/writer"
)

// GenerateConfig holds everything one generation run needs.
type GenerateConfig struct {
	SrcDirs         []string
	OutputDir       string
	IncludeJava     bool
	PkgPrefixes     []string
	ExcludePkgs     []string
	IncludePatterns []string
	ExcludePatterns []string

	HelperFQCN              string
	SafeEvalFQCN            string
	EntryExit               bool
	TrackedVars             []string
	SafeMode                bool
	ForceHelperForWhitelist bool
	MinBranchesPerMethod    int

	MaxStringLength  int
	MaxFileBytes     int64
	Parallelism      int
	RespectGitignore bool

	IncludeTimestamp bool
	Shards           int
	Gzip             bool
	FilePrefix       string

	RotateMaxBytes      int64
	RotateInterval      time.Duration
	FlushThresholdBytes int64
	FlushInterval       time.Duration
	WriterThreadSafe    bool
}

// DefaultGenerateConfig returns configuration with default values.
func DefaultGenerateConfig() *GenerateConfig {
	return &GenerateConfig{
		SrcDirs:             []string{"src/main/kotlin"},
		OutputDir:           "build/forensics",
		HelperFQCN:          types.DefaultHelperFQCN,
		SafeEvalFQCN:        types.DefaultSafeEvalFQCN,
		EntryExit:           true,
		MaxFileBytes:        types.DefaultMaxFileBytes,
		Parallelism:         runtime.NumCPU(),
		RespectGitignore:    true,
		Shards:              runtime.NumCPU(),
		FilePrefix:          types.DefaultFilePrefix,
		RotateMaxBytes:      4 * 1024 * 1024,
		FlushThresholdBytes: 64 * 1024,
		FlushInterval:       2 * time.Second,
	}
}

// Validate rejects values no run could work with. Errors wrap
// types.ErrInvalidConfig.
func (c *GenerateConfig) Validate() error {
	switch {
	case len(c.SrcDirs) == 0:
		return invalid("src_dirs must not be empty")
	case strings.TrimSpace(c.OutputDir) == "":
		return invalid("output_dir must not be empty")
	case strings.TrimSpace(c.HelperFQCN) == "":
		return invalid("helper_fqcn must not be empty")
	case c.SafeMode && strings.TrimSpace(c.SafeEvalFQCN) == "":
		return invalid("safe_eval_fqcn must not be empty in safe mode")
	case c.Shards < 1:
		return invalid("shards must be at least 1, got %d", c.Shards)
	case c.Parallelism < 1:
		return invalid("parallelism must be at least 1, got %d", c.Parallelism)
	case c.MinBranchesPerMethod < 0:
		return invalid("min_branches_per_method must not be negative, got %d", c.MinBranchesPerMethod)
	case c.MaxStringLength < 0:
		return invalid("max_string_length must not be negative, got %d", c.MaxStringLength)
	case c.MaxFileBytes < 0:
		return invalid("max_file_bytes must not be negative, got %d", c.MaxFileBytes)
	case c.RotateMaxBytes < 0:
		return invalid("rotate_max_bytes must not be negative, got %d", c.RotateMaxBytes)
	case c.RotateInterval < 0:
		return invalid("rotate_interval must not be negative, got %v", c.RotateInterval)
	case c.FlushThresholdBytes < 0:
		return invalid("flush_threshold_bytes must not be negative, got %d", c.FlushThresholdBytes)
	case c.FlushInterval < 0:
		return invalid("flush_interval must not be negative, got %v", c.FlushInterval)
	}
	if err := scan.ValidateGlobs(c.IncludePatterns); err != nil {
		return err
	}
	return scan.ValidateGlobs(c.ExcludePatterns)
}

// WriterOptions maps the output settings onto the sharded writer.
func (c *GenerateConfig) WriterOptions() writer.Options {
	prefix := c.FilePrefix
	if strings.TrimSpace(prefix) == "" {
		prefix = types.DefaultFilePrefix
	}
	return writer.Options{
		Shards:              c.Shards,
		Gzip:                c.Gzip,
		FilePrefix:          prefix,
		RotateMaxBytes:      c.RotateMaxBytes,
		RotateInterval:      c.RotateInterval,
		FlushThresholdBytes: c.FlushThresholdBytes,
		FlushInterval:       c.FlushInterval,
		ThreadSafe:          c.WriterThreadSafe,
	}
}

// ServeConfig holds configuration for the gRPC generator service.
type ServeConfig struct {
	Host              string
	Port              int
	RequestTimeout    time.Duration
	MaxConcurrentRuns int
}

// DefaultServeConfig returns configuration with default values.
func DefaultServeConfig() *ServeConfig {
	return &ServeConfig{
		Host:              "0.0.0.0",
		Port:              50051,
		RequestTimeout:    5 * time.Minute,
		MaxConcurrentRuns: 2,
	}
}

// Validate checks port range and positive limits.
func (c *ServeConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return invalid("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.RequestTimeout <= 0 {
		return invalid("request_timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.MaxConcurrentRuns <= 0 {
		return invalid("max_concurrent_runs must be positive, got %d", c.MaxConcurrentRuns)
	}
	return nil
}

// Config is the full configuration tree.
type Config struct {
	Generate *GenerateConfig
	Serve    *ServeConfig
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// ServeSecrets extracts HMAC secrets from environment variables.
// Supports BTM_SERVE_SECRET (single) and BTM_SERVE_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
func ServeSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check BTM_SERVE_SECRET and BTM_SERVE_SECRET_* for conflicts)", secretID)
		}
		secrets[secretID] = decoded
		return nil
	}

	if val := os.Getenv("BTM_SERVE_SECRET"); val != "" {
		if err := add("BTM_SERVE_SECRET", val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets keep old keys valid while a new one rolls out.
	for i := 1; ; i++ {
		key := fmt.Sprintf("BTM_SERVE_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseSecret decodes a base64-encoded secret of at least 32 bytes.
func ParseSecret(envValue string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envValue))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// ParseSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 lowercase hex chars.
func ParseSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	id, encoded, ok := strings.Cut(strings.TrimSpace(envValue), ":")
	if !ok {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}
	if len(id) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars")
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}
	secret, err = ParseSecret(encoded)
	if err != nil {
		return "", nil, err
	}
	return id, secret, nil
}
