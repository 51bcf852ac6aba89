package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagKeys maps command-line flag names to configuration keys. Flags listed
// here take precedence over environment, file and defaults once set.
var FlagKeys = map[string]string{
	"out":               "generate.output_dir",
	"helper":            "generate.helper_fqcn",
	"safe-eval":         "generate.safe_eval_fqcn",
	"pkg-prefix":        "generate.pkg_prefixes",
	"exclude-pkg":       "generate.exclude_pkgs",
	"include":           "generate.include_patterns",
	"exclude":           "generate.exclude_patterns",
	"java":              "generate.include_java",
	"entry-exit":        "generate.entry_exit",
	"track":             "generate.tracked_vars",
	"shards":            "generate.shards",
	"gzip":              "generate.gzip",
	"safe-mode":         "generate.safe_mode",
	"force-helper":      "generate.force_helper_for_whitelist",
	"min-branches":      "generate.min_branches_per_method",
	"max-string-length": "generate.max_string_length",
	"max-file-bytes":    "generate.max_file_bytes",
	"parallelism":       "generate.parallelism",
	"gitignore":         "generate.respect_gitignore",
	"timestamp":         "generate.include_timestamp",
	"thread-safe":       "generate.writer_thread_safe",
	"host":              "serve.host",
	"port":              "serve.port",
}

func setDefaults(v *viper.Viper) {
	g := DefaultGenerateConfig()
	v.SetDefault("generate.src_dirs", g.SrcDirs)
	v.SetDefault("generate.output_dir", g.OutputDir)
	v.SetDefault("generate.include_java", g.IncludeJava)
	v.SetDefault("generate.pkg_prefixes", []string{})
	v.SetDefault("generate.exclude_pkgs", []string{})
	v.SetDefault("generate.include_patterns", []string{})
	v.SetDefault("generate.exclude_patterns", []string{})
	v.SetDefault("generate.helper_fqcn", g.HelperFQCN)
	v.SetDefault("generate.safe_eval_fqcn", g.SafeEvalFQCN)
	v.SetDefault("generate.entry_exit", g.EntryExit)
	v.SetDefault("generate.tracked_vars", []string{})
	v.SetDefault("generate.safe_mode", g.SafeMode)
	v.SetDefault("generate.force_helper_for_whitelist", g.ForceHelperForWhitelist)
	v.SetDefault("generate.min_branches_per_method", g.MinBranchesPerMethod)
	v.SetDefault("generate.max_string_length", g.MaxStringLength)
	v.SetDefault("generate.max_file_bytes", g.MaxFileBytes)
	v.SetDefault("generate.parallelism", g.Parallelism)
	v.SetDefault("generate.respect_gitignore", g.RespectGitignore)
	v.SetDefault("generate.include_timestamp", g.IncludeTimestamp)
	v.SetDefault("generate.shards", g.Shards)
	v.SetDefault("generate.gzip", g.Gzip)
	v.SetDefault("generate.file_prefix", g.FilePrefix)
	v.SetDefault("generate.rotate_max_bytes", g.RotateMaxBytes)
	v.SetDefault("generate.rotate_interval", g.RotateInterval.String())
	v.SetDefault("generate.flush_threshold_bytes", g.FlushThresholdBytes)
	v.SetDefault("generate.flush_interval", g.FlushInterval.String())
	v.SetDefault("generate.writer_thread_safe", g.WriterThreadSafe)

	s := DefaultServeConfig()
	v.SetDefault("serve.host", s.Host)
	v.SetDefault("serve.port", s.Port)
	v.SetDefault("serve.request_timeout", s.RequestTimeout.String())
	v.SetDefault("serve.max_concurrent_runs", s.MaxConcurrentRuns)
}

// Load reads configuration with flags > environment > config file > defaults
// precedence. flags may be nil; only flags named in FlagKeys are bound.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// BTM_GENERATE_SHARDS overrides generate.shards and so on.
	v.SetEnvPrefix("BTM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are environment-only.
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key, ok := FlagKeys[f.Name]
			if !ok || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	cfg := &Config{
		Generate: generateFromViper(v),
		Serve: &ServeConfig{
			Host:              v.GetString("serve.host"),
			Port:              v.GetInt("serve.port"),
			RequestTimeout:    v.GetDuration("serve.request_timeout"),
			MaxConcurrentRuns: v.GetInt("serve.max_concurrent_runs"),
		},
	}
	if err := cfg.Generate.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Serve.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func generateFromViper(v *viper.Viper) *GenerateConfig {
	return &GenerateConfig{
		SrcDirs:                 v.GetStringSlice("generate.src_dirs"),
		OutputDir:               v.GetString("generate.output_dir"),
		IncludeJava:             v.GetBool("generate.include_java"),
		PkgPrefixes:             nonBlank(v.GetStringSlice("generate.pkg_prefixes")),
		ExcludePkgs:             nonBlank(v.GetStringSlice("generate.exclude_pkgs")),
		IncludePatterns:         nonBlank(v.GetStringSlice("generate.include_patterns")),
		ExcludePatterns:         nonBlank(v.GetStringSlice("generate.exclude_patterns")),
		HelperFQCN:              v.GetString("generate.helper_fqcn"),
		SafeEvalFQCN:            v.GetString("generate.safe_eval_fqcn"),
		EntryExit:               v.GetBool("generate.entry_exit"),
		TrackedVars:             nonBlank(v.GetStringSlice("generate.tracked_vars")),
		SafeMode:                v.GetBool("generate.safe_mode"),
		ForceHelperForWhitelist: v.GetBool("generate.force_helper_for_whitelist"),
		MinBranchesPerMethod:    v.GetInt("generate.min_branches_per_method"),
		MaxStringLength:         v.GetInt("generate.max_string_length"),
		MaxFileBytes:            v.GetInt64("generate.max_file_bytes"),
		Parallelism:             v.GetInt("generate.parallelism"),
		RespectGitignore:        v.GetBool("generate.respect_gitignore"),
		IncludeTimestamp:        v.GetBool("generate.include_timestamp"),
		Shards:                  v.GetInt("generate.shards"),
		Gzip:                    v.GetBool("generate.gzip"),
		FilePrefix:              v.GetString("generate.file_prefix"),
		RotateMaxBytes:          v.GetInt64("generate.rotate_max_bytes"),
		RotateInterval:          v.GetDuration("generate.rotate_interval"),
		FlushThresholdBytes:     v.GetInt64("generate.flush_threshold_bytes"),
		FlushInterval:           v.GetDuration("generate.flush_interval"),
		WriterThreadSafe:        v.GetBool("generate.writer_thread_safe"),
	}
}

// GenerateKeys lists the keys accepted under generate.*, sorted.
func GenerateKeys() []string {
	v := viper.New()
	setDefaults(v)
	var keys []string
	for _, k := range v.AllKeys() {
		if name, ok := strings.CutPrefix(k, "generate."); ok {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys
}

// GenerateFromMap builds a generate configuration from defaults overlaid with
// values, keyed like the generate.* section of a config file. Unknown keys
// are rejected.
func GenerateFromMap(values map[string]any) (*GenerateConfig, error) {
	known := make(map[string]bool)
	for _, k := range GenerateKeys() {
		known[k] = true
	}
	for k := range values {
		if !known[strings.ToLower(k)] {
			return nil, invalid("unknown generate key %q", k)
		}
	}

	v := viper.New()
	setDefaults(v)
	if err := v.MergeConfigMap(map[string]any{"generate": values}); err != nil {
		return nil, invalid("failed to merge values: %v", err)
	}
	cfg := generateFromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateNoSecretsInConfig enforces environment-only secrets.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("secret") || v.InConfig("serve.secret") || v.InConfig("serve.secrets") {
		return fmt.Errorf("serve secrets not allowed in config files (use BTM_SERVE_SECRET environment variable)")
	}
	return nil
}

func nonBlank(values []string) []string {
	var out []string
	for _, s := range values {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
