package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mapgen/internal/dirs"
	"mapgen/internal/util"
)

// Viper keys.
const (
	KeyServerURL      = "server_url"
	KeyBackendVersion = "backend_version"
	KeyOutDir         = "out_dir"
	KeyPollInterval   = "poll_interval"
	KeyRequestTimeout = "request_timeout"
	KeyLogLevel       = "log_level"
	KeyLogFormat      = "log_format"
	KeyVerbose        = "verbose"
)

// EnvPrefix prefixes every environment override, e.g. MAPGEN_SERVER_URL.
const EnvPrefix = "MAPGEN"

// flagKeys maps root persistent flags to their Viper keys.
var flagKeys = map[string]string{
	"server":          KeyServerURL,
	"backend-version": KeyBackendVersion,
	"out-dir":         KeyOutDir,
	"poll-interval":   KeyPollInterval,
	"request-timeout": KeyRequestTimeout,
	"log-level":       KeyLogLevel,
	"log-format":      KeyLogFormat,
	"verbose":         KeyVerbose,
}

// Settings is the resolved runtime configuration (flag > env > config file > default).
type Settings struct {
	ServerURL      string
	BackendVersion string
	OutDir         string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string
	Verbose        bool
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyOutDir, ".")
	v.SetDefault(KeyPollInterval, 3*time.Second)
	v.SetDefault(KeyRequestTimeout, 30*time.Second)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
}

// Init wires Viper with .env files, config paths, env, defaults, and flag
// bindings. It is non-fatal: a missing config file is ignored, a malformed
// one is returned.
func Init(root *cobra.Command) error {
	_ = godotenv.Load(".env", ".env.local")
	_ = dirs.EnsureAll()

	v := viper.GetViper()
	if cfgDir, err := dirs.ConfigDir(); err == nil {
		v.AddConfigPath(cfgDir)
	}
	v.SetConfigName("config") // supports config.{yaml|yml|json|toml}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	for flag, key := range flagKeys {
		if f := root.PersistentFlags().Lookup(flag); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Current resolves Settings from the global Viper instance.
func Current() Settings {
	return Resolve(viper.GetViper())
}

// Resolve reads Settings from v, substituting defaults for unusable values.
func Resolve(v *viper.Viper) Settings {
	s := Settings{
		ServerURL:      strings.TrimSpace(v.GetString(KeyServerURL)),
		BackendVersion: strings.TrimSpace(v.GetString(KeyBackendVersion)),
		OutDir:         strings.TrimSpace(v.GetString(KeyOutDir)),
		PollInterval:   v.GetDuration(KeyPollInterval),
		RequestTimeout: v.GetDuration(KeyRequestTimeout),
		LogLevel:       strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		LogFormat:      strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
		Verbose:        v.GetBool(KeyVerbose),
	}
	if s.OutDir == "" {
		s.OutDir = "."
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 3 * time.Second
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = 30 * time.Second
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.Verbose && s.LogLevel == "info" {
		s.LogLevel = "debug"
	}
	if s.LogFormat == "" {
		s.LogFormat = "console"
	}
	return s
}

// Validate checks the settings a server-facing command needs and normalizes
// the server URL in place.
func (s *Settings) Validate() error {
	u, err := util.NormalizeServerURL(s.ServerURL)
	if err != nil {
		return err
	}
	s.ServerURL = u
	switch s.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q (valid: console|json)", s.LogFormat)
	}
	return nil
}
