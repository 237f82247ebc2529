// Package config loads the daemon's configuration surface from, in
// precedence order, CLI flags, environment variables, an INI file under
// section [vpf_730], and built-in defaults — exactly the surface
// spec.md §6 describes, bound here to github.com/spf13/viper and
// gopkg.in/ini.v1.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"

	"github.com/RUBclim/vpf-730/internal/vpferr"
)

// EnvPrefix is the prefix viper binds environment variables under:
// VPF730_LOCAL_DB, VPF730_QUEUE_DB, VPF730_PORT, VPF730_ENDPOINT,
// VPF730_API_KEY.
const EnvPrefix = "VPF730"

// Config is the record §6 describes: the local measurements db path, the
// queue db path, the serial device, the remote endpoint, and its API key.
type Config struct {
	LocalDB    string
	QueueDB    string
	SerialPort string
	Endpoint   string
	APIKey     string
}

// String redacts APIKey, matching the spec's "repr of Config MUST redact
// the API key as ***" requirement.
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{LocalDB:%q QueueDB:%q SerialPort:%q Endpoint:%q APIKey:%q}",
		c.LocalDB, c.QueueDB, c.SerialPort, c.Endpoint, "***",
	)
}

// GoString matches String so %#v formatting redacts the key too.
func (c Config) GoString() string { return c.String() }

func defaults() Config {
	return Config{
		LocalDB: "~/vpf_730_local.db",
		QueueDB: "~/vpf_730_queue.db",
	}
}

// Field names accepted by Load's required variadic argument.
const (
	RequireSerialPort = "serial-port"
	RequireEndpoint   = "endpoint"
)

// Load resolves configuration from flags, the environment, and an
// optional INI file, in that precedence order (flags win, then env, then
// the INI file, then defaults). flags may be nil, in which case only the
// environment and the INI file (if any) apply. iniPath is the path given
// via -c/--config; pass "" if not set. required names which fields must
// be non-empty once resolved — callers that only touch the local db (e.g.
// the export subcommand) pass none, while the daemon's run/logger
// subcommands require RequireSerialPort and/or RequireEndpoint.
func Load(flags *pflag.FlagSet, iniPath string, required ...string) (*Config, error) {
	cfg := defaults()

	if iniPath != "" {
		if err := applyINI(&cfg, iniPath); err != nil {
			return nil, &vpferr.ConfigError{Field: "config file", Err: err}
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, &vpferr.ConfigError{Field: "flags", Err: err}
		}
	}

	bind := func(envKey, flagKey string, dst *string) {
		_ = v.BindEnv(envKey)
		if val := v.GetString(envKey); val != "" {
			*dst = val
		}
		if flags != nil && flags.Changed(flagKey) {
			if val, err := flags.GetString(flagKey); err == nil && val != "" {
				*dst = val
			}
		}
	}

	bind("local_db", "local-db", &cfg.LocalDB)
	bind("queue_db", "queue-db", &cfg.QueueDB)
	bind("port", "serial-port", &cfg.SerialPort)
	bind("endpoint", "endpoint", &cfg.Endpoint)
	bind("api_key", "api-key", &cfg.APIKey)

	for _, field := range required {
		switch field {
		case RequireSerialPort:
			if cfg.SerialPort == "" {
				return nil, &vpferr.ConfigError{Field: "serial-port", Err: fmt.Errorf("required, set --serial-port, VPF730_PORT, or serial_port in the INI file")}
			}
		case RequireEndpoint:
			if cfg.Endpoint == "" {
				return nil, &vpferr.ConfigError{Field: "endpoint", Err: fmt.Errorf("required, set --endpoint, VPF730_ENDPOINT, or endpoint in the INI file")}
			}
		}
	}

	return &cfg, nil
}

// applyINI reads the [vpf_730] section of an INI file into cfg. viper's
// generic file loader does not scope to a named section the way the spec
// requires, so the section is parsed directly with gopkg.in/ini.v1.
func applyINI(cfg *Config, path string) error {
	f, err := ini.Load(path)
	if err != nil {
		return err
	}

	section, err := f.GetSection("vpf_730")
	if err != nil {
		return fmt.Errorf("missing [vpf_730] section: %w", err)
	}

	assign := func(key string, dst *string) {
		if section.HasKey(key) {
			*dst = section.Key(key).String()
		}
	}

	assign("local_db", &cfg.LocalDB)
	assign("queue_db", &cfg.QueueDB)
	assign("serial_port", &cfg.SerialPort)
	assign("endpoint", &cfg.Endpoint)
	// api_key intentionally not read from the INI file: the spec routes
	// the API key through the environment only.

	return nil
}
