package commands

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the process-wide settings the CLI needs to stand up a Host:
// which local interface address to pin outgoing multicast to, and the
// default timeouts callers don't override per-command.
type Config struct {
	LocalAddr      string
	RequestTimeout int // seconds
}

// bindConfigFlags registers the flags shared by every subcommand and binds
// them into viper so UDRONE_-prefixed environment variables also apply.
func bindConfigFlags(flags *pflag.FlagSet) {
	flags.String("local-addr", "", "local IPv4 address owning the outgoing multicast interface")
	flags.Int("timeout", 60, "default request timeout in seconds")

	_ = viper.BindPFlag("local-addr", flags.Lookup("local-addr"))
	_ = viper.BindPFlag("timeout", flags.Lookup("timeout"))
	viper.SetEnvPrefix("UDRONE")
	viper.AutomaticEnv()
}

func loadConfig() (*Config, error) {
	cfg := &Config{
		LocalAddr:      viper.GetString("local-addr"),
		RequestTimeout: viper.GetInt("timeout"),
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %d", cfg.RequestTimeout)
	}
	return cfg, nil
}
