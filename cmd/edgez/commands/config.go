package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables overriding flags, e.g.
// EDGEZ_INTERVAL=250ms.
const EnvPrefix = "EDGEZ"

// Config configures the sensor topology.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Config struct {
	Sensors     int           `mapstructure:"sensors"`
	Interval    time.Duration `mapstructure:"interval"`
	Window      int           `mapstructure:"window"`
	Relief      int           `mapstructure:"relief"`
	Duration    time.Duration `mapstructure:"duration"`
	MetricsAddr string        `mapstructure:"metrics-addr"`
}

func (c Config) validate() error {
	switch {
	case c.Sensors <= 0:
		return fmt.Errorf("sensors must be positive, got %d", c.Sensors)
	case c.Interval <= 0:
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	case c.Window <= 0:
		return fmt.Errorf("window must be positive, got %d", c.Window)
	case c.Relief <= 0:
		return fmt.Errorf("relief must be positive, got %d", c.Relief)
	case c.Duration < 0:
		return fmt.Errorf("duration must not be negative, got %s", c.Duration)
	}
	return nil
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to a YAML config file")
	cmd.Flags().Int("sensors", 3, "Number of simulated sensors")
	cmd.Flags().Duration("interval", 100*time.Millisecond, "Sensor polling interval")
	cmd.Flags().Int("window", 10, "Readings per sensor in the aggregation window")
	cmd.Flags().Int("relief", 5, "Summaries per sensor kept when the sink falls behind")
	cmd.Flags().Duration("duration", 0, "Stop after this long, 0 runs until interrupted")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
}

// loadConfig merges the command flags, EDGEZ_ environment variables and
// the optional config file. Flags set on the command line win over the
// environment, which wins over the file.
func loadConfig(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to load configuration file, %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode configuration, %w", err)
	}
	return cfg, cfg.validate()
}
