// Package mdconfig is A1: the daemon's configuration surface, following the
// cobra-flags-bound-to-viper-keys pattern gcsfuse's cmd/root.go and cfg/config.go use,
// adapted from mount options to metadata-server startup parameters.
package mdconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is every value the daemon needs at start-up (spec §3/§4.4/§4.8 "constructed at
// start-up from ... rank, total hosts, device list").
type Config struct {
	Rank        uint32   `mapstructure:"rank"`
	TotalHosts  uint32   `mapstructure:"total-hosts"`
	LocalHostID string   `mapstructure:"local-host-id"`
	ListenAddr  string   `mapstructure:"listen-addr"`
	Devices     []string `mapstructure:"devices"`
	PartitionMode bool   `mapstructure:"partition-mode"`
	WorkerThreads int    `mapstructure:"worker-threads"`
	MetricsAddr string   `mapstructure:"metrics-addr"`
}

// BindFlags registers every Config field as a persistent flag on cmd, bound to the
// matching viper key (spec A1, following cfg/config.go's BindPFlag idiom).
func BindFlags(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	flags.Uint32("rank", 0, "this MDS instance's rank within the fleet")
	flags.Uint32("total-hosts", 1, "total number of MDS ranks in the fleet")
	flags.String("local-host-id", "", "stable identity of this host (defaults to a generated uuid)")
	flags.String("listen-addr", ":9009", "TCP address the metadata service listens on")
	flags.StringSlice("devices", nil, "paths to local directories backing this host's partitions")
	flags.Bool("partition-mode", true, "true: partitioned storeabs backend; false: single file-based backend")
	flags.Int("worker-threads", 32, "size of the request worker pool")
	flags.String("metrics-addr", ":9100", "address the Prometheus metrics endpoint listens on")
	flags.String("config", "", "path to a config file (yaml/json/toml, viper-discovered)")

	for _, name := range []string{
		"rank", "total-hosts", "local-host-id", "listen-addr", "devices",
		"partition-mode", "worker-threads", "metrics-addr",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	viper.SetEnvPrefix("mdscore")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	return nil
}

// Load reads viper's bound flags/env/config-file state into a Config (spec A1).
func Load() (Config, error) {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
