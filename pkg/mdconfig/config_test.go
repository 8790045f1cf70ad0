package mdconfig

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsAndLoadDefaults(t *testing.T) {
	viper.Reset()
	cmd := &cobra.Command{Use: "test"}
	require.NoError(t, BindFlags(cmd))

	cfg, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, 1, cfg.TotalHosts)
	assert.Equal(t, ":9009", cfg.ListenAddr)
	assert.True(t, cfg.PartitionMode)
	assert.Equal(t, 32, cfg.WorkerThreads)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
}

func TestBindFlagsHonorsExplicitFlagValue(t *testing.T) {
	viper.Reset()
	cmd := &cobra.Command{Use: "test"}
	require.NoError(t, BindFlags(cmd))
	require.NoError(t, cmd.PersistentFlags().Set("rank", "3"))
	require.NoError(t, cmd.PersistentFlags().Set("devices", "a,b,c"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, 3, cfg.Rank)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Devices)
}
