package lib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	// calculate expected
	expected := Config{
		MainConfig:     DefaultMainConfig(),
		HarnessConfig:  DefaultHarnessConfig(),
		TopologyConfig: DefaultTopologyConfig(),
		NodeConfig:     DefaultNodeConfig(),
		MempoolConfig:  DefaultMempoolConfig(),
		GossipConfig:   DefaultGossipConfig(),
		MetricsConfig:  DefaultMetricsConfig(),
	}
	// execute the function call
	got := DefaultConfig()
	// compare got vs expected
	require.Equal(t, expected, got)
	require.NoError(t, got.Validate())
}

func TestFileConfig(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "config.json")
	// define a variable to test upon
	config := DefaultConfig()
	config.NodeCount = 7
	config.Edges = [][2]int64{{0, 1}, {1, 2}}
	// write to file
	require.NoError(t, config.WriteToFile(filePath))
	// read from file
	got, err := NewConfigFromFile(filePath)
	require.NoError(t, err)
	// compare got vs expected
	require.Equal(t, config, got)
}

func TestYAMLConfigFillsDefaults(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(filePath, []byte("nodeCount: 9\nstrategy: ring\nlatencyMS: 20\n"), 0600))
	got, err := NewConfigFromFile(filePath)
	require.NoError(t, err)
	require.Equal(t, 9, got.NodeCount)
	require.Equal(t, "ring", got.Strategy)
	require.EqualValues(t, 20, got.LatencyMS)
	// untouched options keep their defaults
	require.Equal(t, DefaultNodeConfig(), got.NodeConfig)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		module ErrorModule
		code   ErrorCode
	}{
		{
			name:   "zero nodes",
			modify: func(c *Config) { c.NodeCount = 0 },
			module: MainModule,
			code:   CodeInvalidConfig,
		},
		{
			name:   "unknown launcher",
			modify: func(c *Config) { c.Launcher = "docker" },
			module: NodeModule,
			code:   CodeUnknownLauncher,
		},
		{
			name: "process launcher without binary",
			modify: func(c *Config) {
				c.Launcher = ProcessLauncher
				c.BinaryPath = ""
			},
			module: MainModule,
			code:   CodeInvalidConfig,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := DefaultConfig()
			test.modify(&c)
			err := c.Validate()
			require.Error(t, err)
			require.True(t, HasCode(err, test.module, test.code))
		})
	}
}
