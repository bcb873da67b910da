package lib

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/units"
	"gopkg.in/yaml.v3"
)

/* This file implements logic for 'user controlled' configuration of each module of the harness */

const (
	// FILE NAMES in the 'data directory'
	ConfigFilePath  = "config.json"  // the file path for the harness configuration
	GenesisFilePath = "genesis.json" // the file path for the mock ledger genesis
	KeysFilePath    = "keys.json"    // the file path for the generated node identities
)

const (
	// launcher kinds
	InMemoryLauncher = "memory"  // nodes run in-process on a simulated gossip fabric
	ProcessLauncher  = "process" // nodes run as child processes of the harness
)

// Config is the structure of the user configuration options for a mock network
type Config struct {
	MainConfig     `yaml:",inline"` // main options spanning over all modules
	HarnessConfig  `yaml:",inline"` // network harness and scenario options
	TopologyConfig `yaml:",inline"` // peer topology options
	NodeConfig     `yaml:",inline"` // node process controller options
	MempoolConfig  `yaml:",inline"` // fragment pool options of the mock nodes
	GossipConfig   `yaml:",inline"` // simulated gossip options
	MetricsConfig  `yaml:",inline"` // telemetry options
}

// DefaultConfig() returns a Config with developer set options
func DefaultConfig() Config {
	return Config{
		MainConfig:     DefaultMainConfig(),
		HarnessConfig:  DefaultHarnessConfig(),
		TopologyConfig: DefaultTopologyConfig(),
		NodeConfig:     DefaultNodeConfig(),
		MempoolConfig:  DefaultMempoolConfig(),
		GossipConfig:   DefaultGossipConfig(),
		MetricsConfig:  DefaultMetricsConfig(),
	}
}

// MAIN CONFIG BELOW

type MainConfig struct {
	LogLevel    string `json:"logLevel" yaml:"logLevel"`       // any level includes the levels above it: debug < info < warning < error
	LogJSON     bool   `json:"logJSON" yaml:"logJSON"`         // emit structured json logs (CI)
	DataDirPath string `json:"dataDirPath" yaml:"dataDirPath"` // where logs, node data and reports are written
}

// DefaultMainConfig() sets log level to 'info'
func DefaultMainConfig() MainConfig {
	return MainConfig{
		LogLevel:    "info", // everything but debug is the default
		LogJSON:     false,
		DataDirPath: DefaultDataDirPath(),
	}
}

// GetLogLevel() parses the log string in the config file into a LogLevel Enum
func (m *MainConfig) GetLogLevel() int32 {
	switch {
	case strings.Contains(strings.ToLower(m.LogLevel), "deb"):
		return DebugLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "inf"):
		return InfoLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "war"):
		return WarnLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "err"):
		return ErrorLevel
	default:
		return DebugLevel
	}
}

// DefaultDataDirPath() is $USERHOME/.mocknet
func DefaultDataDirPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".mocknet")
	}
	return filepath.Join(home, ".mocknet")
}

// HARNESS CONFIG BELOW

// HarnessConfig controls how a network is composed and how long the harness waits on it
type HarnessConfig struct {
	NodeCount            int    `json:"nodeCount" yaml:"nodeCount"`                       // number of peers in the network
	Seed                 int64  `json:"seed" yaml:"seed"`                                 // seed for keys, topology and load generation
	PollIntervalMS       uint64 `json:"pollIntervalMS" yaml:"pollIntervalMS"`             // how often wait operations poll the nodes
	PropagationTimeoutMS uint64 `json:"propagationTimeoutMS" yaml:"propagationTimeoutMS"` // default deadline for a fragment to reach every target
	StepTimeoutMS        uint64 `json:"stepTimeoutMS" yaml:"stepTimeoutMS"`               // default deadline of a single scenario step
	AliasPrefix          string `json:"aliasPrefix" yaml:"aliasPrefix"`                   // node aliases are <prefix><index>
}

// DefaultHarnessConfig() returns a four node network polling every 100ms
func DefaultHarnessConfig() HarnessConfig {
	return HarnessConfig{
		NodeCount:            4,
		Seed:                 1,
		PollIntervalMS:       100,
		PropagationTimeoutMS: 10_000,
		StepTimeoutMS:        60_000,
		AliasPrefix:          "node-",
	}
}

// PollInterval() converts the poll interval to a duration, never returning zero
func (h HarnessConfig) PollInterval() time.Duration {
	if h.PollIntervalMS == 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(h.PollIntervalMS) * time.Millisecond
}

// PropagationTimeout() converts the propagation deadline to a duration
func (h HarnessConfig) PropagationTimeout() time.Duration {
	return time.Duration(h.PropagationTimeoutMS) * time.Millisecond
}

// StepTimeout() converts the step deadline to a duration
func (h HarnessConfig) StepTimeout() time.Duration {
	return time.Duration(h.StepTimeoutMS) * time.Millisecond
}

// TOPOLOGY CONFIG BELOW

// TopologyConfig selects how peers are wired together
type TopologyConfig struct {
	Strategy string     `json:"strategy" yaml:"strategy"` // full-mesh, ring, random-regular or custom
	Degree   int        `json:"degree" yaml:"degree"`     // k for random-regular
	Edges    [][2]int64 `json:"edges" yaml:"edges"`       // explicit edges for custom
}

// DefaultTopologyConfig() wires every peer to every other peer
func DefaultTopologyConfig() TopologyConfig {
	return TopologyConfig{
		Strategy: "full-mesh",
		Degree:   2,
	}
}

// NODE CONFIG BELOW

// NodeConfig is the configuration of the node process controller
type NodeConfig struct {
	Launcher         string   `json:"launcher" yaml:"launcher"`                 // memory or process
	BinaryPath       string   `json:"binaryPath" yaml:"binaryPath"`             // node binary for the process launcher
	BinaryArgs       []string `json:"binaryArgs" yaml:"binaryArgs"`             // extra arguments passed before the generated flags
	Host             string   `json:"host" yaml:"host"`                         // interface the node REST and gRPC ports listen on
	BasePort         int      `json:"basePort" yaml:"basePort"`                 // rest port of node i is BasePort+2i, grpc port is BasePort+2i+1
	StartupTimeoutMS uint64   `json:"startupTimeoutMS" yaml:"startupTimeoutMS"` // how long a node may take to become healthy
	MaxStartAttempts int      `json:"maxStartAttempts" yaml:"maxStartAttempts"` // bound on start retries
	HealthPollMS     uint64   `json:"healthPollMS" yaml:"healthPollMS"`         // initial health poll interval, grows with backoff
	RequestTimeoutMS uint64   `json:"requestTimeoutMS" yaml:"requestTimeoutMS"` // per request timeout of node clients
	StopTimeoutMS    uint64   `json:"stopTimeoutMS" yaml:"stopTimeoutMS"`       // graceful stop window before a kill
	QueryRetries     uint64   `json:"queryRetries" yaml:"queryRetries"`         // retries of idempotent queries on network errors
}

// DefaultNodeConfig() runs nodes in memory with a 10s startup budget and 3 attempts
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Launcher:         InMemoryLauncher,
		Host:             "127.0.0.1",
		BasePort:         52000,
		StartupTimeoutMS: 10_000,
		MaxStartAttempts: 3,
		HealthPollMS:     50,
		RequestTimeoutMS: 3_000,
		StopTimeoutMS:    5_000,
		QueryRetries:     3,
	}
}

// StartupTimeout() converts the startup timeout to a duration
func (n NodeConfig) StartupTimeout() time.Duration {
	return time.Duration(n.StartupTimeoutMS) * time.Millisecond
}

// StopTimeout() converts the stop timeout to a duration
func (n NodeConfig) StopTimeout() time.Duration {
	return time.Duration(n.StopTimeoutMS) * time.Millisecond
}

// RequestTimeout() converts the request timeout to a duration
func (n NodeConfig) RequestTimeout() time.Duration {
	return time.Duration(n.RequestTimeoutMS) * time.Millisecond
}

// MEMPOOL CONFIG BELOW

// MempoolConfig is the configuration of the unconfirmed fragment pool
type MempoolConfig struct {
	MaxTotalBytes             uint64 `json:"maxTotalBytes" yaml:"maxTotalBytes"`                         // maximum collective bytes in the pool
	MaxFragmentCount          uint32 `json:"maxFragmentCount" yaml:"maxFragmentCount"`                   // max number of fragments
	IndividualMaxFragmentSize uint32 `json:"individualMaxFragmentSize" yaml:"individualMaxFragmentSize"` // max bytes of a single fragment
	MaxFragmentsPerBlock      int    `json:"maxFragmentsPerBlock" yaml:"maxFragmentsPerBlock"`           // fragments moved into each block
}

// DefaultMempoolConfig() returns the developer created pool options
func DefaultMempoolConfig() MempoolConfig {
	return MempoolConfig{
		MaxTotalBytes:             uint64(10 * units.MB),
		IndividualMaxFragmentSize: uint32(4 * units.Kilobyte),
		MaxFragmentCount:          5000,
		MaxFragmentsPerBlock:      100,
	}
}

// GOSSIP CONFIG BELOW

// GossipConfig tunes the simulated network between in-memory nodes
type GossipConfig struct {
	LatencyMS         uint64 `json:"latencyMS" yaml:"latencyMS"`                 // one way delay of every gossip message
	MaxBytesPerSecond int64  `json:"maxBytesPerSecond" yaml:"maxBytesPerSecond"` // per edge bandwidth, 0 is unlimited
	QueueSize         int    `json:"queueSize" yaml:"queueSize"`                 // buffered messages per node inbox
}

// DefaultGossipConfig() returns a low latency unlimited network
func DefaultGossipConfig() GossipConfig {
	return GossipConfig{
		LatencyMS:         5,
		MaxBytesPerSecond: int64(10 * units.MB),
		QueueSize:         1000,
	}
}

// Latency() converts the gossip latency to a duration
func (g GossipConfig) Latency() time.Duration {
	return time.Duration(g.LatencyMS) * time.Millisecond
}

// METRICS CONFIG BELOW

// MetricsConfig represents the configuration for the metrics server
type MetricsConfig struct {
	MetricsEnabled    bool   `json:"metricsEnabled" yaml:"metricsEnabled"`       // if the metrics server is started
	PrometheusAddress string `json:"prometheusAddress" yaml:"prometheusAddress"` // the address of the server
}

// DefaultMetricsConfig() returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MetricsEnabled:    false,
		PrometheusAddress: "0.0.0.0:9090",
	}
}

// Validate() checks the options that would otherwise fail deep inside a run
func (c Config) Validate() ErrorI {
	switch {
	case c.NodeCount <= 0:
		return ErrInvalidConfig("nodeCount must be positive")
	case c.MaxStartAttempts <= 0:
		return ErrInvalidConfig("maxStartAttempts must be positive")
	case c.StartupTimeoutMS == 0:
		return ErrInvalidConfig("startupTimeoutMS must be positive")
	case c.Launcher != InMemoryLauncher && c.Launcher != ProcessLauncher:
		return ErrUnknownLauncher(c.Launcher)
	case c.Launcher == ProcessLauncher && c.BinaryPath == "":
		return ErrInvalidConfig("binaryPath is required by the process launcher")
	}
	return nil
}

// WriteToFile() saves the Config object to a JSON file
func (c Config) WriteToFile(filepath string) error {
	// convert the config to indented 'pretty' json bytes
	jsonBytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	// write the config.json file to the data directory
	return os.WriteFile(filepath, jsonBytes, os.ModePerm)
}

// NewConfigFromFile() populates a Config object from a JSON or YAML file
func NewConfigFromFile(path string) (Config, error) {
	// read the file into bytes
	fileBytes, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	// define the default config to fill in any blanks in the file
	c := DefaultConfig()
	// populate the default config with the file bytes
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(fileBytes, &c)
	default:
		err = json.Unmarshal(fileBytes, &c)
	}
	if err != nil {
		return Config{}, err
	}
	return c, nil
}
