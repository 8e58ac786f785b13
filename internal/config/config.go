// Package config defines coreld's command-line/config-file surface, using
// the same go-flags library and tag style as the teacher's config package.
package config

import (
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

// Config holds every flag the control plane's entrypoint needs. It
// deliberately omits anything owned by the out-of-scope collaborators
// (wallet passphrase, bitcoind RPC credentials, gossip store path): those
// belong to their respective daemons, not this one.
type Config struct {
	HomeDir    string `long:"dir" description:"Home directory for coreld's database and sockets"`
	// ConfigFile is accepted and defaulted, but cmd/coreld never opens or
	// parses it: only command-line flags are read.
	ConfigFile string `long:"conf" description:"Path to a config file"`

	Network string `long:"network" description:"Chain network tag (bitcoin, testnet, regtest)"`

	NodeID string `long:"nodeid" description:"Hex-encoded compressed pubkey identifying this node to its peers"`

	RPCHost string `long:"rpchost" description:"TCP host for the JSON-RPC listener"`
	RPCPort uint16 `long:"rpcport" description:"TCP port for the JSON-RPC listener (no unix-socket listener is offered)"`

	MetricsAddr string `long:"metrics" description:"Address to serve Prometheus metrics on, empty disables it"`

	// AutoReconnect, AutoReconnectInterval, FeeBase and FeePerSatoshi are
	// parsed and defaulted, but nothing in coreld reads them: no reconnect
	// sweep runs, and channel fees are not initialised from them.
	AutoReconnect         bool  `long:"autoreconnect" description:"Automatically ask connectd to reconnect to peers with channels"`
	AutoReconnectInterval int64 `long:"autoreconnect-interval" description:"Seconds between reconnect sweeps"`

	FeeBase       uint32 `long:"fee-base" description:"Default routing base fee in msat"`
	FeePerSatoshi uint32 `long:"fee-ppm" description:"Default routing fee, parts per million"`

	Verbose    bool `short:"v" long:"verbose" description:"Enable debug-level logging"`
	Developer  bool `long:"developer" description:"Enable developer-only RPC commands"`
}

// Defaults mirror the teacher's package-level Default* vars.
var (
	DefaultHomeDirName           = filepath.Join(os.Getenv("HOME"), ".coreld")
	DefaultConfigFilename        = "coreld.conf"
	DefaultNetwork               = "bitcoin"
	DefaultRPCHost               = "localhost"
	DefaultRPCPort               = uint16(9835)
	DefaultMetricsAddr           = ""
	DefaultAutoReconnect         = true
	DefaultAutoReconnectInterval = int64(60)
	DefaultFeeBase               = uint32(1000)
	DefaultFeePerSatoshi         = uint32(10)
)

// WithDefaults returns a Config pre-populated with the package defaults,
// ready to be overlaid by NewParser.Parse().
func WithDefaults() *Config {
	return &Config{
		HomeDir:               DefaultHomeDirName,
		ConfigFile:            DefaultConfigFilename,
		Network:               DefaultNetwork,
		RPCHost:               DefaultRPCHost,
		RPCPort:               DefaultRPCPort,
		MetricsAddr:           DefaultMetricsAddr,
		AutoReconnect:         DefaultAutoReconnect,
		AutoReconnectInterval: DefaultAutoReconnectInterval,
		FeeBase:               DefaultFeeBase,
		FeePerSatoshi:         DefaultFeePerSatoshi,
	}
}

// NewParser returns a new command line flags parser, same shape as the
// teacher's NewConfigParser.
func NewParser(conf *Config, options flags.Options) *flags.Parser {
	return flags.NewParser(conf, options)
}
