package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/membercoin/membernode/module/requester"
)

const (
	flagConfig       = "config"
	flagDataDir      = "datadir"
	flagChain        = "chain"
	flagLogLevel     = "loglevel"
	flagMetricsPort  = "metrics-port"
	flagScanInterval = "scan-interval"
	flagSimPeers     = "sim-peers"
	flagSimBlocks    = "sim-blocks"
	flagSimTxns      = "sim-txns"
	flagSimLatency   = "sim-latency"
	flagSimDropRate  = "sim-drop-rate"
	flagSimSeed      = "sim-seed"
)

var rootCmd = &cobra.Command{
	Use:   "membernode",
	Short: "Download a simulated chain through the object request scheduler",
	Long: `membernode runs the object request scheduler against a set of simulated
peers on an in-memory network. The peers announce a chain of headers and a set
of transactions; the node fetches every block and transaction and exits once
it holds them all.`,
	SilenceUsage: true,
	RunE:         run,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String(flagConfig, "", "path to a config file; flags and MEMBERNODE_ environment variables take precedence")
	flags.String(flagDataDir, "", "directory of the header database, a temporary directory if empty")
	flags.String(flagChain, "regtest", "network the node runs on (main, nol, test, regtest, test4, scale)")
	flags.String(flagLogLevel, "info", "level for logging output")
	flags.Uint(flagMetricsPort, 0, "port of the prometheus metrics server, disabled if 0")
	flags.Duration(flagScanInterval, 100*time.Millisecond, "interval between request passes")
	flags.Int(flagSimPeers, 8, "number of simulated peers")
	flags.Int(flagSimBlocks, 2000, "length of the simulated chain")
	flags.Int(flagSimTxns, 500, "number of simulated transactions")
	flags.Duration(flagSimLatency, 20*time.Millisecond, "base latency of the simulated peers; peer i gets i+1 times this")
	flags.Float64(flagSimDropRate, 0.01, "fraction of requests the simulated peers ignore")
	flags.Int64(flagSimSeed, 1, "seed of the simulated chain")

	requester.InitializeFlags(flags, requester.DefaultConfig())

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	viper.SetEnvPrefix("MEMBERNODE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	err := viper.BindPFlags(rootCmd.PersistentFlags())
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not bind flags: %v\n", err)
		os.Exit(1)
	}

	if file := viper.GetString(flagConfig); file != "" {
		viper.SetConfigFile(file)
		err := viper.ReadInConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not read config file %s: %v\n", file, err)
			os.Exit(1)
		}
	}
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger(), nil
}
