package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tarcisiozf/dslot/engine"
	"github.com/tarcisiozf/dslot/slots"
	"go.uber.org/zap"
)

type globalOptions struct {
	bandsFile string
	verbose   bool
}

func (o *globalOptions) bands() (*slots.BandTable, error) {
	if o.bandsFile == "" {
		return slots.DefaultRedisBands(), nil
	}
	return engine.LoadBandsFile(o.bandsFile)
}

func (o *globalOptions) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "dslot",
		Short:         "Deterministic slot assignment for cluster and fleet identifiers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.bandsFile, "bands", "", "YAML band table (default: six redis shards)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		newCRC16Cmd(opts),
		newSHA256Cmd(opts),
		newSlotCmd(opts),
		newShardCmd(opts),
		newDistributeCmd(opts),
		newReportCmd(opts),
		newSampleCmd(),
		newReplCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
