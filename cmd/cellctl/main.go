// Command cellctl inspects and changes the cluster topology seen by the
// local cell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dreamware/multicell/internal/app"
	"github.com/dreamware/multicell/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	dir        string
	cellID     int
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "cellctl",
		Short:         "Inspect and change the multi-cell topology",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.EnvConfig), "Path to an HCL configuration file")
	root.PersistentFlags().StringVar(&opts.dir, "dir", "", "Descriptor directory (overrides configuration)")
	root.PersistentFlags().IntVar(&opts.cellID, "cellid", -1, "Local cellid (overrides configuration)")

	root.AddCommand(
		newInitCmd(opts),
		newShowCmd(opts),
		newRouteCmd(opts),
		newSiloCmd(opts),
		newAddCellCmd(opts),
		newRmCellCmd(opts),
		newSetCmd(opts),
		newSetTagCmd(opts),
		newHistoryCmd(opts),
		newExplainCmd(opts),
		newPeerCmd(),
	)
	return root
}

func (o *options) config() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dir != "" {
		cfg.Dir = o.dir
	}
	if o.cellID >= 0 {
		id := o.cellID
		cfg.LocalCellID = &id
	}
	return cfg, nil
}

func (o *options) open() (*app.App, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	return app.Open(cfg, "cellctl")
}
