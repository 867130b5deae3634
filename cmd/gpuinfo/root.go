// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gviegas/hal/gpu"
)

type options struct {
	config  string
	driver  string
	verbose bool
}

func newRootCmd() *cobra.Command {
	var opts options
	root := &cobra.Command{
		Use:           "gpuinfo",
		Short:         "Report the capabilities of a gpu driver",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.config, "config", "", "configuration file (.toml, .yaml)")
	pf.StringVar(&opts.driver, "driver", "", "driver name (default: first registered)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug records to stderr")

	root.AddCommand(
		newLimitsCmd(&opts),
		newFormatsCmd(),
		newSmokeCmd(&opts),
		newDriversCmd(),
	)
	return root
}

// resolve returns the configuration selected by the flags.
func (o *options) resolve() (gpu.Config, error) {
	cfg := gpu.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = gpu.LoadConfig(o.config); err != nil {
			return gpu.Config{}, err
		}
	}
	if o.driver != "" {
		cfg.Driver = o.driver
	}
	if o.verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	return cfg, nil
}

// openDevice opens a device as configured by the flags.
// The caller must destroy the device.
func (o *options) openDevice(cmd *cobra.Command) (*gpu.Device, error) {
	cfg, err := o.resolve()
	if err != nil {
		return nil, err
	}
	gpu.SetLogger(cfg.NewLogger(cmd.ErrOrStderr()))
	return gpu.Open("", cfg)
}

func newDriversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List the registered drivers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, d := range gpu.Drivers() {
				fmt.Fprintln(cmd.OutOrStdout(), d.Name())
			}
		},
	}
}
