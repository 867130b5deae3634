// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gviegas/hal/gpu"
)

func newLimitsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Print the device limits and features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev, err := opts.openDevice(cmd)
			if err != nil {
				return err
			}
			defer dev.Destroy()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "driver: %s\n", dev.Backend().Driver().Name())
			fmt.Fprintf(w, "profile: %s\n", dev.Profile().Name)
			fmt.Fprintf(w, "features: %s\n", strings.Join(gpu.FeatureNames(dev.Features()), ", "))
			fmt.Fprint(w, dev.Limits().String())
			return nil
		},
	}
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "Print the texture format table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FORMAT\tTEXEL\tKIND\tRENDER\tBLEND\tSTORAGE\tMSAA")
			for _, f := range gpu.Formats() {
				c, _ := gpu.Caps(f)
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
					c.Name, c.TexelSize, kindName(c), yes(c.Renderable),
					yes(c.Blendable), yes(c.Storage), yes(c.Multisample))
			}
			return tw.Flush()
		},
	}
}

func kindName(c gpu.FormatCaps) string {
	switch {
	case c.Depth && c.Stencil:
		return "depth-stencil"
	case c.Depth:
		return "depth"
	}
	switch c.Kind {
	case gpu.SampleFloat:
		return "float"
	case gpu.SampleUnfilterable:
		return "unfilterable-float"
	case gpu.SampleUint:
		return "uint"
	case gpu.SampleSint:
		return "sint"
	}
	return "?"
}

func yes(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
