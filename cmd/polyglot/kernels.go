package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/core/protocol"
)

func newKernelsCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "kernels",
		Short: "List the configured kernels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			cat, err := catalog.New(cfg.Kernels...)
			if err != nil {
				return err
			}

			specs := cat.List()
			if asJSON {
				list := protocol.KernelList{Kernels: make([]protocol.KernelInfo, len(specs))}
				for i, spec := range specs {
					list.Kernels[i] = protocol.KernelInfo{
						Name:     spec.Name,
						Kernel:   spec.Kernel,
						Language: spec.TypeSystem(),
						Color:    string(spec.Color),
						Options:  spec.Options,
					}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			for _, spec := range specs {
				line := fmt.Sprintf("%s  %s  %s", badge(spec.Name, spec.Color), spec.TypeSystem(), dimStyle.Render(spec.Driver))
				if spec.Name == cfg.DefaultKernel {
					line += dimStyle.Render("  (default)")
				}
				if len(spec.Aliases) > 0 {
					line += dimStyle.Render("  aliases: " + strings.Join(spec.Aliases, ", "))
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the kernel list as JSON")
	return cmd
}
