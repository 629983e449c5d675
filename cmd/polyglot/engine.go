package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/engine/goeval"
	"github.com/tailored-agentic-units/polyglot/engine/process"
)

// newServeEngineCmd runs a Go interpreter behind the process driver's
// stdio protocol, so a kernel spec can run Go out of process:
//
//	driver: process
//	command: [polyglot, serve-engine]
func newServeEngineCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:    "serve-engine",
		Short:  "Serve a Go interpreter over stdin/stdout",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eng, err := goeval.New(ctx, catalog.Spec{Name: name, Language: "Go", Driver: goeval.Driver})
			if err != nil {
				return err
			}
			defer eng.Shutdown(context.Background())

			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt)
			defer signal.Stop(interrupts)

			return process.Serve(ctx, os.Stdin, os.Stdout, eng, interrupts)
		},
	}

	cmd.Flags().StringVar(&name, "name", "Go", "Kernel name reported by the engine")
	return cmd
}
