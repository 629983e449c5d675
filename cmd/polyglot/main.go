// Command polyglot runs multi-language documents: it serves the kernel over
// Connect RPC, runs cell files, and offers an interactive console.
package main

import (
	"os"

	_ "github.com/tailored-agentic-units/polyglot/engine/goeval"
	_ "github.com/tailored-agentic-units/polyglot/engine/process"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
