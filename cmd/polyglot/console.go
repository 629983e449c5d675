package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/history"
	"github.com/tailored-agentic-units/polyglot/kernel"
)

const consoleHelp = `Console commands:
  :kernel NAME   send statements to NAME (no name follows the active kernel)
  :up, :down     recall console history of the current kernel
  :help          show this help
  :quit          leave the console
Any other line runs in the current kernel. "clear" clears console history.`

func newConsoleCmd(v *viper.Viper) *cobra.Command {
	var (
		docID string
		tag   string
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Run statements interactively with per-kernel history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, cfg, flush, err := newKernel(v)
			if err != nil {
				return err
			}
			defer flush()
			defer k.Close(context.Background())

			doc, err := k.Document(docID)
			if err != nil {
				return err
			}

			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt)
			defer signal.Stop(interrupts)

			c := &console{
				k:          k,
				doc:        doc,
				tag:        tag,
				fallback:   cfg.DefaultKernel,
				out:        cmd.OutOrStdout(),
				errOut:     cmd.ErrOrStderr(),
				interrupts: interrupts,
			}
			return c.run(cmd.Context(), cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&docID, "document", "", "Document id (default: a new document)")
	cmd.Flags().StringVar(&tag, "kernel", "", "Kernel to start in (default: the active kernel)")
	return cmd
}

// console reads one statement per line and runs it as a console
// submission. An interrupt signal while a statement runs interrupts the
// kernel running it.
type console struct {
	k          *kernel.Kernel
	doc        *kernel.Document
	tag        string
	fallback   string
	out        io.Writer
	errOut     io.Writer
	interrupts <-chan os.Signal
}

func (c *console) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, c.prompt())
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		if quit := c.handle(ctx, scanner.Text()); quit {
			return nil
		}
	}
}

// current returns the kernel the next statement runs in.
func (c *console) current() (string, catalog.Color) {
	if c.tag != "" {
		if spec, err := c.k.Catalog().Resolve(c.tag); err == nil {
			return spec.Name, spec.Color
		}
		return c.tag, ""
	}
	if s, ok := c.doc.Active(); ok {
		return s.Kernel(), s.Color()
	}
	if spec, err := c.k.Catalog().Resolve(c.fallback); err == nil {
		return spec.Name, spec.Color
	}
	return c.fallback, ""
}

func (c *console) prompt() string {
	name, color := c.current()
	return badge("["+name+"]", color) + " "
}

func (c *console) handle(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return false
	case trimmed == ":quit" || trimmed == ":q":
		return true
	case trimmed == ":help":
		fmt.Fprintln(c.out, consoleHelp)
	case trimmed == ":up" || trimmed == ":down":
		c.navigate(strings.TrimPrefix(trimmed, ":"))
	case trimmed == ":kernel" || strings.HasPrefix(trimmed, ":kernel "):
		c.switchKernel(strings.TrimSpace(strings.TrimPrefix(trimmed, ":kernel")))
	default:
		c.submit(ctx, line)
	}
	return false
}

func (c *console) navigate(direction string) {
	dir, _ := history.ParseDirection(direction)
	text, found, err := c.k.Navigate(c.doc, c.tag, dir)
	switch {
	case err != nil:
		fmt.Fprintln(c.errOut, errorStyle.Render(err.Error()))
	case found:
		fmt.Fprintln(c.out, text)
	default:
		fmt.Fprintln(c.out, dimStyle.Render("(no entry)"))
	}
}

func (c *console) switchKernel(tag string) {
	if tag == "" {
		c.tag = ""
		return
	}
	spec, err := c.k.Catalog().Resolve(tag)
	if err != nil {
		fmt.Fprintln(c.errOut, errorStyle.Render(err.Error()))
		return
	}
	c.tag = spec.Name
}

func (c *console) submit(ctx context.Context, code string) {
	done := make(chan *kernel.Result, 1)
	go func() {
		done <- c.k.Submit(ctx, c.doc, kernel.Request{Code: code, Kernel: c.tag, Context: kernel.ContextConsole})
	}()

	for {
		select {
		case res := <-done:
			if res.Cleared {
				fmt.Fprintln(c.out, dimStyle.Render("history cleared"))
			}
			writeOutputs(c.out, c.errOut, res.Reply().Outputs)
			return
		case <-c.interrupts:
			_ = c.k.Interrupt(c.doc, c.tag)
		}
	}
}
