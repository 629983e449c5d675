package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tailored-agentic-units/polyglot/kernel"
	"github.com/tailored-agentic-units/polyglot/statestore"
)

// cellMarker starts a cell. Text after it may name the cell's kernel in
// brackets: "# %% [R]".
const cellMarker = "# %%"

type cell struct {
	Kernel string
	Code   string
	Line   int
}

// splitCells splits percent-format source into cells. Text before the
// first marker is a cell of its own when it is not blank.
func splitCells(src string) []cell {
	var (
		cells []cell
		cur   = cell{Line: 1}
		body  []string
	)
	flushCell := func() {
		cur.Code = strings.TrimSpace(strings.Join(body, "\n"))
		if cur.Code != "" {
			cells = append(cells, cur)
		}
		body = nil
	}

	for i, line := range strings.Split(src, "\n") {
		if !strings.HasPrefix(line, cellMarker) {
			body = append(body, line)
			continue
		}
		flushCell()
		cur = cell{Line: i + 2}
		header := strings.TrimSpace(strings.TrimPrefix(line, cellMarker))
		if strings.HasPrefix(header, "[") && strings.HasSuffix(header, "]") {
			cur.Kernel = strings.TrimSpace(header[1 : len(header)-1])
		}
	}
	flushCell()
	return cells
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	var (
		docID     string
		keepGoing bool
	)

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run the cells of a percent-format file in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			k, cfg, flush, err := newKernel(v)
			if err != nil {
				return err
			}
			defer flush()
			defer k.Close(context.Background())

			ctx := cmd.Context()
			doc, err := k.Document(docID)
			if err != nil {
				return err
			}

			var store statestore.Store
			if docID != "" {
				opened, release, err := openStateStore(ctx, cfg)
				if err != nil {
					return err
				}
				defer release()
				store = opened
			}
			if store != nil {
				state, err := store.Load(ctx, docID)
				switch {
				case errors.Is(err, statestore.ErrNotFound):
				case err != nil:
					return err
				default:
					if err := k.Restore(ctx, doc, state); err != nil {
						return err
					}
				}
			}

			failures := runCells(ctx, cmd, k, doc, splitCells(string(src)), keepGoing)

			if store != nil {
				if err := store.Save(ctx, docID, k.State(doc)); err != nil {
					return err
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d cell(s) failed", failures)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&docID, "document", "", "Document id; with a state store its state is restored and saved")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "Run remaining cells after a failure")
	return cmd
}

func runCells(ctx context.Context, cmd *cobra.Command, k *kernel.Kernel, doc *kernel.Document, cells []cell, keepGoing bool) int {
	failures := 0
	for i, c := range cells {
		res := k.Submit(ctx, doc, kernel.Request{Code: c.Code, Kernel: c.Kernel})

		header := fmt.Sprintf("[%d]", i+1)
		if res.Kernel != "" {
			header += " " + badge(res.Kernel, res.Color)
		}
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render(fmt.Sprintf("line %d", c.Line))+" "+header)
		writeOutputs(cmd.OutOrStdout(), cmd.ErrOrStderr(), res.Reply().Outputs)

		if res.Err != nil {
			failures++
			if !keepGoing {
				break
			}
		}
	}
	return failures
}
