package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	apihttp "github.com/GriffinCanCode/termhost/internal/api/http"
	"github.com/GriffinCanCode/termhost/internal/client"
)

type rootOptions struct {
	server  string
	timeout time.Duration
	json    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "termctl",
		Short:         "Control a running terminal host",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	defServer := os.Getenv("TERMHOST_URL")
	if defServer == "" {
		defServer = "http://127.0.0.1:8000"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", defServer, "Server base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", client.DefaultTimeout, "Request timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "Print raw JSON")

	root.AddCommand(
		newListCmd(opts),
		newCreateCmd(opts),
		newDeleteCmd(opts),
		newInputCmd(opts),
		newSaveCmd(opts),
		newRestoreCmd(opts),
		newDiagnosticsCmd(opts),
		newHealthCmd(opts),
	)
	return root
}

func (o *rootOptions) client() *client.Client {
	return client.New(strings.TrimRight(o.server, "/"), client.Options{Timeout: o.timeout})
}

func printJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open terminals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			terminals, err := opts.client().List(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), terminals)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tID\tNAME\tSTATE\tPID\tACTIVE")
			for _, t := range terminals {
				active := ""
				if t.IsActive {
					active = "*"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", t.Number, t.ID, t.Name, t.Lifecycle.ProcessState, t.Pid, active)
			}
			return tw.Flush()
		},
	}
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var req apihttp.CreateTerminalRequest
	var background bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if background {
				focus := false
				req.Focus = &focus
			}
			t, err := opts.client().Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), t)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %s (#%d %s)\n", t.ID, t.Number, t.Name)
			return err
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Terminal name")
	cmd.Flags().StringVar(&req.Cwd, "cwd", "", "Working directory")
	cmd.Flags().StringVar(&req.Shell, "shell", "", "Shell to run")
	cmd.Flags().IntVar(&req.Cols, "cols", 0, "Columns")
	cmd.Flags().IntVar(&req.Rows, "rows", 0, "Rows")
	cmd.Flags().BoolVar(&background, "background", false, "Do not focus the new terminal")
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <terminal-id>...",
		Short: "Close terminals",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			for _, id := range args {
				if err := c.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}
}

func newInputCmd(opts *rootOptions) *cobra.Command {
	var noNewline bool
	cmd := &cobra.Command{
		Use:   "input <terminal-id> <text>",
		Short: "Type text into a terminal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := args[1]
			if !noNewline {
				data += "\r"
			}
			return opts.client().Input(cmd.Context(), args[0], data)
		},
	}
	cmd.Flags().BoolVarP(&noNewline, "no-newline", "n", false, "Do not press enter after the text")
	return cmd
}

func newSaveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Persist the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := opts.client().Save(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "saved %d terminal(s)\n", n)
			return err
		},
	}
}

func newRestoreCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().Restore(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			if res.Reason != "" {
				_, err = fmt.Fprintf(out, "nothing restored: %s\n", res.Reason)
				return err
			}
			_, err = fmt.Fprintf(out, "restored %d terminal(s), skipped %d\n", res.RestoredCount, res.SkippedCount)
			return err
		},
	}
}

func newDiagnosticsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "diagnostics",
		Aliases: []string{"diag"},
		Short:   "Show registry, lifecycle and health state",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			diag, err := opts.client().Diagnostics(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), diag)
		},
	}
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), h)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (v%s), %d terminal(s), surface connected: %t\n",
				h.Status, h.Version, h.Terminals, h.SurfaceConnected)
			return err
		},
	}
}
