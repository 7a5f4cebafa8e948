package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhubert/cristal-core/terminal"
)

var (
	statusInput   string
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Run a CLI slash command headlessly and print its output",
	Long: `Status starts the CLI without a visible terminal, types a slash command
once it has started, and prints whatever the CLI shows before it exits or
the timeout elapses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newTerminalService()
		if err != nil {
			return err
		}
		defer svc.Close()

		input := statusInput
		if !strings.HasSuffix(input, "\r") {
			input += "\r"
		}

		out, err := svc.ExecuteHeadless(cmd.Context(), cfg.GetCLIPath(), input, statusTimeout)
		if err != nil {
			return err
		}
		if out == "" {
			fmt.Fprintln(os.Stderr, "No output.")
			return nil
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusInput, "input", "/status", "Input typed into the CLI after startup")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", terminal.DefaultHeadlessTimeout, "How long to wait for output")
}
