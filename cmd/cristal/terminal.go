package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zhubert/cristal-core/terminal"
)

var terminalProfile string

var terminalCmd = &cobra.Command{
	Use:   "terminal",
	Short: "Open an interactive shell in the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newTerminalService()
		if err != nil {
			return err
		}
		defer svc.Close()

		sess, err := svc.CreateSession("", terminalProfile)
		if err != nil {
			return err
		}
		if sess.BackendType == terminal.BackendFallback {
			fmt.Fprintln(os.Stderr, "Terminal running in limited mode (Python not found)")
		}

		fd := int(os.Stdin.Fd())
		if term.IsTerminal(fd) {
			if cols, rows, err := term.GetSize(fd); err == nil {
				svc.ResizeSession(sess.ID, uint16(cols), uint16(rows))
			}
			oldState, err := term.MakeRaw(fd)
			if err != nil {
				return fmt.Errorf("raw mode: %w", err)
			}
			defer term.Restore(fd, oldState)
		}

		go func() {
			buf := make([]byte, 4096)
			for {
				n, err := os.Stdin.Read(buf)
				if n > 0 {
					if werr := svc.WriteToSession(sess.ID, buf[:n]); errors.Is(werr, terminal.ErrSessionNotFound) {
						return
					}
				}
				if err != nil {
					if err != io.EOF {
						fmt.Fprintln(os.Stderr, err)
					}
					return
				}
			}
		}()

		for ev := range svc.Events() {
			if ev.SessionID != sess.ID {
				continue
			}
			switch ev.Kind {
			case terminal.EventData:
				os.Stdout.Write(ev.Data)
			case terminal.EventExit:
				return nil
			case terminal.EventError:
				return ev.Err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(terminalCmd)
	terminalCmd.Flags().StringVarP(&terminalProfile, "profile", "p", "", "Terminal profile id (default: the configured default profile)")
}
