package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhubert/cristal-core/claude"
	"github.com/zhubert/cristal-core/config"
)

var (
	sendSession string
	sendNew     bool
	sendModel   string
)

var sendCmd = &cobra.Command{
	Use:   "send [prompt...]",
	Short: "Send a prompt and stream the reply",
	Long: `Send runs one CLI turn for a chat session and streams the assistant's
reply to stdout. The session's CLI conversation is resumed when one is
recorded in the config. Ctrl-C aborts the run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")

		sess := resolveChatSession(prompt)
		svc, err := newChatService()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		model := sendModel
		if model == "" {
			model = sess.Model
		}
		if model == "" {
			model = cfg.GetModel()
		}

		err = svc.SendMessage(sess.ID, prompt, claude.SendOptions{
			RemoteSessionID: sess.RemoteSessionID,
			Model:           model,
		})
		if err != nil && !errors.As(err, new(*claude.SpawnError)) {
			return err
		}

		failed := stream(ctx, svc, sess.ID)
		if err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		if failed {
			return errors.New("run ended with an error")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendSession, "session", "s", "", "Chat session id (default: the current session)")
	sendCmd.Flags().BoolVar(&sendNew, "new", false, "Start a new chat session")
	sendCmd.Flags().StringVarP(&sendModel, "model", "m", "", "Model override for this turn")
}

// resolveChatSession picks the session named by --session, the current one,
// or a new one titled after the prompt.
func resolveChatSession(prompt string) config.ChatSession {
	if !sendNew {
		id := sendSession
		if id == "" {
			id = cfg.GetCurrentSessionID()
		}
		if sess := cfg.GetSession(id); sess != nil {
			cfg.SetCurrentSessionID(sess.ID)
			return *sess
		}
	}

	title := prompt
	if r := []rune(title); len(r) > 40 {
		title = string(r[:40]) + "..."
	}
	sess := config.NewChatSession(title)
	if sendSession != "" && !sendNew {
		sess.ID = sendSession
	}
	cfg.AddSession(sess)
	cfg.SetCurrentSessionID(sess.ID)
	return sess
}

// stream prints one run's events until its Complete arrives. It reports
// whether an error event was seen.
func stream(ctx context.Context, svc *claude.Service, sessionID string) bool {
	var printed int
	failed := false
	for {
		select {
		case <-ctx.Done():
			// Abort emits the run's Complete, which ends the loop.
			svc.Abort(sessionID)
			ctx = context.Background()
		case ev, ok := <-svc.Events():
			if !ok || ev.SessionID != sessionID {
				if !ok {
					return failed
				}
				continue
			}
			switch ev.Type {
			case claude.EventInit:
				cfg.TouchSession(sessionID, ev.RemoteSessionID)
			case claude.EventStreamingText:
				// Text is cumulative; print only what is new.
				if len(ev.Text) > printed {
					fmt.Print(ev.Text[printed:])
					printed = len(ev.Text)
				}
			case claude.EventToolUse:
				fmt.Fprintf(os.Stderr, "\n[%s]\n", ev.Tool.Name)
			case claude.EventCompactionNotice:
				fmt.Fprintf(os.Stderr, "\n[context compacted at %d tokens]\n", ev.Compaction.PreTokens)
			case claude.EventRateLimitError:
				failed = true
				fmt.Fprintf(os.Stderr, "\nRate limited: %s\n", ev.Message)
				if ev.ResetAt != nil {
					fmt.Fprintf(os.Stderr, "Resets at %s\n", ev.ResetAt.Local().Format("Jan 2 15:04"))
				} else if ev.ResetHint != "" {
					fmt.Fprintf(os.Stderr, "Resets %s\n", ev.ResetHint)
				}
			case claude.EventAuthError:
				failed = true
				fmt.Fprintf(os.Stderr, "\n%s\n", ev.Message)
			case claude.EventGenericError:
				failed = true
				fmt.Fprintf(os.Stderr, "\nError: %s\n", ev.Message)
			case claude.EventComplete:
				if printed > 0 {
					fmt.Println()
				}
				return failed
			}
		}
	}
}
