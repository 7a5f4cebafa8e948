package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhubert/cristal-core/config"
	"github.com/zhubert/cristal-core/logger"
	"github.com/zhubert/cristal-core/realtime"
)

var (
	serveAddr    string
	allowOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve chat and terminal sessions over a local WebSocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.WithComponent("serve")

		chat, err := newChatService()
		if err != nil {
			return err
		}
		defer chat.Close()

		terms, err := newTerminalService()
		if err != nil {
			return err
		}
		defer terms.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bridge := realtime.New(chat, terms, realtime.WithAllowedOrigins(allowOrigins...))
		go bridge.Run(ctx)

		// Settings edits apply to the next run without a restart.
		go func() {
			err := config.Watch(ctx, cfg.FilePath(), func() {
				updated, err := config.LoadFrom(cfg.FilePath())
				if err != nil {
					log.Warn("config reload failed", "error", err)
					return
				}
				if err := applySettings(chat, updated); err != nil {
					log.Warn("applying reloaded config failed", "error", err)
					return
				}
				log.Info("config reloaded")
			})
			if err != nil {
				log.Warn("config watch stopped", "error", err)
			}
		}()

		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           bridge.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		fmt.Printf("Listening on ws://%s/ws\n", serveAddr)
		log.Info("serving", "addr", serveAddr, "workdir", cfg.GetWorkingDir())

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:7420", "Listen address")
	serveCmd.Flags().StringSliceVar(&allowOrigins, "allow-origin", nil, "Extra browser origins allowed to connect (same-host pages always are)")
}
