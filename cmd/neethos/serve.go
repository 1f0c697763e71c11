package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codeneeth/neethos-chat/internal/delivery/telegram"
	"github.com/codeneeth/neethos-chat/internal/delivery/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web page and API, plus the Telegram bot when configured",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appOptions{withAI: true})
		if err != nil {
			return err
		}
		defer a.Close()

		handler := web.NewHandler(a.chat, a.themes, a.log)
		srv := &http.Server{
			Addr:              a.cfg.HTTPAddr,
			Handler:           web.NewRouter(handler, a.log),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		var bot *telegram.BotHandler
		if a.cfg.TelegramEnabled() {
			if bot, err = telegram.NewBotHandler(a.cfg.TelegramToken, a.chat, a.log); err != nil {
				return err
			}
		} else {
			a.log.Info("telegram bot disabled, TELEGRAM_BOT_TOKEN not set")
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			a.log.Info("http server listening", zap.String("addr", srv.Addr))
			return runServer(gctx, srv)
		})
		if bot != nil {
			g.Go(func() error {
				if err := bot.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		}

		err = g.Wait()

		// the http server has stopped accepting; drain sockets before the store closes
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if derr := handler.Shutdown(drainCtx); derr != nil {
			a.log.Warn("websocket drain incomplete", zap.Error(derr))
		}
		return err
	},
}

// runServer serves until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
