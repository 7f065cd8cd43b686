package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tempnotes/pkg/handlers"
	"tempnotes/pkg/services"
	"tempnotes/pkg/storage"
)

const shutdownTimeout = 5 * time.Second

func (r *root) serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Long: `Serve the JSON API under /api. Changes made to the data directory by
other processes are picked up while the server runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := r.open(ctx)
			if err != nil {
				return err
			}
			if listen == "" {
				listen = a.cfg.Listen
			}

			editor := services.NewEditor(a.svc, a.cfg.AutosaveDelay)
			api := handlers.NewAPIHandlers(a.svc, editor, a.logger)
			srv := &http.Server{
				Addr:    listen,
				Handler: api.Router(),
			}

			go func() {
				err := a.fileKV.Watch(ctx, func(key string) {
					if key != storage.NotesKey && key != storage.NotebooksKey {
						return
					}
					if err := a.store.Reload(ctx); err != nil {
						a.logger.Warn("reload failed", "key", key, "err", err)
					}
				})
				if err != nil && ctx.Err() == nil {
					a.logger.Error("file watcher stopped", "err", err)
				}
			}()

			errc := make(chan error, 1)
			go func() {
				a.logger.Info("listening", "addr", listen, "data", a.cfg.DataPath)
				fmt.Fprintf(r.out, "Serving on http://%s/api\n", listen)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if err != nil && err != http.ErrServerClosed {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("shutdown", "err", err)
			}
			if err := editor.CloseAll(); err != nil {
				a.logger.Error("saving open sessions failed", "err", err)
			}
			a.svc.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config)")
	return cmd
}
