package command

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamavenir/agentmail/internal/config"
	"github.com/adamavenir/agentmail/internal/engine"
	"github.com/adamavenir/agentmail/internal/llm"
	"github.com/adamavenir/agentmail/internal/mcpserver"
	"github.com/adamavenir/agentmail/internal/store"
)

func newServeHTTPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve-http",
		Short: "Run the MCP-over-streamable-HTTP coordination server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return configError(err)
			}

			db, err := store.Open(filepath.Join(cfg.StorageRoot, "index.db"))
			if err != nil {
				return runtimeError(fmt.Errorf("open index: %w", err))
			}
			defer db.Close()

			var summarizer llm.Summarizer
			if cfg.LLMEnabled {
				summarizer = llm.NewHTTPSummarizer(cfg.LLMDefaultModel)
			}

			facade := engine.New(db, cfg.StorageRoot, summarizer)
			handler := mcpserver.NewHandler(facade, cfg, cmd.Root().Version)

			mux := http.NewServeMux()
			mux.Handle("/mcp/", http.StripPrefix("/mcp", handler))

			addr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
			srv := &http.Server{Addr: addr, Handler: mux}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			fmt.Fprintf(cmd.OutOrStdout(), "agentmail listening on %s\n", addr)

			select {
			case <-ctx.Done():
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = srv.Shutdown(shutdownCtx)
				return nil
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return runtimeError(err)
				}
				return nil
			}
		},
	}
}
