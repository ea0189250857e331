package command

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adamavenir/agentmail/internal/config"
	"github.com/adamavenir/agentmail/internal/engine"
	"github.com/adamavenir/agentmail/internal/store"
)

func newGCExpiredClaimsCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "gc-expired-claims",
		Short: "Sweep expired file-path claims from the Index",
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

			facade := engine.New(db, cfg.StorageRoot, nil)

			var slugs []string
			if project != "" {
				slugs = []string{project}
			} else {
				projects, err := store.ListProjects(db)
				if err != nil {
					return runtimeError(fmt.Errorf("list projects: %w", err))
				}
				for _, p := range projects {
					slugs = append(slugs, p.Slug)
				}
			}

			var total int64
			for _, slug := range slugs {
				swept, err := facade.GCExpiredClaims(slug)
				if err != nil {
					return runtimeError(fmt.Errorf("gc %s: %w", slug, err))
				}
				total += swept
			}
			fmt.Fprintf(cmd.OutOrStdout(), "swept %d expired claim(s)\n", total)
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "only sweep this project's slug (default: every project)")
	return cmd
}
