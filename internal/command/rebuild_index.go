package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adamavenir/agentmail/internal/archive"
	"github.com/adamavenir/agentmail/internal/config"
	"github.com/adamavenir/agentmail/internal/engine"
	"github.com/adamavenir/agentmail/internal/store"
)

func newRebuildIndexCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "rebuild-index",
		Short: "Reconcile the Index from the Archive",
		Long: `Replay every project's git-archived commits into the SQLite index,
restoring INV-1 (archive/index equivalence) after a crash or deleted index.
With --project, only that project's archive is replayed.`,
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

			archivePaths, err := discoverArchives(cfg.StorageRoot, project)
			if err != nil {
				return runtimeError(err)
			}

			for _, path := range archivePaths {
				if err := facade.RebuildIndex(context.Background(), path); err != nil {
					return runtimeError(fmt.Errorf("rebuild %s: %w", path, err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "only rebuild this project's slug (default: every project under STORAGE_ROOT)")
	return cmd
}

// discoverArchives lists every archive directory directly under storageRoot
// (every subdirectory carrying a project.json is a project archive), or just
// the named one if slug is non-empty.
func discoverArchives(storageRoot, slug string) ([]string, error) {
	if slug != "" {
		return []string{filepath.Join(storageRoot, slug)}, nil
	}

	entries, err := os.ReadDir(storageRoot)
	if err != nil {
		return nil, fmt.Errorf("list storage root: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == ".locks" {
			continue
		}
		candidate := filepath.Join(storageRoot, entry.Name())
		if _, err := os.Stat(filepath.Join(candidate, archive.ProjectMetaPath)); err != nil {
			continue
		}
		paths = append(paths, candidate)
	}
	return paths, nil
}
