package store

import (
	"database/sql"
	"encoding/json"

	"github.com/adamavenir/agentmail/internal/types"
)

// UpsertProject inserts or replaces a project row, keyed by id.
func UpsertProject(db *sql.DB, p types.Project) error {
	meta, err := json.Marshal(p.Meta)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO projects (id, human_key, slug, archive_path, created_ts, meta)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			human_key = excluded.human_key,
			slug = excluded.slug,
			archive_path = excluded.archive_path,
			meta = excluded.meta
	`, p.ID, p.HumanKey, p.Slug, p.ArchivePath, p.CreatedTS, string(meta))
	return err
}

// GetProjectBySlug returns the project with the given slug, or nil.
func GetProjectBySlug(db *sql.DB, slug string) (*types.Project, error) {
	row := db.QueryRow(`
		SELECT id, human_key, slug, archive_path, created_ts, meta
		FROM projects WHERE slug = ?
	`, slug)
	return scanProject(row)
}

// GetProjectByHumanKey returns the project for a human key, or nil.
func GetProjectByHumanKey(db *sql.DB, humanKey string) (*types.Project, error) {
	row := db.QueryRow(`
		SELECT id, human_key, slug, archive_path, created_ts, meta
		FROM projects WHERE human_key = ?
	`, humanKey)
	return scanProject(row)
}

// ListProjects returns every known project, ordered by creation time.
func ListProjects(db *sql.DB) ([]types.Project, error) {
	rows, err := db.Query(`
		SELECT id, human_key, slug, archive_path, created_ts, meta
		FROM projects ORDER BY created_ts
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Project
	for rows.Next() {
		var p types.Project
		var meta string
		if err := rows.Scan(&p.ID, &p.HumanKey, &p.Slug, &p.ArchivePath, &p.CreatedTS, &meta); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(meta), &p.Meta)
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProject(scanner interface{ Scan(dest ...any) error }) (*types.Project, error) {
	var p types.Project
	var meta string
	if err := scanner.Scan(&p.ID, &p.HumanKey, &p.Slug, &p.ArchivePath, &p.CreatedTS, &meta); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	_ = json.Unmarshal([]byte(meta), &p.Meta)
	return &p, nil
}
