package store

import (
	"database/sql"

	"github.com/adamavenir/agentmail/internal/types"
)

// Search runs a full-text query against the messages_fts virtual table and
// returns matches ordered by created_ts DESC, per the mailbox spec. query
// is passed through to FTS5 verbatim, so phrase ("..."), prefix (*), and
// boolean (AND/OR/NOT) syntax are all the index's native grammar.
func Search(db *sql.DB, projectID, query string, limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT m.id, m.project_id, m.thread_id, m.subject, m.body_md, m.from_agent, m.from_kind, m.created_ts, m.importance, m.ack_required, m.attachments
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		WHERE messages_fts MATCH ? AND m.project_id = ?
		ORDER BY m.created_ts DESC
		LIMIT ?
	`, query, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}
