package store

import (
	"database/sql"
	"encoding/json"

	"github.com/adamavenir/agentmail/internal/types"
)

// Recipients that a message should be (re-)indexed with.
type RecipientInput struct {
	AgentName string
	Kind      types.RecipientKind
}

// InsertMessage writes the message row and its recipient rows inside a
// single transaction, matching the archive-then-index ordering the facade
// enforces (the archive write happens before this call; this call is the
// "index upsert" half of the ordering guarantee).
func InsertMessage(db *sql.DB, m types.Message, recipients []RecipientInput) error {
	attachments, err := json.Marshal(m.Attachments)
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO messages (id, project_id, thread_id, subject, body_md, from_agent, from_kind, created_ts, importance, ack_required, attachments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ProjectID, m.ThreadID, m.Subject, m.BodyMD, m.FromAgent, string(m.FromKind), m.CreatedTS, string(m.Importance), boolToInt(m.AckRequired), string(attachments)); err != nil {
		return err
	}

	for _, r := range recipients {
		if _, err := tx.Exec(`
			INSERT INTO recipients (message_id, agent_name, kind) VALUES (?, ?, ?)
		`, m.ID, r.AgentName, string(r.Kind)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetMessage returns a message by id, or nil.
func GetMessage(db *sql.DB, id string) (*types.Message, error) {
	row := db.QueryRow(`
		SELECT id, project_id, thread_id, subject, body_md, from_agent, from_kind, created_ts, importance, ack_required, attachments
		FROM messages WHERE id = ?
	`, id)
	return scanMessage(row)
}

// InboxQuery narrows fetch_inbox results per the specification.
type InboxQuery struct {
	SinceTS     int64
	UrgentOnly  bool
	Limit       int
}

// FetchInbox returns messages newest-first addressed to agentName (to/cc/bcc).
func FetchInbox(db *sql.DB, projectID, agentName string, q InboxQuery) ([]types.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT m.id, m.project_id, m.thread_id, m.subject, m.body_md, m.from_agent, m.from_kind, m.created_ts, m.importance, m.ack_required, m.attachments
		FROM messages m
		JOIN recipients r ON r.message_id = m.id
		WHERE m.project_id = ? AND r.agent_name = ? AND m.created_ts > ?
	`
	args := []any{projectID, agentName, q.SinceTS}
	if q.UrgentOnly {
		query += " AND m.importance IN ('high', 'urgent')"
	}
	query += " ORDER BY m.created_ts DESC, m.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// FetchOutbox returns messages sent by agentName, newest first.
func FetchOutbox(db *sql.DB, projectID, agentName string, limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, project_id, thread_id, subject, body_md, from_agent, from_kind, created_ts, importance, ack_required, attachments
		FROM messages WHERE project_id = ? AND from_agent = ?
		ORDER BY created_ts DESC, id DESC LIMIT ?
	`, projectID, agentName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListThread returns every message in a thread, oldest first.
func ListThread(db *sql.DB, projectID, threadID string) ([]types.Message, error) {
	rows, err := db.Query(`
		SELECT id, project_id, thread_id, subject, body_md, from_agent, from_kind, created_ts, importance, ack_required, attachments
		FROM messages WHERE project_id = ? AND thread_id = ?
		ORDER BY created_ts ASC, id ASC
	`, projectID, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecipientsOf returns recipient rows for a message.
func RecipientsOf(db *sql.DB, messageID string) ([]types.Recipient, error) {
	rows, err := db.Query(`
		SELECT message_id, agent_name, kind, read_ts, ack_ts FROM recipients WHERE message_id = ?
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Recipient
	for rows.Next() {
		var r types.Recipient
		var kind string
		if err := rows.Scan(&r.MessageID, &r.AgentName, &kind, &r.ReadTS, &r.AckTS); err != nil {
			return nil, err
		}
		r.Kind = types.RecipientKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkRead sets read_ts for a recipient row if not already set.
func MarkRead(db *sql.DB, messageID, agentName string, now int64) error {
	_, err := db.Exec(`
		UPDATE recipients SET read_ts = ? WHERE message_id = ? AND agent_name = ? AND read_ts IS NULL
	`, now, messageID, agentName)
	return err
}

// Acknowledge sets ack_ts for a recipient row, returning whether a row was updated.
func Acknowledge(db *sql.DB, messageID, agentName string, now int64) (bool, error) {
	result, err := db.Exec(`
		UPDATE recipients SET ack_ts = ? WHERE message_id = ? AND agent_name = ?
	`, now, messageID, agentName)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SharedThreadExists reports whether either agent has sent a message that
// the other received (as to, cc or bcc), used by the auto contact policy.
func SharedThreadExists(db *sql.DB, projectID, agentA, agentB string) (bool, error) {
	row := db.QueryRow(`
		SELECT 1
		FROM messages m
		WHERE m.project_id = ?
		  AND (
		    (m.from_agent = ? AND EXISTS (SELECT 1 FROM recipients r WHERE r.message_id = m.id AND r.agent_name = ?))
		    OR
		    (m.from_agent = ? AND EXISTS (SELECT 1 FROM recipients r WHERE r.message_id = m.id AND r.agent_name = ?))
		  )
		LIMIT 1
	`, projectID, agentA, agentB, agentB, agentA)
	var dummy int
	err := row.Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanMessage(row *sql.Row) (*types.Message, error) {
	var m types.Message
	var fromKind, importance, attachments string
	var ackRequired int
	if err := row.Scan(&m.ID, &m.ProjectID, &m.ThreadID, &m.Subject, &m.BodyMD, &m.FromAgent, &fromKind, &m.CreatedTS, &importance, &ackRequired, &attachments); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m.FromKind = types.FromKind(fromKind)
	m.Importance = types.Importance(importance)
	m.AckRequired = ackRequired != 0
	_ = json.Unmarshal([]byte(attachments), &m.Attachments)
	return &m, nil
}

func scanMessages(rows *sql.Rows) ([]types.Message, error) {
	var out []types.Message
	for rows.Next() {
		var m types.Message
		var fromKind, importance, attachments string
		var ackRequired int
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.ThreadID, &m.Subject, &m.BodyMD, &m.FromAgent, &fromKind, &m.CreatedTS, &importance, &ackRequired, &attachments); err != nil {
			return nil, err
		}
		m.FromKind = types.FromKind(fromKind)
		m.Importance = types.Importance(importance)
		m.AckRequired = ackRequired != 0
		_ = json.Unmarshal([]byte(attachments), &m.Attachments)
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
