package store

import (
	"database/sql"

	"github.com/adamavenir/agentmail/internal/types"
)

// UpsertAgentLink inserts a pending link or returns the existing row for
// the same (from_project, from_agent, to_project, to_agent) direction.
func UpsertAgentLink(db *sql.DB, l types.AgentLink) (types.AgentLink, error) {
	_, err := db.Exec(`
		INSERT INTO agent_links (id, from_project_id, from_agent, to_project_id, to_agent, state, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_project_id, from_agent, to_project_id, to_agent) DO NOTHING
	`, l.ID, l.FromProjectID, l.FromAgent, l.ToProjectID, l.ToAgent, string(l.State), l.CreatedTS)
	if err != nil {
		return types.AgentLink{}, err
	}
	existing, err := GetAgentLinkByParties(db, l.FromProjectID, l.FromAgent, l.ToProjectID, l.ToAgent)
	if err != nil {
		return types.AgentLink{}, err
	}
	return *existing, nil
}

// GetAgentLinkByParties returns the directed link row, or nil.
func GetAgentLinkByParties(db *sql.DB, fromProjectID, fromAgent, toProjectID, toAgent string) (*types.AgentLink, error) {
	row := db.QueryRow(`
		SELECT id, from_project_id, from_agent, to_project_id, to_agent, state, created_ts, decided_ts
		FROM agent_links WHERE from_project_id = ? AND from_agent = ? AND to_project_id = ? AND to_agent = ?
	`, fromProjectID, fromAgent, toProjectID, toAgent)
	return scanAgentLink(row)
}

// GetAgentLinkByID returns a link by its id, or nil.
func GetAgentLinkByID(db *sql.DB, id string) (*types.AgentLink, error) {
	row := db.QueryRow(`
		SELECT id, from_project_id, from_agent, to_project_id, to_agent, state, created_ts, decided_ts
		FROM agent_links WHERE id = ?
	`, id)
	return scanAgentLink(row)
}

// SetAgentLinkState updates a link's state and decided_ts.
func SetAgentLinkState(db *sql.DB, id string, state types.LinkState, now int64) error {
	_, err := db.Exec(`UPDATE agent_links SET state = ?, decided_ts = ? WHERE id = ?`, string(state), now, id)
	return err
}

// ListLinksForProject returns every link touching a project, in either
// direction, for the overseer's approval-queue resource.
func ListLinksForProject(db *sql.DB, projectID string) ([]types.AgentLink, error) {
	rows, err := db.Query(`
		SELECT id, from_project_id, from_agent, to_project_id, to_agent, state, created_ts, decided_ts
		FROM agent_links WHERE from_project_id = ? OR to_project_id = ?
		ORDER BY created_ts DESC
	`, projectID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.AgentLink
	for rows.Next() {
		l, err := scanAgentLinkRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanAgentLink(row *sql.Row) (*types.AgentLink, error) {
	var l types.AgentLink
	var state string
	var decided sql.NullInt64
	if err := row.Scan(&l.ID, &l.FromProjectID, &l.FromAgent, &l.ToProjectID, &l.ToAgent, &state, &l.CreatedTS, &decided); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	l.State = types.LinkState(state)
	if decided.Valid {
		v := decided.Int64
		l.DecidedTS = &v
	}
	return &l, nil
}

func scanAgentLinkRows(rows *sql.Rows) (types.AgentLink, error) {
	var l types.AgentLink
	var state string
	var decided sql.NullInt64
	if err := rows.Scan(&l.ID, &l.FromProjectID, &l.FromAgent, &l.ToProjectID, &l.ToAgent, &state, &l.CreatedTS, &decided); err != nil {
		return types.AgentLink{}, err
	}
	l.State = types.LinkState(state)
	if decided.Valid {
		v := decided.Int64
		l.DecidedTS = &v
	}
	return l, nil
}

// InsertContactRequest inserts a new pending contact request.
func InsertContactRequest(db *sql.DB, c types.ContactRequest) error {
	_, err := db.Exec(`
		INSERT INTO contact_requests (id, project_id, from_agent, to_agent, reason, state, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.ProjectID, c.From, c.To, c.Reason, string(c.State), c.CreatedTS)
	return err
}

// GetContactRequest returns a contact request by id, or nil.
func GetContactRequest(db *sql.DB, id string) (*types.ContactRequest, error) {
	row := db.QueryRow(`
		SELECT id, project_id, from_agent, to_agent, reason, state, created_ts, decided_ts
		FROM contact_requests WHERE id = ?
	`, id)
	return scanContactRequest(row)
}

// FindAcceptedContact reports whether an accepted contact request exists
// between from and to (in that direction), for the contacts_only/auto policy.
func FindAcceptedContact(db *sql.DB, projectID, from, to string) (bool, error) {
	row := db.QueryRow(`
		SELECT 1 FROM contact_requests
		WHERE project_id = ? AND from_agent = ? AND to_agent = ? AND state = 'accepted'
		LIMIT 1
	`, projectID, from, to)
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

// FindPendingContact returns a pending request from->to, if any.
func FindPendingContact(db *sql.DB, projectID, from, to string) (*types.ContactRequest, error) {
	row := db.QueryRow(`
		SELECT id, project_id, from_agent, to_agent, reason, state, created_ts, decided_ts
		FROM contact_requests WHERE project_id = ? AND from_agent = ? AND to_agent = ? AND state = 'pending'
		ORDER BY created_ts DESC LIMIT 1
	`, projectID, from, to)
	return scanContactRequest(row)
}

// SetContactRequestState updates a request's state and decided_ts.
func SetContactRequestState(db *sql.DB, id string, state types.ContactState, now int64) error {
	_, err := db.Exec(`UPDATE contact_requests SET state = ?, decided_ts = ? WHERE id = ?`, string(state), now, id)
	return err
}

func scanContactRequest(row *sql.Row) (*types.ContactRequest, error) {
	var c types.ContactRequest
	var state string
	var reason sql.NullString
	var decided sql.NullInt64
	if err := row.Scan(&c.ID, &c.ProjectID, &c.From, &c.To, &reason, &state, &c.CreatedTS, &decided); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.State = types.ContactState(state)
	if reason.Valid {
		c.Reason = reason.String
	}
	if decided.Valid {
		v := decided.Int64
		c.DecidedTS = &v
	}
	return &c, nil
}
