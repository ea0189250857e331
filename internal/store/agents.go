package store

import (
	"database/sql"

	"github.com/adamavenir/agentmail/internal/types"
)

// UpsertAgent inserts a new agent or, on (project_id, name) conflict,
// updates the mutable fields (program, model, task, last_active) per the
// register_agent idempotence invariant.
func UpsertAgent(db *sql.DB, a types.Agent) (types.Agent, error) {
	_, err := db.Exec(`
		INSERT INTO agents (id, project_id, name, program, model, task_description, inception_ts, last_active_ts, contact_policy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, name) DO UPDATE SET
			program = excluded.program,
			model = excluded.model,
			task_description = excluded.task_description,
			last_active_ts = excluded.last_active_ts
	`, a.ID, a.ProjectID, a.Name, a.Program, a.Model, a.TaskDescription, a.InceptionTS, a.LastActiveTS, string(a.ContactPolicy))
	if err != nil {
		return types.Agent{}, err
	}
	existing, err := GetAgent(db, a.ProjectID, a.Name)
	if err != nil {
		return types.Agent{}, err
	}
	return *existing, nil
}

// GetAgent returns the named agent within a project, or nil.
func GetAgent(db *sql.DB, projectID, name string) (*types.Agent, error) {
	row := db.QueryRow(`
		SELECT id, project_id, name, program, model, task_description, inception_ts, last_active_ts, contact_policy
		FROM agents WHERE project_id = ? AND name = ?
	`, projectID, name)
	return scanAgent(row)
}

// AgentExists reports whether name is already registered in the project.
func AgentExists(db *sql.DB, projectID, name string) (bool, error) {
	agent, err := GetAgent(db, projectID, name)
	if err != nil {
		return false, err
	}
	return agent != nil, nil
}

// ListAgents returns agents in a project, optionally filtered by activity.
func ListAgents(db *sql.DB, projectID string, activeOnly bool, now, windowSeconds int64) ([]types.Agent, error) {
	rows, err := db.Query(`
		SELECT id, project_id, name, program, model, task_description, inception_ts, last_active_ts, contact_policy
		FROM agents WHERE project_id = ? ORDER BY name
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Agent
	for rows.Next() {
		a, err := scanAgentRows(rows)
		if err != nil {
			return nil, err
		}
		if activeOnly && !a.Active(now, windowSeconds) {
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetContactPolicy updates an agent's contact policy and returns the row.
func SetContactPolicy(db *sql.DB, projectID, name string, policy types.ContactPolicy) (*types.Agent, error) {
	if _, err := db.Exec(`UPDATE agents SET contact_policy = ? WHERE project_id = ? AND name = ?`, string(policy), projectID, name); err != nil {
		return nil, err
	}
	return GetAgent(db, projectID, name)
}

// TouchAgent updates last_active_ts to now.
func TouchAgent(db *sql.DB, projectID, name string, now int64) error {
	_, err := db.Exec(`UPDATE agents SET last_active_ts = ? WHERE project_id = ? AND name = ?`, now, projectID, name)
	return err
}

func scanAgent(row *sql.Row) (*types.Agent, error) {
	var a types.Agent
	var policy string
	if err := row.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Program, &a.Model, &a.TaskDescription, &a.InceptionTS, &a.LastActiveTS, &policy); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	a.ContactPolicy = types.ContactPolicy(policy)
	return &a, nil
}

func scanAgentRows(rows *sql.Rows) (types.Agent, error) {
	var a types.Agent
	var policy string
	if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Program, &a.Model, &a.TaskDescription, &a.InceptionTS, &a.LastActiveTS, &policy); err != nil {
		return types.Agent{}, err
	}
	a.ContactPolicy = types.ContactPolicy(policy)
	return a, nil
}
