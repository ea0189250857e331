package store

import (
	"database/sql"

	"github.com/adamavenir/agentmail/internal/types"
)

// SweepExpiredClaims marks every active claim whose expiry has passed as
// released, per the lease Sweep step. Returns the count affected.
func SweepExpiredClaims(db *sql.DB, projectID string, now int64) (int64, error) {
	result, err := db.Exec(`
		UPDATE claims SET released_ts = ?
		WHERE project_id = ? AND released_ts IS NULL AND expires_ts < ?
	`, now, projectID, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// InsertClaim inserts a new active claim row.
func InsertClaim(db *sql.DB, c types.Claim) (types.Claim, error) {
	result, err := db.Exec(`
		INSERT INTO claims (project_id, agent_name, path, exclusive, reason, created_ts, expires_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ProjectID, c.AgentName, c.Path, boolToInt(c.Exclusive), c.Reason, c.CreatedTS, c.ExpiresTS)
	if err != nil {
		return types.Claim{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return types.Claim{}, err
	}
	c.ID = id
	return c, nil
}

// ActiveClaims returns every active claim in a project (caller sweeps first).
func ActiveClaims(db *sql.DB, projectID string, now int64) ([]types.Claim, error) {
	rows, err := db.Query(`
		SELECT id, project_id, agent_name, path, exclusive, reason, created_ts, expires_ts, released_ts
		FROM claims
		WHERE project_id = ? AND released_ts IS NULL AND expires_ts > ?
		ORDER BY created_ts
	`, projectID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClaims(rows)
}

// ActiveClaimsByAgent returns active claims in a project held by one agent.
func ActiveClaimsByAgent(db *sql.DB, projectID, agentName string, now int64) ([]types.Claim, error) {
	rows, err := db.Query(`
		SELECT id, project_id, agent_name, path, exclusive, reason, created_ts, expires_ts, released_ts
		FROM claims
		WHERE project_id = ? AND agent_name = ? AND released_ts IS NULL AND expires_ts > ?
		ORDER BY created_ts
	`, projectID, agentName, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClaims(rows)
}

// ListClaims returns every claim ever made in a project, active or released,
// newest first.
func ListClaims(db *sql.DB, projectID string) ([]types.Claim, error) {
	rows, err := db.Query(`
		SELECT id, project_id, agent_name, path, exclusive, reason, created_ts, expires_ts, released_ts
		FROM claims
		WHERE project_id = ?
		ORDER BY created_ts DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClaims(rows)
}

// ExtendClaim extends a claim's expiry; never shortens (caller passes max).
func ExtendClaim(db *sql.DB, id int64, newExpiresTS int64) error {
	_, err := db.Exec(`UPDATE claims SET expires_ts = ? WHERE id = ? AND expires_ts < ?`, newExpiresTS, id, newExpiresTS)
	return err
}

// ReleaseClaim sets released_ts on an active claim by id.
func ReleaseClaim(db *sql.DB, id int64, now int64) error {
	_, err := db.Exec(`UPDATE claims SET released_ts = ? WHERE id = ? AND released_ts IS NULL`, now, id)
	return err
}

func scanClaims(rows *sql.Rows) ([]types.Claim, error) {
	var out []types.Claim
	for rows.Next() {
		c, err := scanClaimRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanClaimRow(rows *sql.Rows) (types.Claim, error) {
	var c types.Claim
	var exclusive int
	var reason sql.NullString
	var releasedTS sql.NullInt64
	if err := rows.Scan(&c.ID, &c.ProjectID, &c.AgentName, &c.Path, &exclusive, &reason, &c.CreatedTS, &c.ExpiresTS, &releasedTS); err != nil {
		return types.Claim{}, err
	}
	c.Exclusive = exclusive != 0
	if reason.Valid {
		c.Reason = reason.String
	}
	if releasedTS.Valid {
		v := releasedTS.Int64
		c.ReleasedTS = &v
	}
	return c, nil
}
