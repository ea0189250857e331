package leases

import (
	"database/sql"
	"fmt"

	"github.com/adamavenir/agentmail/internal/archive"
	"github.com/adamavenir/agentmail/internal/apperr"
	"github.com/adamavenir/agentmail/internal/ids"
	"github.com/adamavenir/agentmail/internal/store"
	"github.com/adamavenir/agentmail/internal/types"
)

// Manager reserves, renews and releases file-path claims, writing the
// archive's claims/ files and the index's claims table. Reserve writes each
// claim file and then its index row; Renew and Release update the index
// rows before rewriting or removing the claim files. All three commit the
// archive once at the end, so the index is written before the archive
// commit, not after it. It holds no lock itself; the caller (the engine
// facade) serializes calls per project.
type Manager struct {
	DB  *sql.DB
	Arc *archive.Archive
}

// Conflict reports every active holder of a path that overlaps a requested
// reservation, per the specification's "conflict responses list every
// current holder of the overlapping path, not just the first."
type Conflict struct {
	RequestedPath string
	Holders       []types.Claim
}

// ReserveResult is the outcome of a reserve_file_paths call: some paths may
// be granted while others conflict, in the same call.
type ReserveResult struct {
	Granted   []types.Claim
	Conflicts []Conflict
}

// Reserve sweeps expired claims, checks the requested paths against every
// remaining active claim in the project, and grants the non-conflicting
// ones. A requested path conflicts with an existing claim held by a
// different agent when the two paths overlap and either side is exclusive.
func (m *Manager) Reserve(projectID, agentName string, paths []string, exclusive bool, reason string, ttlSeconds, now int64) (ReserveResult, error) {
	if len(paths) == 0 {
		return ReserveResult{}, apperr.New(apperr.ErrInvalidArgument, "paths must be non-empty")
	}
	if _, err := store.SweepExpiredClaims(m.DB, projectID, now); err != nil {
		return ReserveResult{}, apperr.Wrap(apperr.ErrTimeout, "sweep expired claims", err)
	}

	active, err := store.ActiveClaims(m.DB, projectID, now)
	if err != nil {
		return ReserveResult{}, apperr.Wrap(apperr.ErrInvalidArgument, "load active claims", err)
	}

	var result ReserveResult
	var toGrant []string
	for _, p := range paths {
		var holders []types.Claim
		for _, c := range active {
			if c.AgentName == agentName {
				continue
			}
			if !Overlap(p, c.Path) {
				continue
			}
			if exclusive || c.Exclusive {
				holders = append(holders, c)
			}
		}
		if len(holders) > 0 {
			result.Conflicts = append(result.Conflicts, Conflict{RequestedPath: p, Holders: holders})
			continue
		}
		toGrant = append(toGrant, p)
	}

	for _, p := range toGrant {
		claim := types.Claim{
			ProjectID: projectID,
			AgentName: agentName,
			Path:      p,
			Exclusive: exclusive,
			Reason:    reason,
			CreatedTS: now,
			ExpiresTS: now + ttlSeconds,
		}

		record := archive.ClaimRecord{
			AgentName: claim.AgentName,
			Path:      claim.Path,
			Exclusive: claim.Exclusive,
			Reason:    claim.Reason,
			CreatedTS: claim.CreatedTS,
			ExpiresTS: claim.ExpiresTS,
		}
		data, err := marshalClaim(record)
		if err != nil {
			return ReserveResult{}, apperr.Wrap(apperr.ErrInvalidArgument, "encode claim", err)
		}
		relPath := archive.ClaimPath(ids.NewClaimFileName(p))
		if err := m.Arc.WriteFile(relPath, data); err != nil {
			return ReserveResult{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "write claim file", err)
		}

		granted, err := store.InsertClaim(m.DB, claim)
		if err != nil {
			return ReserveResult{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "index claim", err)
		}
		result.Granted = append(result.Granted, granted)
	}

	if len(toGrant) > 0 {
		subject := archive.ClaimSubject(agentName, exclusive, len(toGrant))
		if _, err := m.Arc.Commit(subject); err != nil {
			return ReserveResult{}, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "commit claim", err)
		}
	}

	return result, nil
}

// Renew extends the expiry of every active claim the agent holds matching
// the given paths (or all of the agent's active claims, if paths is empty)
// to now+ttlSeconds, keeping a claim's current expiry when that is later.
func (m *Manager) Renew(projectID, agentName string, paths []string, ttlSeconds, now int64) ([]types.Claim, error) {
	held, err := store.ActiveClaimsByAgent(m.DB, projectID, agentName, now)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "load claims", err)
	}

	var toRenew []types.Claim
	if len(paths) == 0 {
		toRenew = held
	} else {
		want := make(map[string]bool, len(paths))
		for _, p := range paths {
			want[p] = true
		}
		for _, c := range held {
			if want[c.Path] {
				toRenew = append(toRenew, c)
			}
		}
	}
	if len(toRenew) == 0 {
		return nil, apperr.New(apperr.ErrInvalidArgument, "no matching active claims to renew")
	}

	newExpiry := now + ttlSeconds
	var renewed []types.Claim
	for _, c := range toRenew {
		expiry := newExpiry
		if c.ExpiresTS > expiry {
			expiry = c.ExpiresTS
		}
		if err := store.ExtendClaim(m.DB, c.ID, expiry); err != nil {
			return nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "extend claim", err)
		}
		c.ExpiresTS = expiry

		record := archive.ClaimRecord{
			AgentName: c.AgentName,
			Path:      c.Path,
			Exclusive: c.Exclusive,
			Reason:    c.Reason,
			CreatedTS: c.CreatedTS,
			ExpiresTS: c.ExpiresTS,
		}
		data, err := marshalClaim(record)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrInvalidArgument, "encode claim", err)
		}
		relPath := archive.ClaimPath(ids.NewClaimFileName(c.Path))
		if err := m.Arc.WriteFile(relPath, data); err != nil {
			return nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "rewrite claim file", err)
		}
		renewed = append(renewed, c)
	}

	subject := archive.ClaimRenewSubject(agentName, len(renewed))
	if _, err := m.Arc.Commit(subject); err != nil {
		return nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "commit renewal", err)
	}
	return renewed, nil
}

// Release marks the agent's claims on the given paths (or all of the
// agent's active claims, if paths is empty) as released, in both archive
// and index.
func (m *Manager) Release(projectID, agentName string, paths []string, now int64) ([]types.Claim, error) {
	held, err := store.ActiveClaimsByAgent(m.DB, projectID, agentName, now)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "load claims", err)
	}

	var toRelease []types.Claim
	if len(paths) == 0 {
		toRelease = held
	} else {
		want := make(map[string]bool, len(paths))
		for _, p := range paths {
			want[p] = true
		}
		for _, c := range held {
			if want[c.Path] {
				toRelease = append(toRelease, c)
			}
		}
	}
	if len(toRelease) == 0 {
		return nil, nil
	}

	for _, c := range toRelease {
		if err := store.ReleaseClaim(m.DB, c.ID, now); err != nil {
			return nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "release claim", err)
		}
		relPath := archive.ClaimPath(ids.NewClaimFileName(c.Path))
		if err := m.Arc.RemoveFile(relPath); err != nil {
			return nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "remove claim file", err)
		}
	}

	subject := archive.ClaimReleaseSubject(agentName, len(toRelease))
	if _, err := m.Arc.Commit(subject); err != nil {
		return nil, apperr.Wrap(apperr.ErrIndexArchiveMismatch, "commit release", err)
	}
	return toRelease, nil
}

// SharedOverlap reports whether two agents in the same project each hold an
// active claim on overlapping paths, the auto contact-policy signal (a)
// from the specification's §4.7 ("from and to share an active overlapping
// claim on any path").
func SharedOverlap(db *sql.DB, projectID, agentA, agentB string, now int64) (bool, error) {
	active, err := store.ActiveClaims(db, projectID, now)
	if err != nil {
		return false, err
	}
	var aPaths, bPaths []string
	for _, c := range active {
		switch c.AgentName {
		case agentA:
			aPaths = append(aPaths, c.Path)
		case agentB:
			bPaths = append(bPaths, c.Path)
		}
	}
	for _, a := range aPaths {
		for _, b := range bPaths {
			if Overlap(a, b) {
				return true, nil
			}
		}
	}
	return false, nil
}

func marshalClaim(r archive.ClaimRecord) ([]byte, error) {
	data, err := archive.EncodeClaim(r)
	if err != nil {
		return nil, fmt.Errorf("encode claim record: %w", err)
	}
	return data, nil
}
