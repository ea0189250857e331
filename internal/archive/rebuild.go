package archive

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Snapshot is everything InV-1 needs to reconstruct the Index from one
// project's Archive: the project identity, every agent profile, every
// canonical message (with its recipient list folded in), and every claim
// file still present on disk (releases delete the file, so a claim's
// absence from the snapshot means it is no longer active).
type Snapshot struct {
	Meta     ProjectMetaRecord
	Agents   []AgentProfileRecord
	Messages []SnapshotMessage
	Claims   []ClaimRecord
}

// SnapshotMessage pairs a decoded message file with its body.
type SnapshotMessage struct {
	Frontmatter MessageFrontmatter
	Body        string
}

// ReadSnapshot walks every file tracked at HEAD and parses it, for the
// rebuild-index operation. It never touches the Index; the caller upserts
// the returned records.
func (a *Archive) ReadSnapshot() (Snapshot, error) {
	files, err := a.ListTrackedFiles()
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	for _, relPath := range files {
		switch {
		case relPath == ProjectMetaPath:
			data, err := a.ReadFile(relPath)
			if err != nil {
				return Snapshot{}, fmt.Errorf("read %s: %w", relPath, err)
			}
			if err := json.Unmarshal(data, &snap.Meta); err != nil {
				return Snapshot{}, fmt.Errorf("parse %s: %w", relPath, err)
			}

		case strings.HasPrefix(relPath, "agents/") && strings.HasSuffix(relPath, "/profile.json"):
			data, err := a.ReadFile(relPath)
			if err != nil {
				return Snapshot{}, fmt.Errorf("read %s: %w", relPath, err)
			}
			var profile AgentProfileRecord
			if err := json.Unmarshal(data, &profile); err != nil {
				return Snapshot{}, fmt.Errorf("parse %s: %w", relPath, err)
			}
			snap.Agents = append(snap.Agents, profile)

		case strings.HasPrefix(relPath, "messages/") && strings.HasSuffix(relPath, ".md"):
			data, err := a.ReadFile(relPath)
			if err != nil {
				return Snapshot{}, fmt.Errorf("read %s: %w", relPath, err)
			}
			fm, body, err := DecodeMessage(data)
			if err != nil {
				return Snapshot{}, fmt.Errorf("parse %s: %w", relPath, err)
			}
			snap.Messages = append(snap.Messages, SnapshotMessage{Frontmatter: fm, Body: body})

		case strings.HasPrefix(relPath, "claims/") && strings.HasSuffix(relPath, ".json"):
			data, err := a.ReadFile(relPath)
			if err != nil {
				return Snapshot{}, fmt.Errorf("read %s: %w", relPath, err)
			}
			var claim ClaimRecord
			if err := json.Unmarshal(data, &claim); err != nil {
				return Snapshot{}, fmt.Errorf("parse %s: %w", relPath, err)
			}
			snap.Claims = append(snap.Claims, claim)
		}
		// agents/*/inbox|outbox/** are per-recipient copies of the
		// canonical messages/** file and are intentionally skipped here —
		// reading them too would double-count recipients already present
		// in the canonical frontmatter's to/cc/bcc lists.
	}

	return snap, nil
}
