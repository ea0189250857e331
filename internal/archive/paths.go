package archive

import (
	"path/filepath"
	"time"
)

// Layout helpers for the per-project git working tree described in the
// specification's Archive component:
//
//	agents/<Name>/profile.json
//	agents/<Name>/inbox/<YYYY>/<MM>/<msg-id>.md
//	agents/<Name>/outbox/<YYYY>/<MM>/<msg-id>.md
//	messages/<YYYY>/<MM>/<msg-id>.md
//	claims/<sha1(path)>.json

func monthDir(ts int64) (year, month string) {
	t := time.Unix(ts, 0).UTC()
	return t.Format("2006"), t.Format("01")
}

// CanonicalMessagePath returns the canonical per-project copy of a message.
func CanonicalMessagePath(msgID string, createdTS int64) string {
	year, month := monthDir(createdTS)
	return filepath.Join("messages", year, month, msgID+".md")
}

// AgentProfilePath returns an agent's profile file path.
func AgentProfilePath(agentName string) string {
	return filepath.Join("agents", agentName, "profile.json")
}

// AgentInboxPath returns an agent's inbox copy of a message.
func AgentInboxPath(agentName, msgID string, createdTS int64) string {
	year, month := monthDir(createdTS)
	return filepath.Join("agents", agentName, "inbox", year, month, msgID+".md")
}

// AgentOutboxPath returns an agent's outbox copy of a message.
func AgentOutboxPath(agentName, msgID string, createdTS int64) string {
	year, month := monthDir(createdTS)
	return filepath.Join("agents", agentName, "outbox", year, month, msgID+".md")
}

// ClaimPath returns a claim file's path, addressed by content hash of its
// reserved path so releases and renewals find the same file deterministically.
func ClaimPath(claimFileName string) string {
	return filepath.Join("claims", claimFileName)
}

// ProjectMetaPath is the project identity file at the archive root, the one
// piece of information (human_key) a rebuild cannot re-derive from slug
// alone, since slug(human_key) is one-way.
const ProjectMetaPath = "project.json"
