package archive

import (
	"fmt"
	"strings"
)

// MailSubject builds the commit subject for a send/reply, per the
// specification's "mail: <from> -> <to-list> | <subject>" format.
func MailSubject(from string, to []string, subject string) string {
	return fmt.Sprintf("mail: %s -> %s | %s", from, strings.Join(to, ","), subject)
}

// AgentCreateSubject builds the commit subject for a new agent registration.
func AgentCreateSubject(name string) string {
	return fmt.Sprintf("agent: create %s", name)
}

// AgentUpdateSubject builds the commit subject for a mutable-field update
// on re-registration of an existing agent.
func AgentUpdateSubject(name string) string {
	return fmt.Sprintf("agent: update %s", name)
}

// ClaimSubject builds the commit subject for a reservation, per the
// specification's "claim: <agent> exclusive|shared <N> path(s)" format.
func ClaimSubject(agent string, exclusive bool, count int) string {
	kind := "shared"
	if exclusive {
		kind = "exclusive"
	}
	return fmt.Sprintf("claim: %s %s %d path(s)", agent, kind, count)
}

// ClaimReleaseSubject builds the commit subject for a release.
func ClaimReleaseSubject(agent string, count int) string {
	return fmt.Sprintf("claim: %s release %d path(s)", agent, count)
}

// ClaimRenewSubject builds the commit subject for a renewal.
func ClaimRenewSubject(agent string, count int) string {
	return fmt.Sprintf("claim: %s renew %d path(s)", agent, count)
}
