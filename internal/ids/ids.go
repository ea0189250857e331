// Package ids generates the opaque identifiers used across the engine:
// time-prefixed message ids, content-addressed claim file names, and
// random hex suffixes. Grounded on the teacher's short-GUID generator,
// generalized from a single alphabet/prefix to the specific formats each
// entity in the data model requires.
package ids

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

const hexAlphabet = "0123456789abcdef"

// randomHex returns n random lowercase hex characters.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random suffix: %w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = hexAlphabet[int(b)%len(hexAlphabet)]
	}
	return string(out), nil
}

// NewMessageID returns "msg_" + YYYYMMDD + "_" + 8 random hex chars, per the
// mailbox id format in the specification.
func NewMessageID(now time.Time) (string, error) {
	suffix, err := randomHex(8)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("msg_%s_%s", now.UTC().Format("20060102"), suffix), nil
}

// NewClaimFileName returns the archive file name for a claim on path:
// hex(sha1(path)) + ".json", per the archive layout's claims/ directory.
func NewClaimFileName(path string) string {
	sum := sha1.Sum([]byte(path))
	return hex.EncodeToString(sum[:]) + ".json"
}

// NewAgentID returns a short random id suitable for an Agent's stored ID
// column (distinct from its human-readable Name).
func NewAgentID() (string, error) {
	suffix, err := randomHex(10)
	if err != nil {
		return "", err
	}
	return "agt_" + suffix, nil
}

// NewProjectID returns a short random id suitable for a Project's stored ID
// column (distinct from its Slug, which is derived rather than random).
func NewProjectID() (string, error) {
	suffix, err := randomHex(10)
	if err != nil {
		return "", err
	}
	return "prj_" + suffix, nil
}
