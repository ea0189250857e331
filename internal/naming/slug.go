package naming

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
)

var unsafeRunRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

const maxSlugPrefixLen = 40

// Slug derives a stable, safe short form of a human key (an absolute path
// or repo URL). Given the same human key it always returns the same slug
// (INV-5): sanitize(human_key)[:40] + "-" + hex(sha1(human_key))[:10].
func Slug(humanKey string) string {
	sanitized := sanitize(humanKey)
	if len(sanitized) > maxSlugPrefixLen {
		sanitized = sanitized[:maxSlugPrefixLen]
	}
	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		sanitized = "project"
	}
	sum := sha1.Sum([]byte(humanKey))
	return sanitized + "-" + hex.EncodeToString(sum[:])[:10]
}

func sanitize(value string) string {
	return unsafeRunRe.ReplaceAllString(value, "-")
}
