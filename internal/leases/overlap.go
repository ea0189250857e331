// Package leases implements reserve/renew/release of advisory file-path
// claims, with overlap detection against active claims in the same
// project. Grounded directly on the teacher's internal/db/queries_claims.go
// (same glob library, same "does this pattern match that path" idea),
// generalized from a single literal-path-vs-pattern check to the
// pattern-vs-pattern overlap the specification requires, since two agents
// may each reserve a glob rather than a literal path.
package leases

import (
	"strings"

	"github.com/gobwas/glob"
)

// Overlap reports whether two path patterns (each either a literal path or
// a glob using *, ?, **) could ever both match the same real file.
//
// The specification leaves glob-to-glob overlap as an explicit open
// question ("the source does not define an exact algorithm"). This
// implementation uses a three-tier approximation. Tiers 1 and 2 are exact;
// tier 3 errs towards reporting overlap, so two globs that can never match
// the same file (e.g. "src/*.go" and "src/*.md") may still be flagged:
//
//  1. Literal equality.
//  2. One side has no wildcards: it overlaps with the other iff the other
//     (compiled as a glob) matches that literal string.
//  3. Both sides contain wildcards: compare the non-wildcard prefix each
//     pattern starts with (split on '/'). If the shorter prefix is a path
//     prefix of the longer, or vice versa, they can still meet below the
//     first wildcard segment and are treated as overlapping.
func Overlap(a, b string) bool {
	if a == b {
		return true
	}

	aLiteral := !hasWildcard(a)
	bLiteral := !hasWildcard(b)

	switch {
	case aLiteral && bLiteral:
		return false // distinct literals already excluded above
	case aLiteral:
		return matches(b, a)
	case bLiteral:
		return matches(a, b)
	default:
		return prefixesOverlap(a, b)
	}
}

func hasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

func matches(pattern, literal string) bool {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return pattern == literal
	}
	return g.Match(literal)
}

// prefixesOverlap compares the non-wildcard path segments each pattern
// starts with; if one is a segment-wise prefix of the other, the patterns
// can still both match some path below that shared prefix.
func prefixesOverlap(a, b string) bool {
	aPrefix := literalPrefixSegments(a)
	bPrefix := literalPrefixSegments(b)

	n := len(aPrefix)
	if len(bPrefix) < n {
		n = len(bPrefix)
	}
	if n == 0 {
		// Both patterns start with a wildcard segment (e.g. "*/x.go" and
		// "**/y.go"): conservatively treat as overlapping, since either
		// could match anywhere.
		return true
	}
	for i := 0; i < n; i++ {
		if aPrefix[i] != bPrefix[i] {
			return false
		}
	}
	return true
}

func literalPrefixSegments(pattern string) []string {
	segments := strings.Split(pattern, "/")
	var prefix []string
	for _, seg := range segments {
		if hasWildcard(seg) {
			break
		}
		prefix = append(prefix, seg)
	}
	return prefix
}
