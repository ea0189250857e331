package naming

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

var hintRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)

const maxHintLen = 40

// SanitizeNameHint reduces a caller-supplied hint to alphanumerics, capped
// at 40 characters, per the naming spec's name_hint handling.
func SanitizeNameHint(hint string) string {
	cleaned := hintRe.ReplaceAllString(hint, "")
	if len(cleaned) > maxHintLen {
		cleaned = cleaned[:maxHintLen]
	}
	return cleaned
}

// Exists reports whether name is already taken within a project; callers
// inject this as a closure over the store so naming stays storage-agnostic.
type Exists func(name string) (bool, error)

// GenerateName picks a memorable adjective+noun name, optionally honoring a
// caller hint, with per-project uniqueness enforced via exists. On collision
// it appends a monotonically increasing suffix letter, then digits.
func GenerateName(hint string, exists Exists) (string, error) {
	if hint != "" {
		candidate := SanitizeNameHint(hint)
		if candidate != "" {
			taken, err := exists(candidate)
			if err != nil {
				return "", err
			}
			if !taken {
				return candidate, nil
			}
			return disambiguate(candidate, exists)
		}
	}

	for attempt := 0; attempt < 64; attempt++ {
		adjective, err := randomWord(adjectives)
		if err != nil {
			return "", err
		}
		noun, err := randomWord(nouns)
		if err != nil {
			return "", err
		}
		candidate := adjective + "-" + noun
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	// Exhausted plain retries; force uniqueness via the suffix sequence.
	adjective, err := randomWord(adjectives)
	if err != nil {
		return "", err
	}
	noun, err := randomWord(nouns)
	if err != nil {
		return "", err
	}
	return disambiguate(adjective+"-"+noun, exists)
}

// disambiguate appends letters a..z then -2, -3, ... until free.
func disambiguate(base string, exists Exists) (string, error) {
	for _, letter := range "abcdefghijklmnopqrstuvwxyz" {
		candidate := fmt.Sprintf("%s-%c", base, letter)
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	for n := 2; n < 10000; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("exhausted name suffixes for %q", base)
}

func randomWord(words []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return "", err
	}
	return words[n.Int64()], nil
}

// ValidAgentName reports whether name is a lowercase dash-delimited
// identifier, the shape every generated name conforms to. A sanitized name
// hint keeps its letter case ("ReviewerBot"), so a hinted name can fail
// this check.
func ValidAgentName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") || strings.Contains(name, "--") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

var adjectives = []string{
	"amber", "brisk", "calm", "dusty", "eager", "fleet", "gentle", "hollow",
	"iron", "jovial", "keen", "lucid", "mellow", "nimble", "opal", "plucky",
	"quiet", "rustic", "steady", "tidy", "umber", "vivid", "wry", "zesty",
	"bold", "crisp", "deft", "earnest", "frank", "genial", "humble", "jolly",
}

var nouns = []string{
	"otter", "falcon", "badger", "heron", "lynx", "marten", "osprey", "puffin",
	"rabbit", "salmon", "tapir", "urchin", "vole", "walrus", "yak", "zebra",
	"beetle", "cricket", "dragonfly", "egret", "finch", "gecko", "hare", "ibis",
	"jay", "kestrel", "loon", "magpie", "newt", "orca", "pika", "quail",
}
