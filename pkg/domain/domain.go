package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Separator joins domain lists in storage and on proxy entries
const Separator = ";"

// Parse splits a ';'-joined domain list, trimming whitespace and
// dropping empty tokens. Input order is preserved.
func Parse(s string) []string {
	parts := strings.Split(s, Separator)
	domains := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		domains = append(domains, p)
	}
	return domains
}

// Join is the inverse of Parse: ';'-joined, no trailing separator
func Join(domains []string) string {
	return strings.Join(domains, Separator)
}

// Hash computes the canonical identity of a domain set: lowercase the
// trimmed members, deduplicate, sort lexicographically, join with ';'
// and SHA-256 the result. Stable across permutation and duplication.
func Hash(domains []string) string {
	seen := make(map[string]struct{}, len(domains))
	canonical := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		canonical = append(canonical, d)
	}
	sort.Strings(canonical)

	sum := sha256.Sum256([]byte(strings.Join(canonical, Separator)))
	return hex.EncodeToString(sum[:])
}

// HashJoined is Hash over a still-joined domain list
func HashJoined(s string) string {
	return Hash(Parse(s))
}

// Primary returns the first domain of a group, the filesystem key for
// certificate storage. Empty string for an empty group.
func Primary(domains []string) string {
	if len(domains) == 0 {
		return ""
	}
	return domains[0]
}

// Normalize strips leading "*." wildcards and drops entries that become
// empty. Used before rendering server_name lists.
func Normalize(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(d)
		d = strings.TrimPrefix(d, "*.")
		if d == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}
