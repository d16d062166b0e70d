// Package strings holds small helpers for list-valued settings.
package strings

import (
	"strings"
)

// SplitList splits raw on sep, trims each element, and drops empty and
// repeated elements. Order of first appearance is kept.
//
//	SplitList("redpanda:9092, kafka:9092,,redpanda:9092", ",")
//	// []string{"redpanda:9092", "kafka:9092"}
func SplitList(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, sep)
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
