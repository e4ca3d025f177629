// Package keyword owns the working set of search terms for a job: seed
// terms plus bounded AI-generated expansions once seeds run dry.
package keyword

import (
	"context"
	"fmt"
	"strings"
)

// Generator produces candidate expansion terms for a topic. The real
// implementation calls an AI completion API and may fail or return junk;
// callers must survive both.
type Generator interface {
	Generate(ctx context.Context, topic string, existing []string, count int) ([]string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, topic string, existing []string, count int) ([]string, error)

func (f GeneratorFunc) Generate(ctx context.Context, topic string, existing []string, count int) ([]string, error) {
	return f(ctx, topic, existing, count)
}

// fallbackQualifiers are appended to existing terms when the external
// generator is unavailable, so a job can still make forward progress.
var fallbackQualifiers = []string{
	"tips", "tutorial", "review", "ideas", "for beginners",
	"2026", "best", "daily", "challenge", "routine",
}

// FallbackGenerator deterministically derives variant terms from the seed
// terms by appending qualifier suffixes. It never fails and never repeats
// a term already in existing.
type FallbackGenerator struct{}

func (FallbackGenerator) Generate(ctx context.Context, topic string, existing []string, count int) ([]string, error) {
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[NormalizeTerm(t)] = true
	}

	bases := existing
	if len(bases) == 0 {
		bases = []string{topic}
	}

	var out []string
	for _, q := range fallbackQualifiers {
		for _, base := range bases {
			if len(out) >= count {
				return out, nil
			}
			cand := NormalizeTerm(base + " " + q)
			if cand == "" || seen[cand] {
				continue
			}
			seen[cand] = true
			out = append(out, cand)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no unused variants left for topic %q", topic)
	}
	return out, nil
}

// NormalizeTerm lower-cases and collapses whitespace so terms compare
// consistently inside allTermsUsed.
func NormalizeTerm(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}
