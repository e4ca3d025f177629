package keyword

import (
	"context"
	"log"
	"strings"
)

// Limits bounds the expansion loop. All three limits are enforced
// independently; whichever is hit first stops expansion.
type Limits struct {
	KeywordsPerExpansion int
	MaxExpansionRuns     int
	MaxKeywordsTotal     int
}

// Planner owns the working set of search terms for one job. It is not
// safe for concurrent use; one tick drives one planner.
type Planner struct {
	seeds     []string
	used      map[string]bool
	usedOrder []string // append-only, mirrors Job.AllTermsUsed + this tick's picks
	pending   []string // accepted expansion terms not yet handed out
	runs      int      // expansion rounds performed (lifetime, from the job)
	gen       Generator
	fallback  Generator
	limits    Limits
}

// NewPlanner builds a planner from a job's seed terms and its persisted
// expansion state. alreadyUsed is Job.AllTermsUsed; runs is
// Job.ExpansionRuns.
func NewPlanner(seeds, alreadyUsed []string, runs int, gen Generator, limits Limits) *Planner {
	p := &Planner{
		seeds:    normalizeAll(seeds),
		used:     make(map[string]bool, len(alreadyUsed)),
		runs:     runs,
		gen:      gen,
		fallback: FallbackGenerator{},
		limits:   limits,
	}
	for _, t := range alreadyUsed {
		n := NormalizeTerm(t)
		if n != "" && !p.used[n] {
			p.used[n] = true
			p.usedOrder = append(p.usedOrder, n)
		}
	}
	return p
}

// NextBatch returns up to maxTerms unused terms, consuming seeds first,
// then any expansion terms accepted earlier in this tick. Returned terms
// are marked used immediately.
func (p *Planner) NextBatch(maxTerms int) []string {
	var out []string
	for _, s := range p.seeds {
		if len(out) >= maxTerms {
			return out
		}
		if p.used[s] || p.wouldExceedTotal() {
			continue
		}
		p.markUsed(s)
		out = append(out, s)
	}
	for len(out) < maxTerms && len(p.pending) > 0 {
		t := p.pending[0]
		p.pending = p.pending[1:]
		if p.used[t] {
			continue
		}
		p.markUsed(t)
		out = append(out, t)
	}
	return out
}

// HasUnused reports whether any seed or accepted expansion term has not
// yet been handed out.
func (p *Planner) HasUnused() bool {
	if len(p.pending) > 0 && !p.wouldExceedTotal() {
		return true
	}
	for _, s := range p.seeds {
		if !p.used[s] && !p.wouldExceedTotal() {
			return true
		}
	}
	return false
}

// CanExpand reports whether another expansion round is permitted.
func (p *Planner) CanExpand() bool {
	return p.runs < p.limits.MaxExpansionRuns && !p.wouldExceedTotal()
}

// RequestExpansion performs one expansion round: ask the external
// generator for candidates, normalize and dedupe them against every term
// ever used, and queue the survivors for NextBatch. On generator failure
// or an all-duplicate answer it falls back to the local variant
// generator. One call always consumes exactly one expansion run, so the
// loop terminates within MaxExpansionRuns regardless of generator
// behavior. Returns the number of accepted terms.
func (p *Planner) RequestExpansion(ctx context.Context, topic string) int {
	if !p.CanExpand() {
		return 0
	}
	p.runs++

	accepted := p.tryGenerator(ctx, p.gen, topic)
	if accepted == 0 {
		log.Printf("[planner] expansion generator yielded nothing usable for %q — using local fallback", topic)
		accepted = p.tryGenerator(ctx, p.fallback, topic)
	}
	return accepted
}

// ExpansionRuns returns rounds performed so far (persisted back to the job).
func (p *Planner) ExpansionRuns() int { return p.runs }

// TermsUsed returns the append-only list of every term handed out,
// persisted back to Job.AllTermsUsed.
func (p *Planner) TermsUsed() []string { return p.usedOrder }

func (p *Planner) tryGenerator(ctx context.Context, g Generator, topic string) int {
	if g == nil {
		return 0
	}
	candidates, err := g.Generate(ctx, topic, p.knownTerms(), p.limits.KeywordsPerExpansion)
	if err != nil {
		return 0
	}

	accepted := 0
	for _, c := range candidates {
		if accepted >= p.limits.KeywordsPerExpansion {
			break
		}
		n := NormalizeTerm(c)
		if n == "" || p.used[n] || p.isPending(n) {
			continue
		}
		if len(p.usedOrder)+len(p.pending)+1 > p.limits.MaxKeywordsTotal {
			break
		}
		p.pending = append(p.pending, n)
		accepted++
	}
	return accepted
}

func (p *Planner) markUsed(term string) {
	p.used[term] = true
	p.usedOrder = append(p.usedOrder, term)
}

func (p *Planner) wouldExceedTotal() bool {
	return len(p.usedOrder) >= p.limits.MaxKeywordsTotal
}

func (p *Planner) isPending(term string) bool {
	for _, t := range p.pending {
		if t == term {
			return true
		}
	}
	return false
}

// knownTerms is what the generator is told not to repeat.
func (p *Planner) knownTerms() []string {
	out := make([]string, 0, len(p.usedOrder)+len(p.pending))
	out = append(out, p.usedOrder...)
	out = append(out, p.pending...)
	return out
}

// Topic derives the expansion topic from the seed terms.
func Topic(seeds []string) string {
	return strings.Join(normalizeAll(seeds), ", ")
}

func normalizeAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if n := NormalizeTerm(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}
