package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"strings"

	"creatorscout/internal/model"
)

// MockAdapter produces synthetic creators for demos and offline mode.
// It is deterministic for a given (term, cursor) pair and makes no
// network calls. Roughly one in five handles is shared across terms so
// dedup paths get exercised.
type MockAdapter struct {
	platform model.Platform
	perTerm  int // total creators available per term
	pageSize int
}

// NewMockAdapter constructs an offline adapter. perTerm caps how many
// creators a single term can ever yield; zero means 30.
func NewMockAdapter(platform model.Platform, perTerm int) *MockAdapter {
	if perTerm <= 0 {
		perTerm = 30
	}
	return &MockAdapter{platform: platform, perTerm: perTerm, pageSize: 20}
}

func (m *MockAdapter) Platform() model.Platform { return m.platform }

func (m *MockAdapter) FetchBatch(ctx context.Context, q Query) (*Batch, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	term := strings.TrimSpace(q.Term)
	if term == "" {
		return nil, &Error{Retryable: false, Err: fmt.Errorf("empty term")}
	}

	offset := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil {
			return nil, &Error{Retryable: false, Err: fmt.Errorf("bad cursor %q", q.Cursor)}
		}
		offset = n
	}

	limit := q.Limit
	if limit <= 0 || limit > m.pageSize {
		limit = m.pageSize
	}
	remaining := m.perTerm - offset
	if remaining < 0 {
		remaining = 0
	}
	if limit > remaining {
		limit = remaining
	}

	r := rand.New(rand.NewSource(int64(fnv64(term))))
	batch := &Batch{APICalls: 1}
	for i := 0; i < limit; i++ {
		idx := offset + i
		handle := m.handleFor(term, idx, r)
		batch.Creators = append(batch.Creators, model.CreatorResult{
			Platform:      m.platform,
			Handle:        handle,
			DisplayName:   displayNameFor(handle),
			FollowerCount: int64(1000 + idx*137),
			Verified:      idx%7 == 0,
			ContentSample: model.ContentSample{
				ID:      fmt.Sprintf("%s-%d", term, idx),
				URL:     fmt.Sprintf("https://example-platform.invalid/%s/posts/%d", handle, idx),
				Caption: fmt.Sprintf("%s post %d", term, idx+1),
				Views:   int64(5000 + idx*311),
				Likes:   int64(400 + idx*29),
			},
		})
	}

	next := offset + limit
	batch.HasMore = next < m.perTerm
	if batch.HasMore {
		batch.NextCursor = strconv.Itoa(next)
	}
	return batch, nil
}

// handleFor synthesizes a handle. Every fifth slot draws from a shared
// pool independent of the term, producing cross-term duplicates.
func (m *MockAdapter) handleFor(term string, idx int, r *rand.Rand) string {
	if idx%5 == 4 {
		return fmt.Sprintf("shared_creator_%02d", (idx/5)%10)
	}
	slug := strings.ToLower(strings.ReplaceAll(term, " ", "_"))
	return fmt.Sprintf("%s_creator_%02d_%04d", slug, idx, r.Intn(10000))
}

func (m *MockAdapter) FetchProfile(ctx context.Context, handle string) (*Profile, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	h := NormalizeHandle(handle)
	return &Profile{
		Bio:    fmt.Sprintf("Synthetic bio for %s (offline mock adapter).", h),
		Emails: []string{h + "@example-contact.invalid"},
	}, nil
}

func displayNameFor(handle string) string {
	words := strings.Split(handle, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func fnv64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
