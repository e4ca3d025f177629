package provider_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"creatorscout/internal/model"
	"creatorscout/internal/provider"
)

// ── NormalizeHandle ────────────────────────────────────────────────────────

func TestNormalizeHandle(t *testing.T) {
	cases := []struct{ in, want string }{
		{"@CookingWithSara", "cookingwithsara"},
		{"  FitnessGuy  ", "fitnessguy"},
		{"plain_handle", "plain_handle"},
		{"@", ""},
	}
	for _, c := range cases {
		if got := provider.NormalizeHandle(c.in); got != c.want {
			t.Errorf("NormalizeHandle(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// ── HTTPAdapter ────────────────────────────────────────────────────────────

func TestHTTPAdapter_FetchBatch_Normalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "vegan recipes" {
			t.Errorf("q = %q, want %q", got, "vegan recipes")
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		fmt.Fprint(w, `{
			"creators":[
				{"handle":"@VeganChef","displayName":"Vegan Chef","followerCount":120000,"verified":true,
				 "content":{"id":"p1","views":50000,"likes":4000}},
				{"handle":"","displayName":"dropped"}
			],
			"nextCursor":"abc123","hasMore":true,"apiCalls":2}`)
	}))
	defer srv.Close()

	a := provider.NewHTTPAdapter(model.PlatformTikTok, srv.URL, "test-key")
	batch, err := a.FetchBatch(context.Background(), provider.Query{
		Term: "vegan recipes", Kind: model.SearchKeyword, Limit: 10,
	})
	if err != nil {
		t.Fatalf("FetchBatch returned unexpected error: %v", err)
	}
	if len(batch.Creators) != 1 {
		t.Fatalf("got %d creators, want 1 (empty handle dropped)", len(batch.Creators))
	}
	c := batch.Creators[0]
	if c.Handle != "veganchef" {
		t.Errorf("handle = %q, want %q (normalized)", c.Handle, "veganchef")
	}
	if c.Platform != model.PlatformTikTok {
		t.Errorf("platform = %q, want tiktok", c.Platform)
	}
	if !batch.HasMore || batch.NextCursor != "abc123" || batch.APICalls != 2 {
		t.Errorf("pagination meta = (%v,%q,%d), want (true,abc123,2)",
			batch.HasMore, batch.NextCursor, batch.APICalls)
	}
}

func TestHTTPAdapter_FetchBatch_EmptyIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"creators":[],"hasMore":false}`)
	}))
	defer srv.Close()

	a := provider.NewHTTPAdapter(model.PlatformInstagram, srv.URL, "k")
	batch, err := a.FetchBatch(context.Background(), provider.Query{Term: "x", Kind: model.SearchKeyword, Limit: 5})
	if err != nil {
		t.Fatalf("exhausted search must not error, got: %v", err)
	}
	if batch.HasMore || len(batch.Creators) != 0 {
		t.Errorf("want empty batch with hasMore=false, got %d creators hasMore=%v", len(batch.Creators), batch.HasMore)
	}
}

func TestHTTPAdapter_ErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		}))
		a := provider.NewHTTPAdapter(model.PlatformYouTube, srv.URL, "k")
		_, err := a.FetchBatch(context.Background(), provider.Query{Term: "x", Kind: model.SearchKeyword, Limit: 5})
		srv.Close()
		if err == nil {
			t.Errorf("status %d: expected error, got nil", c.status)
			continue
		}
		if got := provider.IsRetryable(err); got != c.retryable {
			t.Errorf("status %d: IsRetryable = %v, want %v", c.status, got, c.retryable)
		}
		var pe *provider.Error
		if !errors.As(err, &pe) || pe.Status != c.status {
			t.Errorf("status %d: error does not carry the HTTP status", c.status)
		}
	}
}

func TestHTTPAdapter_MissingKeyIsTerminal(t *testing.T) {
	a := provider.NewHTTPAdapter(model.PlatformTikTok, "http://unused.invalid", "")
	_, err := a.FetchBatch(context.Background(), provider.Query{Term: "x", Kind: model.SearchKeyword, Limit: 1})
	if err == nil {
		t.Fatal("expected error with empty API key")
	}
	if provider.IsRetryable(err) {
		t.Error("missing credentials must be terminal, not retryable")
	}
}

// ── MockAdapter ────────────────────────────────────────────────────────────

func TestMockAdapter_DeterministicPagination(t *testing.T) {
	m := provider.NewMockAdapter(model.PlatformTikTok, 30)

	var all []model.CreatorResult
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 10 {
			t.Fatal("pagination did not terminate")
		}
		b, err := m.FetchBatch(context.Background(), provider.Query{
			Term: "street food", Kind: model.SearchKeyword, Cursor: cursor, Limit: 20,
		})
		if err != nil {
			t.Fatalf("FetchBatch: %v", err)
		}
		all = append(all, b.Creators...)
		if !b.HasMore {
			break
		}
		cursor = b.NextCursor
	}
	if len(all) != 30 {
		t.Fatalf("got %d creators, want 30", len(all))
	}

	// Same term, same page → identical handles.
	again, _ := m.FetchBatch(context.Background(), provider.Query{
		Term: "street food", Kind: model.SearchKeyword, Limit: 20,
	})
	for i := range again.Creators {
		if again.Creators[i].Handle != all[i].Handle {
			t.Fatalf("mock adapter is not deterministic at index %d", i)
		}
	}
}

func TestMockAdapter_CrossTermOverlap(t *testing.T) {
	m := provider.NewMockAdapter(model.PlatformTikTok, 30)
	a, _ := m.FetchBatch(context.Background(), provider.Query{Term: "alpha", Kind: model.SearchKeyword, Limit: 20})
	b, _ := m.FetchBatch(context.Background(), provider.Query{Term: "beta", Kind: model.SearchKeyword, Limit: 20})

	seen := make(map[string]bool)
	for _, c := range a.Creators {
		seen[c.Handle] = true
	}
	overlap := 0
	for _, c := range b.Creators {
		if seen[c.Handle] {
			overlap++
		}
	}
	if overlap == 0 {
		t.Error("expected shared handles across terms so dedup paths get exercised")
	}
}
