package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"creatorscout/internal/model"
)

const httpTimeout = 15 * time.Second

// HTTPAdapter consumes a creator discovery API that exposes a normalized
// JSON search surface per platform:
//
//	GET {base}/v1/{platform}/search?q=...&type=...&cursor=...&limit=...
//	  -> {"creators":[...], "nextCursor":"...", "hasMore":true, "apiCalls":1}
//	GET {base}/v1/{platform}/profiles/{handle}
//	  -> {"bio":"...", "emails":["..."]}
//
// The provider's own upstream wire formats are its problem; this adapter
// only ever sees the normalized shape.
type HTTPAdapter struct {
	platform model.Platform
	baseURL  string
	apiKey   string
	client   *http.Client
}

// NewHTTPAdapter constructs an adapter for one platform with a shared
// HTTP client.
func NewHTTPAdapter(platform model.Platform, baseURL, apiKey string) *HTTPAdapter {
	return &HTTPAdapter{
		platform: platform,
		baseURL:  baseURL,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: httpTimeout},
	}
}

func (a *HTTPAdapter) Platform() model.Platform { return a.platform }

// searchResponse mirrors the discovery API search payload.
type searchResponse struct {
	Creators   []searchCreator `json:"creators"`
	NextCursor string          `json:"nextCursor"`
	HasMore    bool            `json:"hasMore"`
	APICalls   int             `json:"apiCalls"`
}

type searchCreator struct {
	Handle        string `json:"handle"`
	DisplayName   string `json:"displayName"`
	FollowerCount int64  `json:"followerCount"`
	Verified      bool   `json:"verified"`
	Content       struct {
		ID          string `json:"id"`
		URL         string `json:"url"`
		Caption     string `json:"caption"`
		Views       int64  `json:"views"`
		Likes       int64  `json:"likes"`
		Comments    int64  `json:"comments"`
		Shares      int64  `json:"shares"`
		PublishedAt string `json:"publishedAt"`
	} `json:"content"`
}

// FetchBatch executes one search call. Missing credentials are a terminal
// error: the orchestrator must not burn retries on them.
func (a *HTTPAdapter) FetchBatch(ctx context.Context, q Query) (*Batch, error) {
	if a.apiKey == "" {
		return nil, &Error{Retryable: false, Err: errors.New("provider API key not configured")}
	}

	params := url.Values{}
	params.Set("q", q.Term)
	params.Set("type", string(q.Kind))
	params.Set("limit", strconv.Itoa(q.Limit))
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	endpoint := fmt.Sprintf("%s/v1/%s/search?%s", a.baseURL, a.platform, params.Encode())

	body, err := a.doGET(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Retryable: false, Err: fmt.Errorf("json unmarshal: %w", err)}
	}

	batch := &Batch{
		NextCursor: resp.NextCursor,
		HasMore:    resp.HasMore,
		APICalls:   resp.APICalls,
	}
	if batch.APICalls == 0 {
		batch.APICalls = 1
	}
	for _, c := range resp.Creators {
		handle := NormalizeHandle(c.Handle)
		if handle == "" {
			continue
		}
		batch.Creators = append(batch.Creators, model.CreatorResult{
			Platform:      a.platform,
			Handle:        handle,
			DisplayName:   c.DisplayName,
			FollowerCount: c.FollowerCount,
			Verified:      c.Verified,
			ContentSample: model.ContentSample{
				ID:          c.Content.ID,
				URL:         c.Content.URL,
				Caption:     c.Content.Caption,
				Views:       c.Content.Views,
				Likes:       c.Content.Likes,
				Comments:    c.Content.Comments,
				Shares:      c.Content.Shares,
				PublishedAt: c.Content.PublishedAt,
			},
		})
	}
	return batch, nil
}

// FetchProfile retrieves bio and contact emails for a single handle.
func (a *HTTPAdapter) FetchProfile(ctx context.Context, handle string) (*Profile, error) {
	endpoint := fmt.Sprintf("%s/v1/%s/profiles/%s", a.baseURL, a.platform, url.PathEscape(NormalizeHandle(handle)))

	body, err := a.doGET(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Bio    string   `json:"bio"`
		Emails []string `json:"emails"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Retryable: false, Err: fmt.Errorf("json unmarshal: %w", err)}
	}
	return &Profile{Bio: resp.Bio, Emails: resp.Emails}, nil
}

func (a *HTTPAdapter) doGET(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &Error{Retryable: false, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		// Transport-level failures (timeouts, resets) are worth retrying.
		return nil, &Error{Retryable: true, Err: fmt.Errorf("http GET: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Retryable: true, Err: fmt.Errorf("read body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &Error{Retryable: true, Status: resp.StatusCode,
			Err: fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body))}
	default:
		// 400/401/403/404: bad term or bad credentials, retrying won't help.
		return nil, &Error{Retryable: false, Status: resp.StatusCode,
			Err: fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body))}
	}
}
