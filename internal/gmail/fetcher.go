// Copyright (c) 2026 The Wrapped Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gmail fetches raw receipt emails from the Gmail REST API. It
// lists message ids for a search query, follows pagination, and downloads
// each message in raw RFC-2822 form for the receipt parser.
//
// The caller supplies an authenticated *http.Client (built from an OAuth2
// token source); this package never sees credentials.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Gmail API endpoint for the authenticated user.
const DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

// DefaultQuery finds receipt and confirmation emails everywhere, including
// spam and trash, the way the original capture surface searched.
const DefaultQuery = `(in:anywhere OR in:spam OR in:trash) from:doordash (subject:"receipt" OR subject:"confirmation")`

// listResponse is a page of the messages list endpoint.
type listResponse struct {
	Messages      []messageStub `json:"messages"`
	NextPageToken string        `json:"nextPageToken"`
}

// messageStub is a minimal message from the list endpoint.
type messageStub struct {
	ID string `json:"id"`
}

// rawResponse is the format=raw message fetch response.
type rawResponse struct {
	ID  string `json:"id"`
	Raw string `json:"raw"`
}

// Fetcher retrieves message ids and raw message content.
type Fetcher struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	limiter    *rate.Limiter
}

// FetcherConfig holds dependencies for the fetcher.
type FetcherConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	PageSize   int
	// PageRate throttles list-page requests to avoid Gmail quota errors.
	// Zero means one page per 500ms, matching the capture layer's pacing.
	PageRate rate.Limit
}

// NewFetcher creates a Gmail message fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = 500
	}
	pageRate := cfg.PageRate
	if pageRate == 0 {
		pageRate = rate.Every(500 * time.Millisecond)
	}
	return &Fetcher{
		httpClient: cfg.HTTPClient,
		baseURL:    baseURL,
		pageSize:   pageSize,
		limiter:    rate.NewLimiter(pageRate, 1),
	}
}

// Search lists all message ids matching the query, following pagination
// sequentially with rate-limited pacing between pages.
func (f *Fetcher) Search(ctx context.Context, query string) ([]string, error) {
	var ids []string

	pageToken := ""
	pageCount := 0
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return ids, err
		}

		params := url.Values{}
		params.Set("q", query)
		params.Set("maxResults", fmt.Sprintf("%d", f.pageSize))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		page, err := f.fetchPage(ctx, fmt.Sprintf("%s/messages?%s", f.baseURL, params.Encode()))
		if err != nil {
			return ids, fmt.Errorf("fetch page %d: %w", pageCount, err)
		}
		pageCount++

		for _, m := range page.Messages {
			ids = append(ids, m.ID)
		}

		slog.Debug("search page fetched",
			"page", pageCount,
			"messages", len(page.Messages),
		)

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	slog.Info("message search complete", "messages", len(ids), "pages", pageCount)
	return ids, nil
}

// fetchPage retrieves a single page of the messages list.
func (f *Fetcher) fetchPage(ctx context.Context, pageURL string) (*listResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch messages page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("messages list error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("messages list returned HTTP %d", resp.StatusCode)
	}

	var page listResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}

	return &page, nil
}

// FetchRaw downloads one message in raw form and decodes the base64url
// payload into RFC-2822 text. A vanished message returns "" without error.
func (f *Fetcher) FetchRaw(ctx context.Context, messageID string) (string, error) {
	fetchURL := fmt.Sprintf("%s/messages/%s?format=raw", f.baseURL, url.PathEscape(messageID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.Warn("message not found (may have been deleted)", "message_id", messageID)
		return "", nil
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gmail API returned HTTP %d for message %s", resp.StatusCode, messageID)
	}

	var msg rawResponse
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", fmt.Errorf("decode message response: %w", err)
	}

	raw, err := decodeBase64URL(msg.Raw)
	if err != nil {
		return "", fmt.Errorf("decode raw payload for %s: %w", messageID, err)
	}
	return raw, nil
}

// decodeBase64URL handles both padded and unpadded base64url payloads.
func decodeBase64URL(s string) (string, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return string(b), nil
	}
	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
