// Package knowledge reads reference documents from a Notion workspace.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/agents/internal/domain"
)

const (
	// DefaultBaseURL is the public Notion API.
	DefaultBaseURL = "https://api.notion.com"
	notionVersion  = "2022-06-28"
	fetchParallel  = 4
)

// Document is one page of the knowledge store.
type Document struct {
	ID      string
	Title   string
	URL     string
	Content string
}

// Client talks to the Notion REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new knowledge client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type richText struct {
	PlainText string `json:"plain_text"`
}

type searchResponse struct {
	Results []struct {
		ID         string                     `json:"id"`
		Object     string                     `json:"object"`
		URL        string                     `json:"url"`
		Properties map[string]json.RawMessage `json:"properties"`
	} `json:"results"`
}

type titleProperty struct {
	Type  string     `json:"type"`
	Title []richText `json:"title"`
}

type blocksResponse struct {
	Results []map[string]json.RawMessage `json:"results"`
}

type blockText struct {
	RichText []richText `json:"rich_text"`
}

// Search returns up to limit pages matching query, in ranking order.
// Content is not populated.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	body := map[string]any{
		"query":  query,
		"filter": map[string]string{"property": "object", "value": "page"},
	}
	if limit > 0 {
		body["page_size"] = limit
	}

	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/search", body, &resp); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Object != "" && r.Object != "page" {
			continue
		}
		docs = append(docs, Document{ID: r.ID, Title: pageTitle(r.Properties), URL: r.URL})
		if limit > 0 && len(docs) == limit {
			break
		}
	}
	return docs, nil
}

// Page returns the plain text of a page's top-level blocks.
func (c *Client) Page(ctx context.Context, id string) (string, error) {
	var resp blocksResponse
	path := "/v1/blocks/" + url.PathEscape(id) + "/children?page_size=100"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}

	var lines []string
	for _, block := range resp.Results {
		var kind string
		if err := json.Unmarshal(block["type"], &kind); err != nil || kind == "" {
			continue
		}
		raw, ok := block[kind]
		if !ok {
			continue
		}
		var text blockText
		if err := json.Unmarshal(raw, &text); err != nil {
			continue
		}
		var b strings.Builder
		for _, rt := range text.RichText {
			b.WriteString(rt.PlainText)
		}
		if b.Len() > 0 {
			lines = append(lines, b.String())
		}
	}
	return strings.Join(lines, "\n"), nil
}

// Gather searches and fetches the matching pages concurrently. The result
// keeps the search order. No match is not an error.
func (c *Client) Gather(ctx context.Context, query string, limit int) ([]Document, error) {
	docs, err := c.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallel)
	for i := range docs {
		g.Go(func() error {
			content, err := c.Page(gctx, docs[i].ID)
			if err != nil {
				return fmt.Errorf("failed to fetch page %s: %w", docs[i].ID, err)
			}
			docs[i].Content = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", notionVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.CollaboratorError{Collaborator: "knowledge", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &domain.CollaboratorError{Collaborator: "knowledge", StatusCode: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func pageTitle(props map[string]json.RawMessage) string {
	for _, raw := range props {
		var p titleProperty
		if err := json.Unmarshal(raw, &p); err != nil || p.Type != "title" {
			continue
		}
		var b strings.Builder
		for _, rt := range p.Title {
			b.WriteString(rt.PlainText)
		}
		return b.String()
	}
	return ""
}
