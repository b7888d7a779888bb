// Package github is a minimal client for the repository contents API, used
// as the remote annotation store.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/medveriground/bbox-annotator/pkg/store"
)

// DefaultAPIURL is the public GitHub API endpoint
const DefaultAPIURL = "https://api.github.com"

// Client reads and writes files of one repository branch
type Client struct {
	baseURL    string
	repo       string
	branch     string
	token      string
	httpClient *http.Client
}

// Config holds the repository coordinates and credentials
type Config struct {
	APIURL  string
	Repo    string // owner/name
	Branch  string
	Token   string
	Timeout time.Duration
}

type contentResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

// NewClient creates a contents API client
func NewClient(cfg Config) (*Client, error) {
	if cfg.Repo == "" || !strings.Contains(cfg.Repo, "/") {
		return nil, fmt.Errorf("repository must be owner/name, got %q", cfg.Repo)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.APIURL, "/"),
		repo:    cfg.Repo,
		branch:  cfg.Branch,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Get fetches a file. A 404 maps to store.ErrNotFound.
func (c *Client) Get(ctx context.Context, path string) (store.Content, error) {
	endpoint := c.contentsURL(path) + "?ref=" + url.QueryEscape(c.branch)

	status, body, err := c.sendRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return store.Content{}, err
	}
	if status == http.StatusNotFound {
		return store.Content{}, store.ErrNotFound
	}
	if status != http.StatusOK {
		return store.Content{}, fmt.Errorf("github returned status %d: %s", status, truncate(body))
	}

	var resp contentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return store.Content{}, fmt.Errorf("failed to parse contents response: %w", err)
	}
	if resp.Type != "" && resp.Type != "file" {
		return store.Content{}, fmt.Errorf("%s is a %s, not a file", path, resp.Type)
	}

	// the API wraps base64 payloads at 60 columns
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
	if err != nil {
		return store.Content{}, fmt.Errorf("failed to decode file content: %w", err)
	}

	return store.Content{Data: data, Revision: resp.SHA}, nil
}

// Put creates or updates a file. A stale sha maps to store.ErrConflict.
func (c *Client) Put(ctx context.Context, path string, data []byte, message, revision string) error {
	payload := putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  c.branch,
		SHA:     revision,
	}

	status, body, err := c.sendRequest(ctx, http.MethodPut, c.contentsURL(path), payload)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		// 422 is returned when a sha is missing for an existing file
		return fmt.Errorf("%w: %s", store.ErrConflict, truncate(body))
	default:
		return fmt.Errorf("github returned status %d: %s", status, truncate(body))
	}
}

// Ping checks that the repository is reachable with the configured token
func (c *Client) Ping(ctx context.Context) error {
	status, body, err := c.sendRequest(ctx, http.MethodGet, c.baseURL+"/repos/"+c.repo, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("repository %s not accessible (status %d): %s", c.repo, status, truncate(body))
	}
	return nil
}

func (c *Client) contentsURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/contents/%s", c.baseURL, c.repo, strings.Join(segments, "/"))
}

func (c *Client) sendRequest(ctx context.Context, method, endpoint string, payload interface{}) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, body, nil
}

func truncate(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
