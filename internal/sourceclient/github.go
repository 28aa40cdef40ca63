package sourceclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// githubClient talks to a GitHub-shaped contents API
// (https://docs.github.com/rest/repos/contents) without committing to
// a specific host. One limiter is shared across every call, capped at
// 10 rps — a single process-wide token bucket since this module uses
// one SOURCE_TOKEN by default.
type githubClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewGitHubClient builds a Client against the given API base URL (e.g.
// "https://api.github.com"), rate-limited to 10 requests/second.
func NewGitHubClient(baseURL string) Client {
	return &githubClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(10), 10),
	}
}

type contentsEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Type string `json:"type"` // "file" or "dir"
}

func (c *githubClient) do(ctx context.Context, token, method, url string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("sourceclient: rate limit wait: %w", err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func (c *githubClient) List(ctx context.Context, owner, repo, ref, folder, token string) ([]FileInfo, error) {
	return c.listRecursive(ctx, owner, repo, ref, folder, token)
}

func (c *githubClient) listRecursive(ctx context.Context, owner, repo, ref, folder, token string) ([]FileInfo, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", c.baseURL, owner, repo, folder, ref)
	resp, err := c.do(ctx, token, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("sourceclient: list %s: %w", folder, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sourceclient: list %s: status %d", folder, resp.StatusCode)
	}

	var entries []contentsEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("sourceclient: decode list %s: %w", folder, err)
	}

	var out []FileInfo
	for _, e := range entries {
		switch e.Type {
		case "file":
			out = append(out, FileInfo{Path: e.Path, SHA: e.SHA})
		case "dir":
			nested, err := c.listRecursive(ctx, owner, repo, ref, e.Path, token)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		}
	}
	return out, nil
}

type contentsFile struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

func (c *githubClient) GetFile(ctx context.Context, owner, repo, ref, path, token string) ([]byte, string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", c.baseURL, owner, repo, path, ref)
	resp, err := c.do(ctx, token, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("sourceclient: get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("sourceclient: get %s: status %d", path, resp.StatusCode)
	}

	var f contentsFile
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, "", fmt.Errorf("sourceclient: decode %s: %w", path, err)
	}
	content, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(f.Content, "\n", ""))
	if err != nil {
		return nil, "", fmt.Errorf("sourceclient: decode content %s: %w", path, err)
	}
	return content, f.SHA, nil
}

type putFileRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type putFileResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

func (c *githubClient) PutFile(ctx context.Context, owner, repo, ref, path string, content []byte, message, token string) (string, error) {
	// GitHub's contents-write API requires the existing blob SHA to
	// update a file in place; omit it to create a new one.
	existingSHA := ""
	if _, sha, err := c.GetFile(ctx, owner, repo, ref, path, token); err == nil {
		existingSHA = sha
	}

	body, err := json.Marshal(putFileRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     existingSHA,
		Branch:  ref,
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, owner, repo, path)
	resp, err := c.do(ctx, token, http.MethodPut, url, body)
	if err != nil {
		return "", fmt.Errorf("sourceclient: put %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("sourceclient: put %s: status %d", path, resp.StatusCode)
	}

	var out putFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("sourceclient: decode put response %s: %w", path, err)
	}
	return out.Content.SHA, nil
}
