// Package publisher pushes run artifacts to a versioned store, here the
// GitHub contents API. Publishing is best effort: a missing credential
// disables it and any failure degrades to local-only output.
package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater/v2"
)

// GitHub publishes files to a repository branch via the contents API
type GitHub struct {
	client  *http.Client
	baseURL string
	user    string
	repo    string
	branch  string
	token   string
}

// Params configures a GitHub publisher
type Params struct {
	User    string
	Repo    string
	Branch  string
	Token   string
	BaseURL string        // defaults to https://api.github.com, overridable for tests
	Timeout time.Duration // per-request timeout
}

// New creates a GitHub publisher. Returns nil when the target is not
// fully configured, callers treat a nil publisher as "publishing off".
func New(p Params) *GitHub {
	if p.User == "" || p.Repo == "" || p.Token == "" {
		return nil
	}
	if p.BaseURL == "" {
		p.BaseURL = "https://api.github.com"
	}
	if p.Timeout == 0 {
		p.Timeout = 30 * time.Second
	}
	return &GitHub{
		client:  &http.Client{Timeout: p.Timeout},
		baseURL: p.BaseURL,
		user:    p.User,
		repo:    p.Repo,
		branch:  p.Branch,
		token:   p.Token,
	}
}

// Publish uploads the given files (repo-relative path -> content) in one
// pass. Each file is created or updated independently; the first error
// aborts and is returned so the caller can log the warning.
func (g *GitHub) Publish(ctx context.Context, files map[string][]byte, message string) error {
	for path, content := range files {
		if err := g.putFile(ctx, path, content, message); err != nil {
			return fmt.Errorf("publish %s: %w", path, err)
		}
		lgr.Printf("[DEBUG] published %s to %s/%s", path, g.user, g.repo)
	}
	return nil
}

// URL returns the browsable location of a published file
func (g *GitHub) URL(path string) string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", g.user, g.repo, g.branch, path)
}

type contentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

// putFile creates or updates one file. The contents API requires the
// current blob SHA to update an existing file, so a same-day re-run looks
// it up first. The PUT is retried with backoff on transient failures.
func (g *GitHub) putFile(ctx context.Context, path string, content []byte, message string) error {
	sha, err := g.fileSHA(ctx, path)
	if err != nil {
		return fmt.Errorf("lookup existing file: %w", err)
	}

	body, err := json.Marshal(contentsRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  g.branch,
		SHA:     sha,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.baseURL, g.user, g.repo, path)

	retrier := repeater.NewBackoff(3, 500*time.Millisecond, repeater.WithMaxDelay(5*time.Second))
	return retrier.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		g.setHeaders(req)

		resp, err := g.client.Do(req)
		if err != nil {
			return fmt.Errorf("put contents: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(msg))
		}
		return nil
	})
}

// fileSHA returns the blob SHA of an existing file, or empty when the
// file does not exist yet
func (g *GitHub) fileSHA(ctx context.Context, path string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", g.baseURL, g.user, g.repo, path, g.branch)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get contents: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var info struct {
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode contents response: %w", err)
	}
	return info.SHA, nil
}

func (g *GitHub) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "token "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
}
