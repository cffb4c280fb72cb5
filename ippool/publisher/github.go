package publisher

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

	"cfip_nexus/internal/shared/types"
)

// GitHubTarget uploads the artifact through the repository contents API,
// creating the file or replacing it in place.
type GitHubTarget struct {
	config types.GitHubConf
	http   *http.Client
}

// NewGitHubTarget creates a GitHub target.
func NewGitHubTarget(cfg types.GitHubConf) *GitHubTarget {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.github.com"
	}
	return &GitHubTarget{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GitHubTarget) Name() string { return "github" }

type contentsResponse struct {
	SHA string `json:"sha"`
}

type contentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

// Publish replaces the file at config.Path (or the payload file name).
func (g *GitHubTarget) Publish(ctx context.Context, p Payload) error {
	path := g.config.Path
	if path == "" {
		path = p.FileName
	}
	endpoint := fmt.Sprintf("%s/repos/%s/contents/%s",
		strings.TrimRight(g.config.APIBase, "/"), g.config.Repo, escapePath(path))

	sha, err := g.currentSHA(ctx, endpoint)
	if err != nil {
		return err
	}

	msg := "Update IPs"
	if p.Result != nil {
		msg = fmt.Sprintf("Update IPs (run %s)", p.Result.RunID)
	}
	body, err := json.Marshal(contentsRequest{
		Message: msg,
		Content: base64.StdEncoding.EncodeToString(p.Artifact),
		SHA:     sha,
		Branch:  g.config.Branch,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	g.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload to github: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("github API error (%d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// currentSHA returns the blob sha of the existing file, or "" if the file
// does not exist yet.
func (g *GitHubTarget) currentSHA(ctx context.Context, endpoint string) (string, error) {
	target := endpoint
	if g.config.Branch != "" {
		target += "?ref=" + url.QueryEscape(g.config.Branch)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	g.authorize(req)

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("get file sha: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var c contentsResponse
		if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
			return "", fmt.Errorf("decode contents response: %w", err)
		}
		return c.SHA, nil
	case http.StatusNotFound:
		return "", nil
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("github API error (%d): %s", resp.StatusCode, string(respBody))
	}
}

func (g *GitHubTarget) authorize(req *http.Request) {
	req.Header.Set("Authorization", "token "+g.config.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
}

// escapePath escapes each segment but keeps the slashes.
func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
