package mirror

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultGitHubAPIURL = "https://api.github.com"
	defaultTimeout      = 30 * time.Second
)

// GitHubConfig locates the repository that receives mirrored documents.
type GitHubConfig struct {
	Owner  string
	Repo   string
	Branch string
	// Dir is the directory inside the repository; documents are written as
	// {Dir}/{name}.json.
	Dir   string
	Token string
	// BaseURL overrides the API endpoint (GitHub Enterprise or tests).
	BaseURL string
}

// GitHubSink mirrors documents through the GitHub contents API. The blob SHA
// returned by GitHub is the version token.
type GitHubSink struct {
	cfg    GitHubConfig
	client *resty.Client
}

var _ Sink = (*GitHubSink)(nil)

type contentsResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type putContentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type putContentsResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

// NewGitHubSink creates a sink for the configured repository.
func NewGitHubSink(cfg GitHubConfig) (*GitHubSink, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github mirror: owner and repo are required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultGitHubAPIURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("User-Agent", "cnw-keyserver-mirror")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &GitHubSink{cfg: cfg, client: client}, nil
}

func (g *GitHubSink) contentsPath(name string) string {
	file := path.Join(g.cfg.Dir, name+".json")
	return fmt.Sprintf("/repos/%s/%s/contents/%s",
		url.PathEscape(g.cfg.Owner), url.PathEscape(g.cfg.Repo), strings.TrimPrefix(file, "/"))
}

func (g *GitHubSink) Read(ctx context.Context, name string) ([]byte, string, error) {
	var out contentsResponse
	req := g.client.R().SetContext(ctx).SetResult(&out)
	if g.cfg.Branch != "" {
		req.SetQueryParam("ref", g.cfg.Branch)
	}
	resp, err := req.Get(g.contentsPath(name))
	if err != nil {
		return nil, "", fmt.Errorf("github read %s: %w", name, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, "", ErrNotFound
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("github read %s: status %d: %s", name, resp.StatusCode(), resp.String())
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(out.Content, "\n", ""))
	if err != nil {
		return nil, "", fmt.Errorf("github read %s: decode content: %w", name, err)
	}
	return data, out.SHA, nil
}

func (g *GitHubSink) Write(ctx context.Context, name string, data []byte, expectedVersion string) (string, error) {
	body := putContentsRequest{
		Message: fmt.Sprintf("keyserver: update %s", name),
		Content: base64.StdEncoding.EncodeToString(data),
		SHA:     expectedVersion,
		Branch:  g.cfg.Branch,
	}
	var out putContentsResponse
	resp, err := g.client.R().SetContext(ctx).SetBody(body).SetResult(&out).Put(g.contentsPath(name))
	if err != nil {
		return "", fmt.Errorf("github write %s: %w", name, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		return out.Content.SHA, nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		// 409: sha does not match the branch head; 422: sha missing for an existing file.
		return "", ErrVersionConflict
	default:
		return "", fmt.Errorf("github write %s: status %d: %s", name, resp.StatusCode(), resp.String())
	}
}
