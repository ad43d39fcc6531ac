package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ce-fello/codeclash-service/src/internal/model"
)

const githubTimeout = 10 * time.Second

type ProfileFetcher interface {
	Fetch(ctx context.Context, accessToken string) (model.GitHubProfile, error)
}

type GitHubClient struct {
	client  *http.Client
	baseURL string
}

func NewGitHubClient(baseURL string) *GitHubClient {
	return &GitHubClient{
		client:  &http.Client{Timeout: githubTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type githubUser struct {
	Login       string    `json:"login"`
	AvatarURL   string    `json:"avatar_url"`
	Bio         string    `json:"bio"`
	PublicRepos int       `json:"public_repos"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	HTMLURL     string    `json:"html_url"`
	CreatedAt   time.Time `json:"created_at"`
}

type githubRepo struct {
	Language string `json:"language"`
}

func (c *GitHubClient) Fetch(ctx context.Context, accessToken string) (model.GitHubProfile, error) {
	var u githubUser
	if err := c.get(ctx, accessToken, "/user", &u); err != nil {
		return model.GitHubProfile{}, err
	}
	var repos []githubRepo
	if err := c.get(ctx, accessToken, "/user/repos?per_page=100", &repos); err != nil {
		return model.GitHubProfile{}, err
	}
	return model.GitHubProfile{
		Username:    u.Login,
		AvatarURL:   u.AvatarURL,
		Bio:         u.Bio,
		PublicRepos: u.PublicRepos,
		Followers:   u.Followers,
		Following:   u.Following,
		Languages:   repoLanguages(repos),
		HTMLURL:     u.HTMLURL,
		CreatedAt:   u.CreatedAt,
	}, nil
}

func (c *GitHubClient) get(ctx context.Context, accessToken, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("github %s: build request: %w", path, err)
	}
	req.Header.Set("Authorization", "token "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("github %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github %s: decode: %w", path, err)
	}
	return nil
}

// repoLanguages keeps the distinct non-empty languages in first-seen order.
func repoLanguages(repos []githubRepo) []string {
	seen := make(map[string]bool, len(repos))
	out := []string{}
	for _, r := range repos {
		if r.Language == "" || seen[r.Language] {
			continue
		}
		seen[r.Language] = true
		out = append(out, r.Language)
	}
	return out
}
