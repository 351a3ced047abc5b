package github

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
	gitconfig "github.com/tcnksm/go-gitconfig"
	"golang.org/x/oauth2"
)

// AuthenticationError means no usable GitHub credential could be found. It is
// surfaced before any detection work starts.
type AuthenticationError struct{}

func (e *AuthenticationError) Error() string {
	return `no GitHub credential found

Configure authentication with one of:
  1. GitHub CLI: gh auth login
  2. GITHUB_TOKEN environment variable
     (create one at https://github.com/settings/tokens with the "repo" scope
     for private repositories, or "public_repo" for public ones)
  3. github.token in your git config`
}

// swappable in tests, where a gh CLI may or may not be installed
var ghTokenOutput = func() ([]byte, error) {
	return exec.Command("gh", "auth", "token").Output()
}

// ResolveToken locates a GitHub token: the gh CLI first since it has the best
// token management, then the GITHUB_TOKEN environment variable, then git
// config.
func ResolveToken() (string, error) {
	if out, err := ghTokenOutput(); err == nil {
		if token := strings.TrimSpace(string(out)); token != "" {
			log.Debug("using GitHub token from gh CLI")
			return token, nil
		}
	}

	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		log.Debug("using GitHub token from environment")
		return token, nil
	}

	if token, err := gitconfig.GithubToken(); err == nil && token != "" {
		log.Debug("using GitHub token from git config")
		return token, nil
	}

	return "", &AuthenticationError{}
}

// NewAuthenticatedHTTPClient wraps token in an oauth2 transport for the API
// client.
func NewAuthenticatedHTTPClient(ctx context.Context, token string) *http.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return oauth2.NewClient(ctx, ts)
}
