package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	authModeAPIKey    = "api_key"
	authModeTokenFile = "oauth_token_file"
)

// TokenSource returns bearer material for request auth.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Source() string
}

type staticTokenSource struct {
	token  string
	source string
}

// NewStaticTokenSource serves a token from config; source names the field in errors.
func NewStaticTokenSource(token, source string) TokenSource {
	return &staticTokenSource{
		token:  strings.TrimSpace(token),
		source: strings.TrimSpace(source),
	}
}

func (s *staticTokenSource) Token(context.Context) (string, error) {
	tok := s.token
	if tok == "" {
		return "", fmt.Errorf("token is empty for %s", s.Source())
	}
	if looksUnresolved(tok) {
		return "", fmt.Errorf("token for %s looks like an unresolved placeholder %q", s.Source(), tok)
	}
	return tok, nil
}

func (s *staticTokenSource) Source() string {
	if s.source != "" {
		return s.source
	}
	return "static"
}

// looksUnresolved catches config templates copied verbatim, e.g. "<API_KEY>"
// or "${OPENAI_API_KEY}".
func looksUnresolved(tok string) bool {
	if strings.HasPrefix(tok, "<") && strings.HasSuffix(tok, ">") {
		return true
	}
	return strings.HasPrefix(tok, "${") && strings.HasSuffix(tok, "}")
}

type fileTokenSource struct {
	path string
}

// NewFileTokenSource reads a token file holding either the bare token or a
// JSON document with an access_token (top level or under "tokens").
func NewFileTokenSource(path string) TokenSource {
	return &fileTokenSource{path: strings.TrimSpace(path)}
}

func (s *fileTokenSource) Token(context.Context) (string, error) {
	resolved := expandHome(s.path)
	if resolved == "" {
		return "", fmt.Errorf("token file path is empty")
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read token file %s: %w", resolved, err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return "", fmt.Errorf("token file %s is empty", resolved)
	}
	if !strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	var doc struct {
		AccessToken string `json:"access_token"`
		Tokens      struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "", fmt.Errorf("parse token file %s: %w", resolved, err)
	}
	if tok := strings.TrimSpace(doc.Tokens.AccessToken); tok != "" {
		return tok, nil
	}
	if tok := strings.TrimSpace(doc.AccessToken); tok != "" {
		return tok, nil
	}
	return "", fmt.Errorf("token file %s: missing access_token", resolved)
}

func (s *fileTokenSource) Source() string {
	if resolved := expandHome(s.path); resolved != "" {
		return resolved
	}
	return "token_file"
}

// AuthStrategy applies request auth for provider HTTP calls.
type AuthStrategy interface {
	Mode() string
	Apply(ctx context.Context, req *http.Request) error
}

type bearerAuth struct {
	mode   string
	source TokenSource
}

// NewAPIKeyAuth sends a static key as a bearer token.
func NewAPIKeyAuth(source TokenSource) AuthStrategy {
	return &bearerAuth{mode: authModeAPIKey, source: source}
}

// NewTokenFileAuth re-reads path on every request, so a token refreshed by
// another tool is picked up without a restart.
func NewTokenFileAuth(path string) AuthStrategy {
	return &bearerAuth{mode: authModeTokenFile, source: NewFileTokenSource(path)}
}

func (a *bearerAuth) Mode() string {
	return a.mode
}

func (a *bearerAuth) Apply(ctx context.Context, req *http.Request) error {
	if a.source == nil {
		return fmt.Errorf("auth token source is nil")
	}
	tok, err := a.source.Token(ctx)
	if err != nil {
		return fmt.Errorf("resolve auth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
