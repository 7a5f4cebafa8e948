package claude

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/zhubert/cristal-core/exec"
)

// TokenSource returns a bearer token for the CLI's account, or false when
// none is available.
type TokenSource func() (string, bool)

// DefaultTokenSource checks, in order: ANTHROPIC_API_KEY and
// CLAUDE_CODE_OAUTH_TOKEN in the environment, the macOS keychain, and
// ~/.claude/.credentials.json written by "claude login".
func DefaultTokenSource() TokenSource {
	return func() (string, bool) {
		for _, key := range []string{"ANTHROPIC_API_KEY", "CLAUDE_CODE_OAUTH_TOKEN"} {
			if v := os.Getenv(key); v != "" {
				return v, true
			}
		}
		if token := readKeychainOAuthToken(); token != "" {
			return token, true
		}
		if token := readCredentialsFileToken(); token != "" {
			return token, true
		}
		return "", false
	}
}

// oauthCredentials is the JSON shape shared by the "Claude Code-credentials"
// keychain entry and ~/.claude/.credentials.json.
type oauthCredentials struct {
	ClaudeAiOauth struct {
		AccessToken string `json:"accessToken"`
		ExpiresAt   int64  `json:"expiresAt"` // unix millis
	} `json:"claudeAiOauth"`
}

// token returns the access token, or "" if absent or expired.
func (c oauthCredentials) token() string {
	if c.ClaudeAiOauth.AccessToken == "" {
		return ""
	}
	if c.ClaudeAiOauth.ExpiresAt > 0 && time.Now().UnixMilli() >= c.ClaudeAiOauth.ExpiresAt {
		return ""
	}
	return c.ClaudeAiOauth.AccessToken
}

func parseOAuthToken(data []byte) string {
	var creds oauthCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return ""
	}
	return creds.token()
}

func readKeychainOAuthToken() string {
	raw := readKeychainPassword("Claude Code-credentials")
	if raw == "" {
		return ""
	}
	return parseOAuthToken([]byte(raw))
}

func readCredentialsFileToken() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(home, ".claude", ".credentials.json"))
	if err != nil {
		return ""
	}
	return parseOAuthToken(data)
}

// readKeychainPassword returns "" when not found or not on macOS.
func readKeychainPassword(service string) string {
	if runtime.GOOS != "darwin" {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.GetDefaultExecutor().Output(ctx, "security", "find-generic-password", "-s", service, "-w")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
