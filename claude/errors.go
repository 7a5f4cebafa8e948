package claude

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptySessionID = errors.New("session id is empty")
	ErrEmptyPrompt    = errors.New("prompt is empty")
	ErrCLINotFound    = errors.New("claude CLI not found")
)

// AuthRequiredMessage is the text of the AuthError event raised from stderr.
const AuthRequiredMessage = "Authentication required. Run 'claude' in terminal to login."

// SpawnError reports that the CLI process for a session could not start.
type SpawnError struct {
	SessionID string
	Cause     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("session %s: failed to start CLI: %v", e.SessionID, e.Cause)
}

func (e *SpawnError) Unwrap() error { return e.Cause }

// Is matches ErrCLINotFound when the executable itself was missing.
func (e *SpawnError) Is(target error) bool {
	if target != ErrCLINotFound {
		return false
	}
	return errors.Is(e.Cause, exec.ErrNotFound) || errors.Is(e.Cause, fs.ErrNotExist)
}

// Patterns are checked in order; first match wins.
var rateLimitPatterns = compileAll(
	`rate_limit_error`,
	`would exceed your account's rate limit`,
	`exceeded.*rate limit`,
	`5-hour limit reached`,
	`weekly limit reached`,
	`limit reached.*resets`,
	`usage limit reached`,
)

var authPatterns = compileAll(
	`authenticate`,
	`login`,
	`unauthorized`,
	`not logged in`,
	`authentication required`,
	`sign in`,
)

var (
	resetHintPattern = regexp.MustCompile(`(?i)resets?\s+(\d{1,2}(?::\d{2})?\s*(?:am|pm)?(?:\s*\([^)]+\))?)`)

	// Usage-limit results end with "|<unix timestamp>".
	resetStampPattern = regexp.MustCompile(`\|(\d{10,13})\s*$`)
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// IsRateLimit reports whether text describes an account or usage limit.
func IsRateLimit(text string) bool {
	return matchAny(rateLimitPatterns, text)
}

// IsAuthError reports whether text asks the user to log in.
func IsAuthError(text string) bool {
	return matchAny(authPatterns, text)
}

// ExtractResetHint returns the time expression following "reset"/"resets",
// e.g. "3pm (America/New_York)", or "" if there is none.
func ExtractResetHint(text string) string {
	m := resetHintPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ExtractResetTime parses a trailing "|<unix seconds or millis>" stamp.
func ExtractResetTime(text string) (time.Time, bool) {
	m := resetStampPattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if len(m[1]) == 13 {
		return time.UnixMilli(n), true
	}
	return time.Unix(n, 0), true
}

// stripResetStamp drops the machine-readable suffix from a usage-limit
// message so it can be shown to a user.
func stripResetStamp(text string) string {
	return strings.TrimSpace(resetStampPattern.ReplaceAllString(text, ""))
}
