// Package claude runs the Claude CLI in one-shot stream-json mode, one
// process per chat session, and turns its output into Events.
//
// Output flows through a LineBuffer, which reassembles records from
// arbitrary chunks, and a per-run decoder, which maps each record to zero
// or more Events. The Service tags events with their session id and
// delivers them in order on a single channel.
//
// Text matching for rate-limit and authentication failures lives in
// IsRateLimit and IsAuthError, which work on both stderr lines and result
// strings.
package claude
