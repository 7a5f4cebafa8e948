package claude

import "strings"

// LineBuffer reassembles newline-delimited records from arbitrarily split
// chunks. After each Feed it holds at most one partial record.
type LineBuffer struct {
	partial string
}

// Feed appends chunk and returns every record it completes, in order.
// Records are returned without their trailing newline; empty records are
// returned too and left for the decoder to skip.
func (b *LineBuffer) Feed(chunk string) []string {
	if chunk == "" {
		return nil
	}
	parts := strings.Split(b.partial+chunk, "\n")
	b.partial = parts[len(parts)-1]
	return parts[:len(parts)-1]
}

// Flush returns the buffered partial record, if any, and empties the buffer.
// Call it once the stream has ended.
func (b *LineBuffer) Flush() (string, bool) {
	rest := b.partial
	b.partial = ""
	return rest, rest != ""
}

// Pending returns the buffered partial record without consuming it.
func (b *LineBuffer) Pending() string {
	return b.partial
}
