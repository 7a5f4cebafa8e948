package claude

import (
	"slices"
	"testing"
)

func TestLineBuffer_Feed(t *testing.T) {
	var b LineBuffer

	if got := b.Feed(`{"a":1}`); len(got) != 0 {
		t.Errorf("partial chunk should yield nothing, got %v", got)
	}
	if b.Pending() != `{"a":1}` {
		t.Errorf("Pending = %q", b.Pending())
	}

	got := b.Feed("\n{\"b\":2}\n{\"c\"")
	want := []string{`{"a":1}`, `{"b":2}`}
	if !slices.Equal(got, want) {
		t.Errorf("Feed = %v, want %v", got, want)
	}
	if b.Pending() != `{"c"` {
		t.Errorf("Pending = %q", b.Pending())
	}
}

func TestLineBuffer_EmptyRecordsPassThrough(t *testing.T) {
	var b LineBuffer
	got := b.Feed("a\n\nb\n")
	if !slices.Equal(got, []string{"a", "", "b"}) {
		t.Errorf("got %q", got)
	}
}

func TestLineBuffer_Flush(t *testing.T) {
	var b LineBuffer
	b.Feed("one\ntwo")

	rest, ok := b.Flush()
	if !ok || rest != "two" {
		t.Errorf("Flush = %q, %v", rest, ok)
	}
	if _, ok := b.Flush(); ok {
		t.Error("second Flush should be empty")
	}

	b.Feed("three\n")
	if _, ok := b.Flush(); ok {
		t.Error("Flush after a complete record should be empty")
	}
}

// Every way of splitting a stream into two or three chunks yields the
// same records.
func TestLineBuffer_ChunkingInvariance(t *testing.T) {
	stream := "{\"type\":\"system\"}\n{\"type\":\"assistant\",\"x\":\"é\"}\n\n{\"type\":\"result\"}\n"
	want := []string{`{"type":"system"}`, `{"type":"assistant","x":"é"}`, "", `{"type":"result"}`}

	for i := 0; i <= len(stream); i++ {
		for j := i; j <= len(stream); j++ {
			var b LineBuffer
			var got []string
			got = append(got, b.Feed(stream[:i])...)
			got = append(got, b.Feed(stream[i:j])...)
			got = append(got, b.Feed(stream[j:])...)
			if rest, ok := b.Flush(); ok {
				got = append(got, rest)
			}
			if !slices.Equal(got, want) {
				t.Fatalf("split at %d,%d: got %q, want %q", i, j, got, want)
			}
		}
	}
}

func TestLineBuffer_FlushUnterminated(t *testing.T) {
	var b LineBuffer
	var got []string
	for _, c := range []string{"a\nb", "c\nd"} {
		got = append(got, b.Feed(c)...)
	}
	if rest, ok := b.Flush(); ok {
		got = append(got, rest)
	}
	if !slices.Equal(got, []string{"a", "bc", "d"}) {
		t.Errorf("got %q", got)
	}
}
