package claude

import (
	"testing"
	"time"
)

func TestEventQueue_DeliversInOrder(t *testing.T) {
	q := newEventQueue()
	defer q.close()

	for i := 0; i < 3; i++ {
		q.push(Event{SessionID: "s1", Text: string(rune('a' + i))})
	}
	for _, want := range []string{"a", "b", "c"} {
		select {
		case ev := <-q.out:
			if ev.Text != want {
				t.Errorf("got %q, want %q", ev.Text, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestEventQueue_CloseDeliversQueuedToReader(t *testing.T) {
	q := newEventQueue()
	q.push(Event{SessionID: "s1", Type: EventComplete})
	q.close()

	select {
	case ev, ok := <-q.out:
		if !ok {
			t.Fatal("queued event dropped while a reader was present")
		}
		if ev.Type != EventComplete {
			t.Errorf("got %v, want EventComplete", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queued event")
	}

	select {
	case _, ok := <-q.out:
		if ok {
			t.Error("expected closed channel after drain")
		}
	case <-time.After(time.Second):
		t.Fatal("output not closed after drain")
	}
}

func TestEventQueue_CloseWithoutReaderReleasesDispatcher(t *testing.T) {
	q := startEventQueue(20 * time.Millisecond)
	for i := 0; i < 5; i++ {
		q.push(Event{SessionID: "s1", Type: EventStreamingText})
	}
	q.close()

	// Nobody reads until well past the drain timeout.
	time.Sleep(200 * time.Millisecond)

	select {
	case _, ok := <-q.out:
		if ok {
			t.Error("undelivered events should be dropped once the drain timeout passes")
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher still blocked after close")
	}

	q.mu.Lock()
	left := len(q.items)
	q.mu.Unlock()
	if left != 0 {
		t.Errorf("queue still holds %d events", left)
	}
}

func TestEventQueue_PushAfterCloseIgnored(t *testing.T) {
	q := newEventQueue()
	q.close()
	q.close()
	q.push(Event{SessionID: "s1"})

	select {
	case _, ok := <-q.out:
		if ok {
			t.Error("event pushed after close was delivered")
		}
	case <-time.After(time.Second):
		t.Fatal("output not closed")
	}
}
