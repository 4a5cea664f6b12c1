package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	_, ch := b.Subscribe()
	b.Publish(Event{Type: SessionCreated, SessionID: "abc"})

	select {
	case ev := <-ch:
		assert.Equal(t, SessionCreated, ev.Type)
		assert.Equal(t, "abc", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := New()
	b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < QueueDepth*2; i++ {
			b.Publish(Event{Type: SessionExited})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	id, ch := b.Subscribe()
	b.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestOverflowDropsSubscriber(t *testing.T) {
	b := New()
	_, ch := b.Subscribe()

	for i := 0; i < QueueDepth+1; i++ {
		b.Publish(Event{Type: SessionExited})
	}

	b.mu.Lock()
	subCount := len(b.subs)
	b.mu.Unlock()
	assert.Zero(t, subCount, "overflowing subscriber must be dropped, not just skipped")

	// Drain the channel: it must eventually report closed rather than
	// blocking forever, proving the client can detect it needs to
	// re-subscribe.
	for {
		if _, ok := <-ch; !ok {
			return
		}
	}
}
