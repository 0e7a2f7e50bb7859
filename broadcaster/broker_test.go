package broadcaster

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/whaletrack/core/database/models"
)

func TestBrokerBroadcastDeliversToSubscriber(t *testing.T) {
	b := NewBroker(4)
	go b.Run()

	sink := b.Subscribe()
	defer b.Unsubscribe(sink)

	// give Run's register case a tick to process before broadcasting
	time.Sleep(10 * time.Millisecond)

	b.Broadcast(models.Event{ID: 7, Type: models.EventLargeSwap})

	select {
	case msg := <-sink:
		var got models.Event
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("unmarshal delivered message: %v", err)
		}
		if got.ID != 7 {
			t.Errorf("got event id %d, want 7", got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast delivery")
	}
}

func TestBrokerDropsWhenSinkBacklogFull(t *testing.T) {
	b := NewBroker(1)
	go b.Run()

	sink := b.Subscribe()
	defer b.Unsubscribe(sink)
	time.Sleep(10 * time.Millisecond)

	// never drained: the second broadcast must be dropped for this sink
	// rather than blocking the producer
	done := make(chan struct{})
	go func() {
		b.Broadcast(models.Event{ID: 1})
		b.Broadcast(models.Event{ID: 2})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full subscriber backlog")
	}
}

func TestNewBrokerDefaultsBacklog(t *testing.T) {
	b := NewBroker(0)
	if b.backlog != DefaultBacklog {
		t.Errorf("backlog = %d, want default %d", b.backlog, DefaultBacklog)
	}
	b = NewBroker(-3)
	if b.backlog != DefaultBacklog {
		t.Errorf("negative backlog should fall back to default, got %d", b.backlog)
	}
}
