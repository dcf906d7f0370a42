package live

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JoelGonzalez08/TerraWeb/internal/store"
)

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	m := store.Measurement{SensorID: uuid.New(), Metric: "air_temp", Value: 21.5, RecordedAt: time.Now()}
	h.Broadcast(m)

	for name, ch := range map[string]chan store.Measurement{"a": a, "b": b} {
		select {
		case got := <-ch:
			if got.Metric != "air_temp" {
				t.Errorf("subscriber %s got %+v", name, got)
			}
		case <-time.After(time.Second):
			t.Errorf("subscriber %s did not receive broadcast", name)
		}
	}
}

func TestSlowSubscriberDoesNotBlockBroadcast(t *testing.T) {
	h := NewHub()
	slow := h.Subscribe()
	defer h.Unsubscribe(slow)

	// Fill the subscriber buffer and keep broadcasting; Broadcast must not
	// block even though nobody is draining.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Broadcast(store.Measurement{Metric: "soil_moisture", Value: float64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a slow subscriber")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	h.Unsubscribe(ch)
	h.Unsubscribe(ch) // must not panic on double close
	h.Broadcast(store.Measurement{Metric: "air_temp", Value: 1})
}
