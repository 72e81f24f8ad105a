package event

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"winsentry/pkg/plugin"
)

func TestBus_PublishToTopic(t *testing.T) {
	b := NewBus(zap.NewNop())

	var got atomic.Int64
	b.Subscribe("monitor.status.changed", func(_ context.Context, ev plugin.Event) {
		got.Add(1)
	})

	_ = b.Publish(context.Background(), plugin.Event{Topic: "monitor.status.changed"})
	_ = b.Publish(context.Background(), plugin.Event{Topic: "other.topic"})

	if got.Load() != 1 {
		t.Errorf("handler called %d times, want 1", got.Load())
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	b := NewBus(zap.NewNop())

	var got atomic.Int64
	b.SubscribeAll(func(_ context.Context, _ plugin.Event) { got.Add(1) })

	_ = b.Publish(context.Background(), plugin.Event{Topic: "a"})
	_ = b.Publish(context.Background(), plugin.Event{Topic: "b"})

	if got.Load() != 2 {
		t.Errorf("wildcard handler called %d times, want 2", got.Load())
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus(zap.NewNop())

	var got atomic.Int64
	unsub := b.Subscribe("t", func(_ context.Context, _ plugin.Event) { got.Add(1) })

	_ = b.Publish(context.Background(), plugin.Event{Topic: "t"})
	unsub()
	_ = b.Publish(context.Background(), plugin.Event{Topic: "t"})

	if got.Load() != 1 {
		t.Errorf("handler called %d times after unsubscribe, want 1", got.Load())
	}
}

func TestBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	b := NewBus(zap.NewNop())

	var got atomic.Int64
	b.Subscribe("t", func(_ context.Context, _ plugin.Event) { panic("handler bug") })
	b.Subscribe("t", func(_ context.Context, _ plugin.Event) { got.Add(1) })

	_ = b.Publish(context.Background(), plugin.Event{Topic: "t"})

	if got.Load() != 1 {
		t.Errorf("second handler called %d times, want 1 despite first panicking", got.Load())
	}
}

func TestBus_PublishAsync(t *testing.T) {
	b := NewBus(zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	b.Subscribe("t", func(_ context.Context, ev plugin.Event) {
		defer wg.Done()
		if ev.Payload != "payload" {
			t.Errorf("Payload = %v", ev.Payload)
		}
	})

	b.PublishAsync(context.Background(), plugin.Event{Topic: "t", Payload: "payload"})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler never ran")
	}
}

func TestBus_UnsubscribeInsideHandler(t *testing.T) {
	b := NewBus(zap.NewNop())

	var unsub func()
	var got atomic.Int64
	unsub = b.Subscribe("t", func(_ context.Context, _ plugin.Event) {
		got.Add(1)
		unsub()
	})

	_ = b.Publish(context.Background(), plugin.Event{Topic: "t"})
	_ = b.Publish(context.Background(), plugin.Event{Topic: "t"})

	if got.Load() != 1 {
		t.Errorf("handler called %d times, want 1 after self-unsubscribe", got.Load())
	}
}
