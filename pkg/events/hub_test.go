package events

import "testing"

func TestPublishReachesAllSubscribers(t *testing.T) {
	hub := NewEventHub()
	a := hub.Subscribe()
	b := hub.Subscribe()
	defer hub.Unsubscribe(a)
	defer hub.Unsubscribe(b)

	hub.Publish(ResumeFull, ResumeEvent{BatteryPercent: 55})

	for _, sub := range []chan Event{a, b} {
		select {
		case ev := <-sub:
			if ev.Name != ResumeFull {
				t.Errorf("event = %s, want %s", ev.Name, ResumeFull)
			}
			payload, err := DecodeAs[ResumeEvent](ev)
			if err != nil {
				t.Fatal(err)
			}
			if payload.BatteryPercent != 55 {
				t.Errorf("batteryPercent = %v, want 55", payload.BatteryPercent)
			}
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	hub := NewEventHub()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	// Fill the buffer and then some. Publish must not block.
	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish(ChargeState, ChargeStateEvent{Ts: int64(i)})
	}

	if got := len(sub); got != subscriberBuffer {
		t.Errorf("buffered events = %d, want %d", got, subscriberBuffer)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewEventHub()
	sub := hub.Subscribe()

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub) // second time is a no-op

	if _, open := <-sub; open {
		t.Error("channel still open after unsubscribe")
	}

	// Publishing after the subscriber left must not panic.
	hub.Publish(SuspendReady, SuspendReadyEvent{Sequence: 1})
}

func TestNilHubDiscardsPublishes(t *testing.T) {
	var hub *EventHub
	hub.Publish(SuspendAttempt, SuspendAttemptEvent{Sequence: 1})
}
