package mqtt

import "testing"

func newTestSubscribeState() *subscribeState {
	return newSubscribeState(newIDPool(), 16)
}

func TestSubscribeStateSendsSubscribeAndCompletesOnSuback(t *testing.T) {
	s := newTestSubscribeState()
	done := make(chan error, 1)
	s.queue = append(s.queue, subscriptionIntent{subscribe: []SubscribeTo{{TopicFilter: "a/b", QoS: AtLeastOnce}}, done: done})

	outbound, err := s.flushQueue()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outbound) != 1 || outbound[0].Type() != SubscribeType {
		t.Fatalf("expected 1 SUBSCRIBE packet")
	}

	var id PacketID
	for k := range s.pendingAcks {
		id = k
	}

	if err := s.handleSubAck(&SubAckPacket{ID: id, ReturnCodes: []byte{byte(AtLeastOnce)}}); err != nil {
		t.Fatalf("unexpected error from handleSubAck: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected completion error: %v", err)
		}
	default:
		t.Fatal("expected the subscribe to complete")
	}
	if len(s.pendingAcks) != 0 {
		t.Fatal("expected pendingAcks to be empty")
	}
}

func TestSubscribeStateSurfacesPerTopicRefusal(t *testing.T) {
	s := newTestSubscribeState()
	done := make(chan error, 1)
	s.queue = append(s.queue, subscriptionIntent{
		subscribe: []SubscribeTo{{TopicFilter: "a", QoS: AtMostOnce}, {TopicFilter: "b", QoS: AtMostOnce}},
		done:      done,
	})

	if _, err := s.flushQueue(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var id PacketID
	for k := range s.pendingAcks {
		id = k
	}

	if err := s.handleSubAck(&SubAckPacket{ID: id, ReturnCodes: []byte{0x00, SubAckFailure}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case err := <-done:
		refused, ok := err.(*subscribeRefusedError)
		if !ok {
			t.Fatalf("expected a *subscribeRefusedError, got %v", err)
		}
		if len(refused.topics) != 1 || refused.topics[0] != "b" {
			t.Fatalf("expected topic \"b\" to be reported refused, got %v", refused.topics)
		}
	default:
		t.Fatal("expected the subscribe to complete with an error")
	}
}

func TestSubscribeStateUnsubscribeCompletesOnUnsuback(t *testing.T) {
	s := newTestSubscribeState()
	done := make(chan error, 1)
	s.queue = append(s.queue, subscriptionIntent{unsubscribe: []string{"a/b"}, done: done})

	outbound, err := s.flushQueue()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outbound) != 1 || outbound[0].Type() != UnsubscribeType {
		t.Fatalf("expected 1 UNSUBSCRIBE packet")
	}

	var id PacketID
	for k := range s.pendingAcks {
		id = k
	}
	s.handleUnsubAck(id)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected completion error: %v", err)
		}
	default:
		t.Fatal("expected the unsubscribe to complete")
	}
}

func TestSubscribeStateReplaysPendingOnNewConnection(t *testing.T) {
	s := newTestSubscribeState()
	done := make(chan error, 1)
	s.queue = append(s.queue, subscriptionIntent{subscribe: []SubscribeTo{{TopicFilter: "a/b", QoS: AtMostOnce}}, done: done})
	if _, err := s.flushQueue(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	replay := s.newConnection()
	if len(replay) != 1 || replay[0].Type() != SubscribeType {
		t.Fatalf("expected the pending SUBSCRIBE to be replayed, got %d messages", len(replay))
	}
}
