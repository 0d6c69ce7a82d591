package mqtt

import "testing"

func newTestPublishState() *publishState {
	return newPublishState(newIDPool(), 16)
}

func TestPublishStateQoS0SendsImmediatelyWithoutPacketID(t *testing.T) {
	s := newTestPublishState()
	done := make(chan error, 1)
	s.queue = append(s.queue, publishRequest{pub: Publication{Topic: "a", QoS: AtMostOnce, Payload: []byte("x")}, done: done})

	outbound, err := s.flushQueue()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outbound) != 1 {
		t.Fatalf("expected 1 outbound message, got %d", len(outbound))
	}
	if outbound[0].Type() != PublishType {
		t.Fatalf("expected a PUBLISH packet")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected completion error: %v", err)
		}
	default:
		t.Fatal("expected QoS 0 publish to complete immediately")
	}
}

func TestPublishStateQoS1RetransmitsWithDupOnReconnect(t *testing.T) {
	s := newTestPublishState()
	done := make(chan error, 1)
	s.queue = append(s.queue, publishRequest{pub: Publication{Topic: "a/b", QoS: AtLeastOnce, Payload: []byte("x")}, done: done})

	outbound, err := s.flushQueue()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outbound) != 1 {
		t.Fatalf("expected 1 outbound PUBLISH, got %d", len(outbound))
	}
	if len(s.waitingToBeAcked) != 1 {
		t.Fatalf("expected the PUBLISH to be tracked as waiting to be acked")
	}

	// Simulate the PUBACK never arriving and a fresh connection forming.
	replay := s.newConnection(false)
	if len(replay) != 1 {
		t.Fatalf("expected 1 replayed PUBLISH, got %d", len(replay))
	}
	if replay[0].Type() != PublishType {
		t.Fatalf("expected replay to be a PUBLISH packet")
	}
	if replay[0].fixedHeader&DupBit == 0 {
		t.Fatal("expected the replayed PUBLISH to carry the DUP bit")
	}

	var id PacketID
	for k := range s.waitingToBeAcked {
		id = k
	}
	s.handlePubAck(id)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected completion error: %v", err)
		}
	default:
		t.Fatal("expected QoS 1 publish to complete once PUBACK arrives")
	}
	if len(s.waitingToBeAcked) != 0 {
		t.Fatal("expected waitingToBeAcked to be empty after PUBACK")
	}
}

func TestPublishStateQoS2SurvivesResetSessionReplay(t *testing.T) {
	s := newTestPublishState()
	done := make(chan error, 1)
	s.queue = append(s.queue, publishRequest{pub: Publication{Topic: "a/b", QoS: ExactlyOnce, Payload: []byte("x")}, done: done})

	if _, err := s.flushQueue(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var id PacketID
	for k := range s.waitingToBeAcked {
		id = k
	}

	// Broker PUBREC arrives, moving the message to waitingToBeCompleted...
	pubrel := s.handlePubRec(id)
	if len(pubrel) != 1 || pubrel[0].Type() != PubRelType {
		t.Fatalf("expected a PUBREL in response to PUBREC")
	}
	if len(s.waitingToBeCompleted) != 1 {
		t.Fatal("expected the message to move to waitingToBeCompleted")
	}

	// ...but the connection drops and the broker reports a reset session on
	// reconnect, so the message must restart from PUBLISH, not PUBREL.
	outbound := s.newConnection(true)
	if len(s.waitingToBeCompleted) != 0 {
		t.Fatal("expected waitingToBeCompleted to be merged back on session reset")
	}
	if len(outbound) != 1 || outbound[0].Type() != PublishType {
		t.Fatalf("expected a single replayed PUBLISH after session reset, got %d messages", len(outbound))
	}

	pubrel = s.handlePubRec(id)
	if len(pubrel) != 1 {
		t.Fatalf("expected a PUBREL again after the restarted flow")
	}
	s.handlePubComp(id)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected completion error: %v", err)
		}
	default:
		t.Fatal("expected QoS 2 publish to complete once PUBCOMP arrives")
	}
}

func TestPublishStateInboundQoS2DuplicateIsNotRedelivered(t *testing.T) {
	s := newTestPublishState()
	pkt := &PublishPacket{Tag: PacketIdentifierDupQoS{QoS: ExactlyOnce, ID: 42}, Topic: "t", Payload: []byte("hello")}

	ack, received := s.handlePublish(pkt)
	if len(ack) != 1 || ack[0].Type() != PubRecType {
		t.Fatalf("expected a PUBREC for the first delivery")
	}
	if received == nil {
		t.Fatal("expected the first delivery to be surfaced")
	}

	dup := &PublishPacket{Tag: PacketIdentifierDupQoS{QoS: ExactlyOnce, ID: 42, Dup: true}, Topic: "t", Payload: []byte("hello")}
	ack, received = s.handlePublish(dup)
	if len(ack) != 1 || ack[0].Type() != PubRecType {
		t.Fatalf("expected a PUBREC even for the duplicate delivery")
	}
	if received != nil {
		t.Fatal("expected the duplicate delivery to not be re-surfaced")
	}
}

func TestPublishStateInboundQoS2CompletesWithoutPanicking(t *testing.T) {
	s := newTestPublishState()
	pkt := &PublishPacket{Tag: PacketIdentifierDupQoS{QoS: ExactlyOnce, ID: 7}, Topic: "t", Payload: []byte("hello")}

	ack, received := s.handlePublish(pkt)
	if len(ack) != 1 || ack[0].Type() != PubRecType {
		t.Fatalf("expected a PUBREC for the inbound PUBLISH")
	}
	if received == nil {
		t.Fatal("expected the inbound PUBLISH to be surfaced")
	}

	comp := s.handlePubRel(7)
	if len(comp) != 1 || comp[0].Type() != PubCompType {
		t.Fatalf("expected a PUBCOMP in response to PUBREL")
	}
	if _, stillWaiting := s.waitingToBeReleased[7]; stillWaiting {
		t.Fatal("expected id 7 to be cleared from waitingToBeReleased after PUBREL")
	}

	// The id must be free again - handlePubRel's discard must not have
	// panicked on an id that was never reserved through the outbound path.
	if s.pool.getBit(7) {
		t.Fatal("expected id 7 to be free in the pool after PUBREL")
	}
	if _, err := s.pool.reserve(); err != nil {
		t.Fatalf("unexpected error reserving after release: %v", err)
	}
}

func TestPublishStateInflightLimitStallsQueueIndependentlyOfPacketIDs(t *testing.T) {
	s := newPublishState(newIDPool(), 2)

	for i := 0; i < 2; i++ {
		done := make(chan error, 1)
		s.queue = append(s.queue, publishRequest{pub: Publication{Topic: "a", QoS: AtLeastOnce, Payload: []byte("x")}, done: done})
		if _, err := s.flushQueue(); err != nil {
			t.Fatalf("unexpected error filling the inflight window: %v", err)
		}
	}
	if len(s.waitingToBeAcked) != 2 {
		t.Fatalf("expected 2 publishes in flight, got %d", len(s.waitingToBeAcked))
	}

	done := make(chan error, 1)
	s.queue = append(s.queue, publishRequest{pub: Publication{Topic: "a", QoS: AtLeastOnce, Payload: []byte("x")}, done: done})
	if _, err := s.flushQueue(); err != ErrExhaustedPool {
		t.Fatalf("expected the third publish to stall with ErrExhaustedPool, got %v", err)
	}
	if len(s.queue) != 1 {
		t.Fatal("expected the stalled request to remain queued")
	}

	var anID PacketID
	for id := range s.waitingToBeAcked {
		anID = id
	}
	s.handlePubAck(anID)

	if _, err := s.flushQueue(); err != nil {
		t.Fatalf("expected the stalled publish to proceed once a slot freed up: %v", err)
	}
	if len(s.queue) != 0 {
		t.Fatal("expected the queue to drain once the inflight window had room")
	}
}

func TestPublishStateExhaustedPoolStallsQueueWithoutDroppingRequest(t *testing.T) {
	s := newTestPublishState()
	for i := 0; i < 65535; i++ {
		if _, err := s.pool.reserve(); err != nil {
			t.Fatalf("unexpected reservation failure at %d: %v", i, err)
		}
	}

	done := make(chan error, 1)
	s.queue = append(s.queue, publishRequest{pub: Publication{Topic: "a", QoS: AtLeastOnce, Payload: []byte("x")}, done: done})

	_, err := s.flushQueue()
	if err != ErrExhaustedPool {
		t.Fatalf("expected ErrExhaustedPool, got %v", err)
	}
	if len(s.queue) != 1 {
		t.Fatal("expected the stalled request to remain queued")
	}
}
