package mqtt

import (
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Publication is a message payload destined for a topic, submitted by a
// library user via a PublishHandle.
type Publication struct {
	Topic   string
	QoS     QoS
	Retain  bool
	Payload []byte
}

// ReceivedPublication is a message delivered by the broker, surfaced to the
// library user as an event.
type ReceivedPublication struct {
	Topic   string
	QoS     QoS
	Retain  bool
	Dup     bool
	Payload []byte
}

// publishRequest is a Publication plus the channel its completion is
// signalled on. For QoS 0 "completion" means "handed to the transport"; for
// QoS >= 1 it means "the broker's final ack was observed".
type publishRequest struct {
	pub  Publication
	done chan error
}

// pendingPublish is an outbound QoS >= 1 PUBLISH awaiting its broker ack.
// replay always carries the wire encoding of the same PUBLISH with the DUP
// bit set, ready to be re-sent verbatim on reconnect (invariant 3 in the
// data model: every stored entry's replay copy has dup=true).
type pendingPublish struct {
	done   chan error
	replay *GenericMessage
}

// publishState is the QoS 0/1/2 send and receive protocol state machine.
// It is owned and driven exclusively by the orchestrator's single logic
// goroutine; nothing here synchronizes internally beyond the request
// intake channel, which is the one point user goroutines reach in.
type publishState struct {
	pool *idPool

	// inflight bounds how many QoS >= 1 PUBLISH flows may be outstanding at
	// once, independent of the much larger 16 bit packet identifier space -
	// the same role paho.golang's clientInflight semaphore plays against a
	// broker's CONNACK receive-maximum.
	inflight *semaphore.Weighted

	requests chan publishRequest
	queue    []publishRequest

	waitingToBeAcked     map[PacketID]*pendingPublish
	waitingToBeReleased  map[PacketID]struct{}
	waitingToBeCompleted map[PacketID]*pendingPublish
}

func newPublishState(pool *idPool, queueDepth int) *publishState {
	return &publishState{
		pool:                 pool,
		inflight:             semaphore.NewWeighted(int64(queueDepth)),
		requests:             make(chan publishRequest, queueDepth),
		waitingToBeAcked:     make(map[PacketID]*pendingPublish),
		waitingToBeReleased:  make(map[PacketID]struct{}),
		waitingToBeCompleted: make(map[PacketID]*pendingPublish),
	}
}

// flushQueue attempts to send every publish request currently queued. It
// stops and returns ErrExhaustedPool the moment a QoS >= 1 request cannot
// obtain a slot in the inflight window or a packet identifier, leaving that
// request (and everything behind
// it) at the head of the queue for the next call - the orchestrator should
// stop draining new publishes until an identifier frees up.
func (s *publishState) flushQueue() ([]*GenericMessage, error) {
	var outbound []*GenericMessage

	for len(s.queue) > 0 {
		req := s.queue[0]

		switch req.pub.QoS {
		case AtMostOnce:
			outbound = append(outbound, makePublishMessage(req.pub.Topic, req.pub.Payload, AtMostOnce, 0, false, req.pub.Retain))
			signal(req.done, nil)
			s.queue = s.queue[1:]

		case AtLeastOnce, ExactlyOnce:
			if !s.inflight.TryAcquire(1) {
				return outbound, ErrExhaustedPool
			}
			id, err := s.pool.reserve()
			if err != nil {
				s.inflight.Release(1)
				return outbound, err
			}
			msg := makePublishMessage(req.pub.Topic, req.pub.Payload, req.pub.QoS, id, false, req.pub.Retain)
			replay := makePublishMessage(req.pub.Topic, req.pub.Payload, req.pub.QoS, id, true, req.pub.Retain)
			s.waitingToBeAcked[id] = &pendingPublish{done: req.done, replay: replay}
			outbound = append(outbound, msg)
			s.queue = s.queue[1:]
		}
	}

	return outbound, nil
}

// handlePubAck completes the QoS 1 flow for id. A PUBACK for an id this
// state machine never sent is logged and dropped - lenient, to tolerate
// acks racing a reconnect.
func (s *publishState) handlePubAck(id PacketID) {
	pending, ok := s.waitingToBeAcked[id]
	if !ok {
		log.Warnf("ignoring PUBACK for packet identifier %d we never sent", id)
		return
	}
	delete(s.waitingToBeAcked, id)
	s.pool.discard(id)
	s.inflight.Release(1)
	signal(pending.done, nil)
}

// handlePubRec advances the QoS 2 outbound flow from sent to released,
// always emitting PUBREL even for an id this state machine does not
// recognize - a deliberate liveness choice over strict protocol rejection
// (see the open design questions).
func (s *publishState) handlePubRec(id PacketID) []*GenericMessage {
	if pending, ok := s.waitingToBeAcked[id]; ok {
		delete(s.waitingToBeAcked, id)
		s.waitingToBeCompleted[id] = pending
	} else {
		log.Warnf("ignoring PUBREC for packet identifier %d we never sent", id)
	}
	return []*GenericMessage{makeAckMessage(PubRelType, id)}
}

// handlePubRel completes the inbound QoS 2 flow for id, always emitting
// PUBCOMP regardless of whether id was recognized.
func (s *publishState) handlePubRel(id PacketID) []*GenericMessage {
	if _, ok := s.waitingToBeReleased[id]; ok {
		delete(s.waitingToBeReleased, id)
		s.pool.discard(id)
	} else {
		log.Warnf("ignoring PUBREL for packet identifier %d we never sent a PUBREC for", id)
	}
	return []*GenericMessage{makeAckMessage(PubCompType, id)}
}

// handlePubComp completes the QoS 2 outbound flow for id.
func (s *publishState) handlePubComp(id PacketID) {
	pending, ok := s.waitingToBeCompleted[id]
	if !ok {
		log.Warnf("ignoring PUBCOMP for packet identifier %d we never sent a PUBREL for", id)
		return
	}
	delete(s.waitingToBeCompleted, id)
	s.pool.discard(id)
	s.inflight.Release(1)
	signal(pending.done, nil)
}

// handlePublish processes an inbound PUBLISH, returning any ack packets to
// send and, unless it is a recognized QoS 2 duplicate, the event to surface
// to the library user.
func (s *publishState) handlePublish(p *PublishPacket) ([]*GenericMessage, *ReceivedPublication) {
	switch p.Tag.QoS {
	case AtMostOnce:
		return nil, &ReceivedPublication{Topic: p.Topic, QoS: AtMostOnce, Retain: p.Retain, Payload: p.Payload}

	case AtLeastOnce:
		received := &ReceivedPublication{Topic: p.Topic, QoS: AtLeastOnce, Retain: p.Retain, Dup: p.Tag.Dup, Payload: p.Payload}
		return []*GenericMessage{makeAckMessage(PubAckType, p.Tag.ID)}, received

	case ExactlyOnce:
		id := p.Tag.ID
		if _, duplicate := s.waitingToBeReleased[id]; duplicate {
			// The PUBREC we sent for this id was apparently lost; the broker
			// retransmitted the PUBLISH. Re-ack, do not re-surface the event.
			if !p.Tag.Dup {
				log.Warnf("received a duplicate QoS 2 PUBLISH for packet identifier %d without the DUP bit set; broker may be misbehaving", id)
			}
			return []*GenericMessage{makeAckMessage(PubRecType, id)}, nil
		}
		s.waitingToBeReleased[id] = struct{}{}
		s.pool.markReserved(id)
		received := &ReceivedPublication{Topic: p.Topic, QoS: ExactlyOnce, Retain: p.Retain, Dup: p.Tag.Dup, Payload: p.Payload}
		return []*GenericMessage{makeAckMessage(PubRecType, id)}, received
	}

	return nil, nil
}

// newConnection is called once per successful CONNACK. If the session was
// reset, the ExactlyOnce flow for every in-flight message must restart from
// PUBLISH (the broker has forgotten everything past it), and every PUBREC we
// had sent is void since the broker has forgotten it too. It then returns,
// in order, a replay of every PUBLISH still waiting to be acked, a PUBREC
// for every id still waiting to be released, and every PUBLISH waiting to
// be completed - each group sorted by packet identifier for determinism.
func (s *publishState) newConnection(resetSession bool) []*GenericMessage {
	if resetSession {
		for id, pending := range s.waitingToBeCompleted {
			s.waitingToBeAcked[id] = pending
		}
		s.waitingToBeCompleted = make(map[PacketID]*pendingPublish)

		for id := range s.waitingToBeReleased {
			s.pool.discard(id)
		}
		s.waitingToBeReleased = make(map[PacketID]struct{})
	}

	var outbound []*GenericMessage
	for _, id := range sortedPublishKeys(s.waitingToBeAcked) {
		outbound = append(outbound, s.waitingToBeAcked[id].replay)
	}
	for _, id := range sortedReleaseKeys(s.waitingToBeReleased) {
		outbound = append(outbound, makeAckMessage(PubRecType, id))
	}
	for _, id := range sortedPublishKeys(s.waitingToBeCompleted) {
		outbound = append(outbound, s.waitingToBeCompleted[id].replay)
	}
	return outbound
}

func sortedPublishKeys(m map[PacketID]*pendingPublish) []PacketID {
	keys := make([]PacketID, 0, len(m))
	for id := range m {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedReleaseKeys(m map[PacketID]struct{}) []PacketID {
	keys := make([]PacketID, 0, len(m))
	for id := range m {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// signal delivers a result on a completion channel without blocking if the
// caller has already stopped listening (the future was dropped). The
// protocol flow that produced this result still ran to completion; only the
// notification is best-effort, per the cancellation model.
func signal(done chan error, err error) {
	if done == nil {
		return
	}
	select {
	case done <- err:
	default:
	}
}
