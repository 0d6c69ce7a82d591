package mqtt

import (
	"sort"

	log "github.com/sirupsen/logrus"
)

// SubscribeTo is one entry of a subscribe request: the topic filter and the
// maximum QoS the library user is willing to receive it at.
type SubscribeTo struct {
	TopicFilter string
	QoS         QoS
}

// subscriptionIntent is a SUBSCRIBE or UNSUBSCRIBE request submitted through
// an UpdateSubscriptionHandle, queued until the orchestrator can send it and
// reserve it a packet identifier.
type subscriptionIntent struct {
	subscribe   []SubscribeTo // non-nil for a SUBSCRIBE
	unsubscribe []string      // non-nil for an UNSUBSCRIBE
	done        chan error
}

// pendingIntent is an intent that has been sent and is waiting for its
// SUBACK/UNSUBACK. replay is the exact wire encoding sent, re-sent verbatim
// (MQTT 3.1.1 attaches no DUP semantics to SUBSCRIBE/UNSUBSCRIBE) whenever a
// new connection forms before the ack arrives.
type pendingIntent struct {
	intent subscriptionIntent
	replay *GenericMessage
}

// subscribeState is the subscription half of the protocol: a FIFO of intents
// awaiting transmission, plus a map of in-flight intents awaiting ack,
// mirroring the asymmetric pending-subs/pendingAcks split many clients use
// because SUBACK return codes must be matched positionally against the
// SUBSCRIBE that produced them, while multiple distinct SUBSCRIBE/UNSUBSCRIBE
// requests can be outstanding with different packet identifiers at once.
type subscribeState struct {
	pool *idPool

	requests chan subscriptionIntent
	queue    []subscriptionIntent

	pendingAcks map[PacketID]*pendingIntent
}

func newSubscribeState(pool *idPool, queueDepth int) *subscribeState {
	return &subscribeState{
		pool:        pool,
		requests:    make(chan subscriptionIntent, queueDepth),
		pendingAcks: make(map[PacketID]*pendingIntent),
	}
}

// flushQueue sends every queued intent, stopping and returning
// ErrExhaustedPool the instant the identifier pool runs dry, leaving the
// stalled intent and everything behind it queued for the next call.
func (s *subscribeState) flushQueue() ([]*GenericMessage, error) {
	var outbound []*GenericMessage

	for len(s.queue) > 0 {
		intent := s.queue[0]

		id, err := s.pool.reserve()
		if err != nil {
			return outbound, err
		}

		var msg *GenericMessage
		if intent.subscribe != nil {
			filters := make([]subscribeFilter, len(intent.subscribe))
			for i, f := range intent.subscribe {
				filters[i] = subscribeFilter{TopicFilter: f.TopicFilter, QoS: f.QoS}
			}
			msg = makeSubscribeMessage(id, filters)
		} else {
			msg = makeUnsubscribeMessage(id, intent.unsubscribe)
		}

		s.pendingAcks[id] = &pendingIntent{intent: intent, replay: msg}
		outbound = append(outbound, msg)
		s.queue = s.queue[1:]
	}

	return outbound, nil
}

// handleSubAck completes a pending SUBSCRIBE. Per MQTT 3.1.1 3.9.3, the
// return codes are positional: one per topic filter in the original
// SUBSCRIBE, in the same order, each either an accepted QoS or 0x80 for
// failure. A count mismatch is reported back to the caller as the completion
// error rather than silently ignored, since it signals a broker or
// wire-decoding bug a library user needs to know about. A SUBACK for an
// unrecognized packet identifier has no caller to report to; it is logged
// and ignored.
func (s *subscribeState) handleSubAck(ack *SubAckPacket) error {
	pending, ok := s.pendingAcks[ack.ID]
	if !ok {
		log.Warnf("ignoring SUBACK for packet identifier %d we never sent", ack.ID)
		return nil
	}
	delete(s.pendingAcks, ack.ID)
	s.pool.discard(ack.ID)

	if len(ack.ReturnCodes) != len(pending.intent.subscribe) {
		err := errUnexpectedPacket
		signal(pending.intent.done, err)
		return err
	}

	var failed []string
	for i, code := range ack.ReturnCodes {
		if code == SubAckFailure {
			failed = append(failed, pending.intent.subscribe[i].TopicFilter)
		}
	}
	if len(failed) > 0 {
		signal(pending.intent.done, &subscribeRefusedError{topics: failed})
		return nil
	}

	signal(pending.intent.done, nil)
	return nil
}

// handleUnsubAck completes a pending UNSUBSCRIBE. UNSUBACK carries no return
// codes in 3.1.1: the broker either has the identifier or it doesn't.
func (s *subscribeState) handleUnsubAck(id PacketID) {
	pending, ok := s.pendingAcks[id]
	if !ok {
		log.Warnf("ignoring UNSUBACK for packet identifier %d we never sent", id)
		return
	}
	delete(s.pendingAcks, id)
	s.pool.discard(id)
	signal(pending.intent.done, nil)
}

// newConnection replays every in-flight intent verbatim, in packet
// identifier order, after a fresh CONNACK. Unlike publish state, the wire
// encoding is identical whether or not the session was reset - 3.1.1 never
// marks SUBSCRIBE/UNSUBSCRIBE as a retransmission - so resetSession only
// matters insofar as a broker that forgot the session will also answer these
// again from scratch, which the existing pendingAcks bookkeeping already
// handles unchanged.
func (s *subscribeState) newConnection() []*GenericMessage {
	var outbound []*GenericMessage
	for _, id := range sortedPendingIntentKeys(s.pendingAcks) {
		outbound = append(outbound, s.pendingAcks[id].replay)
	}
	return outbound
}

func sortedPendingIntentKeys(m map[PacketID]*pendingIntent) []PacketID {
	keys := make([]PacketID, 0, len(m))
	for id := range m {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// subscribeRefusedError reports the topic filters a broker refused with a
// SUBACK failure code (0x80). Filters not listed were accepted.
type subscribeRefusedError struct {
	topics []string
}

func (e *subscribeRefusedError) Error() string {
	msg := "mqtt: broker refused subscription to"
	for i, t := range e.topics {
		if i > 0 {
			msg += ","
		}
		msg += " " + t
	}
	return msg
}
