package mqtt

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// errShutdown is returned internally by serveConnection to signal a
// user-requested Shutdown, as opposed to a transient connection error that
// should trigger a reconnect.
var errShutdown = errors.New("mqtt: client is shutting down")

// EventKind discriminates the variants of Event.
type EventKind int

const (
	// EventConnected is emitted once per successful CONNACK.
	EventConnected EventKind = iota
	// EventDisconnected is emitted whenever a connection ends, with the
	// error that ended it (nil only on deliberate Shutdown).
	EventDisconnected
	// EventMessage is emitted for every inbound PUBLISH surfaced to the
	// library user (QoS 2 duplicates are suppressed, never surfaced twice).
	EventMessage
)

// Event is the single stream a library user observes to learn about
// connection lifecycle and inbound messages.
type Event struct {
	Kind EventKind

	// AttemptID identifies the connection attempt this event belongs to -
	// a fresh UUID minted per dial, threaded through EventConnected and its
	// matching EventDisconnected so logs from a flaky broker can be
	// correlated without relying on timing alone.
	AttemptID string

	// SessionPresent is valid for EventConnected: whether the broker
	// resumed a prior session rather than starting a clean one.
	SessionPresent bool

	// Err is valid for EventDisconnected. nil means Shutdown was called.
	Err error

	// Message is valid for EventMessage.
	Message *ReceivedPublication
}

// ClientOptions configures a Client. Use DefaultClientOptions and the
// With* functions below rather than constructing it directly.
type ClientOptions struct {
	ConnectOptions []ConnectOption
	QueueDepth     int
	EventBuffer    int
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
}

// ClientOption is an Options-modifying-function, matching the idiom already
// used for ConnectOption elsewhere in this package.
type ClientOption func(*ClientOptions)

// DefaultClientOptions returns sane defaults: a modest request queue, a
// modest event buffer, and exponential reconnect backoff from half a second
// up to thirty.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		QueueDepth:  64,
		EventBuffer: 64,
		MinBackoff:  500 * time.Millisecond,
		MaxBackoff:  30 * time.Second,
	}
}

// WithConnectOptions sets the ConnectOption list re-applied on every
// connect and reconnect attempt.
func WithConnectOptions(opts ...ConnectOption) ClientOption {
	return func(o *ClientOptions) { o.ConnectOptions = opts }
}

// WithQueueDepth sets how many publish or subscribe requests may be queued
// before a handle call returns ErrNotReady.
func WithQueueDepth(depth int) ClientOption {
	return func(o *ClientOptions) { o.QueueDepth = depth }
}

// WithBackoff sets the reconnect backoff bounds.
func WithBackoff(min, max time.Duration) ClientOption {
	return func(o *ClientOptions) { o.MinBackoff, o.MaxBackoff = min, max }
}

// Client is the connection orchestrator: a single logic-loop goroutine owns
// the packet identifier pool, the publish and subscribe state machines, and
// the keep-alive timer, and is the only goroutine that ever touches them.
// Library users reach in exclusively through Publish/Subscribe/Unsubscribe
// and the Events channel - the same "one goroutine owns the state" shape the
// session and connection handling in this package has always used, widened
// here to also own reconnection.
type Client struct {
	dial DialFunc
	opts ClientOptions

	pool *idPool
	pub  *publishState
	sub  *subscribeState
	ping *pingState

	events chan Event

	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New creates a Client and starts its logic-loop goroutine, which begins
// dialing immediately.
func New(dial DialFunc, opts ...ClientOption) *Client {
	o := DefaultClientOptions()
	for _, fn := range opts {
		fn(&o)
	}

	pool := newIDPool()
	c := &Client{
		dial:    dial,
		opts:    o,
		pool:    pool,
		pub:     newPublishState(pool, o.QueueDepth),
		sub:     newSubscribeState(pool, o.QueueDepth),
		events:  make(chan Event, o.EventBuffer),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.run()
	return c
}

// Events returns the stream of connection lifecycle and inbound message
// events. A library user should keep reading it for the Client's lifetime;
// a full buffer causes new events to be dropped with a logged warning
// rather than stalling the logic loop.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Shutdown stops the logic loop, sending a DISCONNECT if currently
// connected, and blocks until it has exited.
func (c *Client) Shutdown() {
	c.closeOnce.Do(func() { close(c.stop) })
	<-c.stopped
}

func (c *Client) isShutdown() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// Publish submits p for delivery. The returned channel receives at most one
// value: nil on success (QoS 0: handed to the transport; QoS 1/2: broker
// ack observed), or the error that prevented delivery. A request still
// queued or awaiting its ack when Shutdown is called receives no value.
func (c *Client) Publish(p Publication) (<-chan error, error) {
	if c.isShutdown() {
		return nil, ErrClientDoesNotExist
	}
	done := make(chan error, 1)
	select {
	case c.pub.requests <- publishRequest{pub: p, done: done}:
		return done, nil
	default:
		return nil, ErrNotReady
	}
}

// Subscribe requests the given topic filters. The returned channel receives
// nil if every filter was accepted, or a *subscribeRefusedError naming the
// filters the broker refused.
func (c *Client) Subscribe(filters []SubscribeTo) (<-chan error, error) {
	if c.isShutdown() {
		return nil, ErrClientDoesNotExist
	}
	done := make(chan error, 1)
	select {
	case c.sub.requests <- subscriptionIntent{subscribe: filters, done: done}:
		return done, nil
	default:
		return nil, ErrNotReady
	}
}

// Unsubscribe requests removal of the given topic filters.
func (c *Client) Unsubscribe(topics []string) (<-chan error, error) {
	if c.isShutdown() {
		return nil, ErrClientDoesNotExist
	}
	done := make(chan error, 1)
	select {
	case c.sub.requests <- subscriptionIntent{unsubscribe: topics, done: done}:
		return done, nil
	default:
		return nil, ErrNotReady
	}
}

// PublishHandle is a narrow view of a Client exposing only Publish, for
// components that should not be able to manage subscriptions or shut the
// client down.
type PublishHandle struct{ client *Client }

// Publisher returns a PublishHandle for this Client.
func (c *Client) Publisher() PublishHandle { return PublishHandle{client: c} }

// Publish delegates to the underlying Client.
func (h PublishHandle) Publish(p Publication) (<-chan error, error) { return h.client.Publish(p) }

// UpdateSubscriptionHandle is a narrow view of a Client exposing only
// subscription management.
type UpdateSubscriptionHandle struct{ client *Client }

// Subscriptions returns an UpdateSubscriptionHandle for this Client.
func (c *Client) Subscriptions() UpdateSubscriptionHandle {
	return UpdateSubscriptionHandle{client: c}
}

// Subscribe delegates to the underlying Client.
func (h UpdateSubscriptionHandle) Subscribe(filters []SubscribeTo) (<-chan error, error) {
	return h.client.Subscribe(filters)
}

// Unsubscribe delegates to the underlying Client.
func (h UpdateSubscriptionHandle) Unsubscribe(topics []string) (<-chan error, error) {
	return h.client.Unsubscribe(topics)
}

// run is the reconnect loop: dial, handshake, serve until the connection
// ends, repeat with exponential backoff on failure. It returns (and the
// Client is then fully stopped) only on Shutdown or a FatalConnectError.
func (c *Client) run() {
	defer close(c.stopped)
	backoff := c.opts.MinBackoff

	for {
		if c.isShutdown() {
			return
		}

		attemptID := uuid.New().String()

		dialCtx, cancelDial := context.WithCancel(context.Background())
		go func() {
			select {
			case <-c.stop:
				cancelDial()
			case <-dialCtx.Done():
			}
		}()
		conn, err := c.dial(dialCtx)
		cancelDial()
		if err != nil {
			log.Warnf("mqtt: dial failed: %s", err)
			if !c.sleepBackoff(&backoff) {
				return
			}
			continue
		}

		sessionReset, err := c.handshake(conn)
		if err != nil {
			conn.Close()
			var fatal *FatalConnectError
			if errors.As(err, &fatal) {
				log.Errorf("mqtt[%s]: broker refused connection: %s", attemptID, err)
				c.closeOnce.Do(func() { close(c.stop) })
				c.failEverythingPending(err)
				c.emit(Event{Kind: EventDisconnected, AttemptID: attemptID, Err: err})
				return
			}
			log.Warnf("mqtt[%s]: connect handshake failed: %s", attemptID, err)
			if !c.sleepBackoff(&backoff) {
				return
			}
			continue
		}
		backoff = c.opts.MinBackoff
		c.emit(Event{Kind: EventConnected, AttemptID: attemptID, SessionPresent: !sessionReset})

		err = c.serveConnection(conn, sessionReset)
		conn.Close()
		if err == errShutdown {
			c.emit(Event{Kind: EventDisconnected, AttemptID: attemptID})
			return
		}
		c.emit(Event{Kind: EventDisconnected, AttemptID: attemptID, Err: err})
	}
}

// sleepBackoff waits out the current backoff (plus jitter) and doubles it,
// capped at MaxBackoff. It returns false if Shutdown fires during the wait.
func (c *Client) sleepBackoff(backoff *time.Duration) bool {
	jitter := time.Duration(rand.Int63n(int64(*backoff)/2 + 1))
	wait := *backoff + jitter

	*backoff *= 2
	if *backoff > c.opts.MaxBackoff {
		*backoff = c.opts.MaxBackoff
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-c.stop:
		return false
	case <-timer.C:
		return true
	}
}

// handshake sends CONNECT and waits for CONNACK, returning whether the
// flow's in-flight state must be treated as a fresh session: the broker
// reports it has no session to resume. The CONNACK wait is bounded by the
// keep-alive period (unbounded when keep-alive is zero).
func (c *Client) handshake(conn net.Conn) (sessionReset bool, err error) {
	req := NewConnectRequest(c.opts.ConnectOptions...)
	if _, err := req.WriteTo(conn); err != nil {
		return false, err
	}

	if timeout := time.Duration(req.options.KeepAliveSeconds) * time.Second; timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(timeout))
		defer conn.SetReadDeadline(time.Time{})
	}
	msg, err := readGenericMessage(conn)
	if err != nil {
		return false, err
	}
	if msg.Type() != ConnAckType {
		return false, errUnexpectedPacket
	}
	ack, err := decodeConnAck(msg.Body())
	if err != nil {
		return false, err
	}
	if ack.ReturnCode != ConnectionAccepted {
		return false, &FatalConnectError{ReturnCode: ack.ReturnCode}
	}

	c.ping = newPingState(time.Duration(req.options.KeepAliveSeconds) * time.Second)
	return !ack.SessionPresent, nil
}

// serveConnection runs the logic loop for one live connection: it replays
// in-flight protocol state, then services inbound packets, outbound
// requests, and keep-alive pings until the connection ends or Shutdown is
// called.
func (c *Client) serveConnection(conn net.Conn, sessionReset bool) error {
	inbound := make(chan *GenericMessage, 16)
	readErr := make(chan error, 1)
	go func() {
		defer close(inbound)
		for {
			msg, err := readGenericMessage(conn)
			if err != nil {
				readErr <- err
				return
			}
			inbound <- msg
		}
	}()

	write := func(m MessageWriter) error {
		if _, err := m.WriteTo(conn); err != nil {
			return err
		}
		c.ping.noteWrite(time.Now())
		return nil
	}

	for _, m := range c.sub.newConnection() {
		if err := write(m); err != nil {
			return err
		}
	}
	for _, m := range c.pub.newConnection(sessionReset) {
		if err := write(m); err != nil {
			return err
		}
	}

	pingTicker := time.NewTicker(time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-c.stop:
			conn.SetWriteDeadline(time.Now().Add(time.Second)) // a peer that never reads cannot stall Shutdown
			write(NewDisconnectMessage())                      // best effort; the connection is going away regardless
			return errShutdown

		case msg, ok := <-inbound:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return io.ErrUnexpectedEOF
				}
			}
			if err := c.handleInbound(write, msg); err != nil {
				return err
			}

		case req := <-c.pub.requests:
			c.pub.queue = append(c.pub.queue, req)

		case req := <-c.sub.requests:
			c.sub.queue = append(c.sub.queue, req)

		case now := <-pingTicker.C:
			send, err := c.ping.tick(now)
			if err != nil {
				return err
			}
			if send {
				if err := write(makePingReqMessage()); err != nil {
					return err
				}
			}
		}

		if err := c.flushOutbound(write); err != nil {
			return err
		}
	}
}

// handleInbound dispatches one decoded packet to the relevant state machine
// and writes out anything it produces in response.
func (c *Client) handleInbound(write func(MessageWriter) error, msg *GenericMessage) error {
	if msg.Type() == PingRespType {
		c.ping.notePingResp()
		return nil
	}

	decoded, err := DecodePacket(msg)
	if err != nil {
		return err
	}

	switch p := decoded.(type) {
	case *PublishPacket:
		acks, received := c.pub.handlePublish(p)
		for _, a := range acks {
			if err := write(a); err != nil {
				return err
			}
		}
		if received != nil {
			c.emit(Event{Kind: EventMessage, Message: received})
		}

	case *IDPacket:
		switch p.Kind {
		case PubAckType:
			c.pub.handlePubAck(p.ID)
		case PubRecType:
			for _, a := range c.pub.handlePubRec(p.ID) {
				if err := write(a); err != nil {
					return err
				}
			}
		case PubRelType:
			for _, a := range c.pub.handlePubRel(p.ID) {
				if err := write(a); err != nil {
					return err
				}
			}
		case PubCompType:
			c.pub.handlePubComp(p.ID)
		}

	case *SubAckPacket:
		if err := c.sub.handleSubAck(p); err != nil {
			log.Warnf("mqtt: %s", err)
		}

	case *UnsubAckPacket:
		c.sub.handleUnsubAck(p.ID)

	case *ConnAckPacket:
		return errUnexpectedPacket
	}

	return nil
}

// flushOutbound attempts to send every queued publish and subscribe
// request. ErrExhaustedPool is not a connection error - the stalled request
// stays queued and is retried once an identifier frees up - everything else
// is.
func (c *Client) flushOutbound(write func(MessageWriter) error) error {
	outbound, err := c.sub.flushQueue()
	for _, m := range outbound {
		if werr := write(m); werr != nil {
			return werr
		}
	}
	if err != nil && err != ErrExhaustedPool {
		return err
	}

	outbound, err = c.pub.flushQueue()
	for _, m := range outbound {
		if werr := write(m); werr != nil {
			return werr
		}
	}
	if err != nil && err != ErrExhaustedPool {
		return err
	}

	return nil
}

// failEverythingPending reports err to every request still queued or
// in-flight, used once on a terminal FatalConnectError.
func (c *Client) failEverythingPending(err error) {
	for _, req := range c.pub.queue {
		signal(req.done, err)
	}
	for _, pending := range c.pub.waitingToBeAcked {
		signal(pending.done, err)
	}
	for _, pending := range c.pub.waitingToBeCompleted {
		signal(pending.done, err)
	}
	for _, req := range c.sub.queue {
		signal(req.done, err)
	}
	for _, pending := range c.sub.pendingAcks {
		signal(pending.intent.done, err)
	}
}

// emit delivers e to the Events channel without blocking the logic loop; a
// full buffer means the library user has fallen behind, and events are
// dropped with a warning rather than stalling protocol processing.
func (c *Client) emit(e Event) {
	select {
	case c.events <- e:
	default:
		log.Warnf("mqtt: event buffer full, dropping event kind %d", e.Kind)
	}
}

// readGenericMessage reads one complete MQTT control packet from r.
func readGenericMessage(r io.Reader) (*GenericMessage, error) {
	var header [1]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	remaining, err := DecodeVariableInt(r)
	if err != nil {
		return nil, err
	}
	body := make([]byte, remaining)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return NewGenericMessage(header[0], body), nil
}

// makePingReqMessage encodes a PINGREQ packet, which carries no body.
func makePingReqMessage() *GenericMessage {
	return NewGenericMessage(PingReqType<<4, nil)
}
