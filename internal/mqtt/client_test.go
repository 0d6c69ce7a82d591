package mqtt

import (
	"context"
	"net"
	"testing"
	"time"
)

// fakeBroker drives one end of a net.Pipe as a minimal broker: it reads and
// discards the CONNECT, replies with the given CONNACK bytes, then hands
// control to serve for whatever packet exchange a test needs.
func fakeBroker(t *testing.T, conn net.Conn, connack []byte, serve func(conn net.Conn)) {
	t.Helper()
	t.Cleanup(func() { conn.Close() })
	go func() {
		if _, err := readGenericMessage(conn); err != nil {
			return
		}
		if _, err := conn.Write(connack); err != nil {
			return
		}
		if serve != nil {
			serve(conn)
		}
	}()
}

func acceptedConnAck(sessionPresent bool) []byte {
	sp := byte(0)
	if sessionPresent {
		sp = 1
	}
	return []byte{ConnAckType << 4, 2, sp, ConnectionAccepted}
}

func waitForEvent(t *testing.T, events <-chan Event, kind EventKind, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-events:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
	}
}

func TestClientEmitsConnectedOnSuccessfulHandshake(t *testing.T) {
	clientConn, brokerConn := net.Pipe()
	fakeBroker(t, brokerConn, acceptedConnAck(false), nil)

	dialed := false
	c := New(func(ctx context.Context) (net.Conn, error) {
		if dialed {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		dialed = true
		return clientConn, nil
	}, WithConnectOptions(ClientName("test-client")))
	defer c.Shutdown()

	e := waitForEvent(t, c.Events(), EventConnected, time.Second)
	if e.SessionPresent {
		t.Fatal("expected a fresh session, not one resumed from the broker")
	}
}

func TestClientPublishQoS0IsWrittenToTheWire(t *testing.T) {
	clientConn, brokerConn := net.Pipe()

	received := make(chan *PublishPacket, 1)
	fakeBroker(t, brokerConn, acceptedConnAck(false), func(conn net.Conn) {
		msg, err := readGenericMessage(conn)
		if err != nil {
			return
		}
		decoded, err := DecodePacket(msg)
		if err != nil {
			return
		}
		if p, ok := decoded.(*PublishPacket); ok {
			received <- p
		}
	})

	c := New(func(ctx context.Context) (net.Conn, error) { return clientConn, nil })
	defer c.Shutdown()

	waitForEvent(t, c.Events(), EventConnected, time.Second)

	done, err := c.Publish(Publication{Topic: "a/b", QoS: AtMostOnce, Payload: []byte("hello")})
	if err != nil {
		t.Fatalf("unexpected error from Publish: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected completion error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for QoS 0 publish to complete")
	}

	select {
	case p := <-received:
		if p.Topic != "a/b" || string(p.Payload) != "hello" {
			t.Fatalf("broker received unexpected publish: %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broker to receive the PUBLISH")
	}
}

func TestClientReconnectsAfterConnectionDrop(t *testing.T) {
	firstClient, firstBroker := net.Pipe()
	secondClient, secondBroker := net.Pipe()

	fakeBroker(t, firstBroker, acceptedConnAck(false), func(conn net.Conn) {
		conn.Close() // drop the connection right after CONNACK
	})
	fakeBroker(t, secondBroker, acceptedConnAck(true), nil)

	attempt := 0
	c := New(func(ctx context.Context) (net.Conn, error) {
		attempt++
		if attempt == 1 {
			return firstClient, nil
		}
		return secondClient, nil
	}, WithBackoff(time.Millisecond, 10*time.Millisecond))
	defer c.Shutdown()

	waitForEvent(t, c.Events(), EventConnected, time.Second)
	waitForEvent(t, c.Events(), EventDisconnected, time.Second)
	second := waitForEvent(t, c.Events(), EventConnected, time.Second)
	if !second.SessionPresent {
		t.Fatal("expected the second connection to report a resumed session")
	}
}

func TestClientFatalConnectErrorStopsTheClientAndFailsHandles(t *testing.T) {
	clientConn, brokerConn := net.Pipe()
	refusal := []byte{ConnAckType << 4, 2, 0, ConnectionRefusedNotAuthorized}
	fakeBroker(t, brokerConn, refusal, nil)

	c := New(func(ctx context.Context) (net.Conn, error) { return clientConn, nil })

	waitForEvent(t, c.Events(), EventDisconnected, time.Second)

	// A fatal connect error must stop the client on its own - a caller who
	// never calls Shutdown should still see handle calls fail.
	if _, err := c.Publish(Publication{Topic: "a", QoS: AtMostOnce}); err != ErrClientDoesNotExist {
		t.Fatalf("expected ErrClientDoesNotExist after a fatal connect error, got %v", err)
	}

	c.Shutdown()
}
