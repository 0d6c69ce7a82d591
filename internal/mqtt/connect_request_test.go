package mqtt

import (
	"bytes"
	"testing"
)

func TestConnectRequestWriteTo(t *testing.T) {
	request := NewConnectRequest(ClientName("MqttUnitTest"))

	var buf bytes.Buffer
	if _, err := request.WriteTo(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if buf.Len() != 26 {
		t.Fatalf("expected a 26 byte CONNECT packet, got %d", buf.Len())
	}
	if buf.Bytes()[0] != ConnectType<<4 {
		t.Fatalf("expected fixed header byte %x, got %x", ConnectType<<4, buf.Bytes()[0])
	}
}

func TestConnectRequestSetsWillFlagsAndBits(t *testing.T) {
	request := NewConnectRequest(
		ClientName("c"),
		WillTopic("last/will"),
		WillMessage([]byte("bye")),
		WillQoS(1),
		WillRetain(true),
	)

	bits := request.connectBits()
	if bits&WillFlag == 0 {
		t.Fatal("expected WillFlag to be set")
	}
	if bits&WillQoSOne == 0 {
		t.Fatal("expected WillQoSOne bits to be set")
	}
	if bits&WillRetainFlag == 0 {
		t.Fatal("expected WillRetainFlag to be set")
	}
}

func TestConnectRequestSetsUserNameAndPasswordBits(t *testing.T) {
	request := NewConnectRequest(ClientName("c"), UserName("alice"), Password([]byte("secret")))

	bits := request.connectBits()
	if bits&UserNameFlag == 0 {
		t.Fatal("expected UserNameFlag to be set")
	}
	if bits&PasswordFlag == 0 {
		t.Fatal("expected PasswordFlag to be set")
	}
}

func TestRandomClientIDProducesDistinctNonEmptyValues(t *testing.T) {
	a, b := RandomClientID(), RandomClientID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty client IDs")
	}
	if a == b {
		t.Fatal("expected two calls to produce distinct client IDs")
	}
}
