package mqtt

import (
	"testing"
	"time"
)

func TestPingStateSendsPingAtHalfPeriod(t *testing.T) {
	start := time.Now()
	p := newPingState(10 * time.Second)
	p.lastWrite = start

	send, err := p.tick(start.Add(4 * time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if send {
		t.Fatal("did not expect a ping before half the keep-alive period elapsed")
	}

	send, err = p.tick(start.Add(5 * time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !send {
		t.Fatal("expected a ping once half the keep-alive period elapsed")
	}
	if !p.pingInFlight {
		t.Fatal("expected pingInFlight to be set after sending a ping")
	}
}

func TestPingStateTimesOutIfNoPingResp(t *testing.T) {
	start := time.Now()
	p := newPingState(10 * time.Second)
	p.lastWrite = start
	p.pingInFlight = true
	p.lastPingSent = start

	if _, err := p.tick(start.Add(10*time.Second + time.Millisecond)); err != errKeepAliveTimeout {
		t.Fatalf("expected errKeepAliveTimeout, got %v", err)
	}
}

func TestPingStateClearsInFlightOnPingResp(t *testing.T) {
	p := newPingState(10 * time.Second)
	p.pingInFlight = true
	p.notePingResp()
	if p.pingInFlight {
		t.Fatal("expected pingInFlight to be cleared")
	}
}

func TestPingStateDisabledWithZeroKeepAlive(t *testing.T) {
	p := newPingState(0)
	send, err := p.tick(time.Now().Add(time.Hour))
	if err != nil || send {
		t.Fatalf("expected zero keep-alive to never trigger a ping, got send=%v err=%v", send, err)
	}
}
