package mqtt

import "time"

// pingState tracks keep-alive PINGREQ/PINGRESP timing for one connection.
// A zero keepAlive disables the timer entirely, per MQTT 3.1.1's definition
// of a zero Keep Alive value as "no timeout".
type pingState struct {
	keepAlive    time.Duration
	lastWrite    time.Time
	lastPingSent time.Time
	pingInFlight bool
}

func newPingState(keepAlive time.Duration) *pingState {
	now := time.Now()
	return &pingState{keepAlive: keepAlive, lastWrite: now}
}

// noteWrite records that something was just written to the broker, resetting
// the idle clock the keep-alive threshold is measured against.
func (p *pingState) noteWrite(now time.Time) {
	p.lastWrite = now
}

// notePingResp clears the in-flight flag on receipt of a PINGRESP.
func (p *pingState) notePingResp() {
	p.pingInFlight = false
}

// tick evaluates the keep-alive state at time now. It returns sendPing=true
// when a PINGREQ should be emitted (and counts as a write via noteWrite),
// and a non-nil fatal error when the in-flight ping has gone unanswered for
// longer than the full keep-alive period - the orchestrator treats this as
// a transient connection error and reconnects.
func (p *pingState) tick(now time.Time) (sendPing bool, fatal error) {
	if p.keepAlive <= 0 {
		return false, nil
	}

	if p.pingInFlight && now.Sub(p.lastPingSent) > p.keepAlive {
		return false, errKeepAliveTimeout
	}

	if !p.pingInFlight && now.Sub(p.lastWrite) >= p.keepAlive/2 {
		p.pingInFlight = true
		p.lastPingSent = now
		p.noteWrite(now)
		return true, nil
	}

	return false, nil
}
