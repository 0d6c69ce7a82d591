package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
)

// DialFunc opens a fresh transport connection to a broker. The orchestrator
// calls it once per connection attempt, including reconnects; ctx is
// cancelled if Shutdown is called while a dial is in flight.
type DialFunc func(ctx context.Context) (net.Conn, error)

// TCPDialer returns a DialFunc connecting to the given host:port over plain
// TCP, the standard MQTT transport on UnencryptedPortTCP.
func TCPDialer(address string) DialFunc {
	var d net.Dialer
	return func(ctx context.Context) (net.Conn, error) {
		return d.DialContext(ctx, "tcp", address)
	}
}

// TLSDialer returns a DialFunc connecting over TLS, for brokers that require
// encrypted transport (most cloud IoT brokers do). A nil config uses the
// system root CA pool and the address's host name for verification.
func TLSDialer(address string, config *tls.Config) DialFunc {
	var d net.Dialer
	return func(ctx context.Context) (net.Conn, error) {
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, err
		}
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("mqtt: splitting host from dial address %q: %w", address, err)
		}
		cfg := config
		if cfg == nil {
			cfg = &tls.Config{ServerName: host}
		} else if cfg.ServerName == "" {
			clone := cfg.Clone()
			clone.ServerName = host
			cfg = clone
		}
		tlsConn := tls.Client(conn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return tlsConn, nil
	}
}
