package mqtt

import (
	"time"

	jwt "github.com/dgrijalva/jwt-go"
)

// Claims is the minimal claim set a broker that authenticates CONNECT
// passwords as signed JWTs expects: an audience identifying the broker
// (many cloud IoT brokers use the GCP/Azure project or hub name) and an
// expiry the client must refresh before it lapses.
type Claims struct {
	Audience string
	IssuedAt time.Time
	Expiry   time.Time
}

func (c Claims) toStandard() jwt.StandardClaims {
	return jwt.StandardClaims{
		Audience:  c.Audience,
		IssuedAt:  c.IssuedAt.Unix(),
		ExpiresAt: c.Expiry.Unix(),
	}
}

// SignedPassword returns a ConnectOption whose Password is a freshly signed
// JWT built from claims using the given signing method and key. Because
// ConnectOptions are re-applied from ConnectOption on every connect and
// reconnect attempt (see ClientOptions.ConnectOptions), a Claims with a
// short Expiry and this option re-minted on each attempt lets a client keep
// reconnecting to a broker that rejects stale tokens, without the
// orchestrator needing any JWT-specific logic of its own.
func SignedPassword(method jwt.SigningMethod, key interface{}, claims Claims) ConnectOption {
	return func(o *ConnectOptions) error {
		token := jwt.NewWithClaims(method, claims.toStandard())
		signed, err := token.SignedString(key)
		if err != nil {
			return err
		}
		password := []byte(signed)
		o.Password = &password
		return nil
	}
}
