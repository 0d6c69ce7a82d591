package mqtt

import (
	"testing"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
)

func TestSignedPasswordProducesAVerifiableToken(t *testing.T) {
	key := []byte("test-secret")
	claims := Claims{Audience: "my-broker", IssuedAt: time.Now(), Expiry: time.Now().Add(time.Hour)}

	opt := SignedPassword(jwt.SigningMethodHS256, key, claims)
	opts := DefaultConnectOptions()
	if err := opt(&opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Password == nil {
		t.Fatal("expected SignedPassword to set a password")
	}

	parsed, err := jwt.ParseWithClaims(string(*opts.Password), &jwt.StandardClaims{}, func(tok *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		t.Fatalf("expected the produced token to be parseable: %v", err)
	}
	parsedClaims := parsed.Claims.(*jwt.StandardClaims)
	if parsedClaims.Audience != "my-broker" {
		t.Fatalf("expected audience %q, got %q", "my-broker", parsedClaims.Audience)
	}
}
