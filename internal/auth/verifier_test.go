package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func TestDevTokens(t *testing.T) {
	v := NewVerifier("", "")
	p, err := v.Verify("t1:Admin")
	if err != nil || p.Tenant != "t1" || p.Role != "admin" {
		t.Fatalf("got %+v, %v", p, err)
	}
	if _, err := v.Verify("no-role"); err == nil {
		t.Fatalf("expected error for malformed dev token")
	}
}

func TestHMACRoundTrip(t *testing.T) {
	v := NewVerifier("HMAC", "s3cret")
	tok, err := v.Sign(Principal{Tenant: "t1", Role: "operator"}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	p, err := v.Verify(tok)
	if err != nil || p.Tenant != "t1" || p.Role != "operator" {
		t.Fatalf("got %+v, %v", p, err)
	}

	other := NewVerifier(ModeHMAC, "different")
	if _, err := other.Verify(tok); err == nil {
		t.Fatalf("token signed with another secret accepted")
	}
}

func TestHMACRejects(t *testing.T) {
	v := NewVerifier(ModeHMAC, "s3cret")

	expired := Claims{Tenant: "t1", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString([]byte("s3cret"))
	if _, err := v.Verify(tok); err == nil {
		t.Fatalf("expired token accepted")
	}

	noTenant, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "admin"}).SignedString([]byte("s3cret"))
	if _, err := v.Verify(noTenant); err == nil {
		t.Fatalf("token without tenant accepted")
	}

	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{Tenant: "t1"}).SignedString([]byte("s3cret"))
	if _, err := v.Verify(hs512); err == nil {
		t.Fatalf("HS512 token accepted")
	}

	p, err := v.Verify(mustSign(t, v, Principal{Tenant: "t1"}))
	if err != nil || p.Role != "viewer" {
		t.Fatalf("default role: got %+v, %v", p, err)
	}

	if _, err := NewVerifier("saml", "").Verify("x"); err == nil {
		t.Fatalf("unsupported mode accepted")
	}
}

func mustSign(t *testing.T, v *Verifier, p Principal) string {
	t.Helper()
	tok, err := v.Sign(p, 0)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func jwksServer(t *testing.T, kid string, pub *rsa.PublicKey) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}}})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, c Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestJWKSTokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	srv, hits := jwksServer(t, "k1", &key.PublicKey)
	v := NewVerifier("JWKS", "")
	v.JWKSURL = srv.URL

	p, err := v.Verify(signRS256(t, key, "k1", Claims{Tenant: "t1", Role: "Operator"}))
	if err != nil || p.Tenant != "t1" || p.Role != "operator" {
		t.Fatalf("got %+v, %v", p, err)
	}
	if _, err := v.Verify(signRS256(t, key, "k1", Claims{Tenant: "t2"})); err != nil {
		t.Fatalf("second token: %v", err)
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Fatalf("key set fetched %d times, want 1", n)
	}

	if _, err := v.Verify(signRS256(t, key, "other", Claims{Tenant: "t1"})); err == nil {
		t.Fatalf("unknown kid accepted")
	}

	stranger, _ := rsa.GenerateKey(rand.Reader, 2048)
	if _, err := v.Verify(signRS256(t, stranger, "k1", Claims{Tenant: "t1"})); err == nil {
		t.Fatalf("token from another key accepted")
	}

	// an HS256 token must not be checked against anything in jwks mode
	hs, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Tenant: "t1"}).SignedString([]byte("k1"))
	if _, err := v.Verify(hs); err == nil {
		t.Fatalf("HS256 token accepted in jwks mode")
	}
}

func TestJWKSRefreshAndErrors(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv, hits := jwksServer(t, "k1", &key.PublicKey)
	v := NewVerifier(ModeJWKS, "")
	v.JWKSURL = srv.URL
	v.CacheTTL = time.Nanosecond

	tok := signRS256(t, key, "k1", Claims{Tenant: "t1"})
	for i := 0; i < 2; i++ {
		time.Sleep(time.Millisecond)
		if _, err := v.Verify(tok); err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(hits); n != 2 {
		t.Fatalf("stale cache should refetch: %d fetches", n)
	}

	if _, err := NewVerifier(ModeJWKS, "").Verify(tok); err == nil {
		t.Fatalf("verified without a JWKS URL")
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer down.Close()
	bad := NewVerifier(ModeJWKS, "")
	bad.JWKSURL = down.URL
	if _, err := bad.Verify(tok); err == nil {
		t.Fatalf("verified against a failing key endpoint")
	}
}
