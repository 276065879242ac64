// Package auth verifies bearer tokens and extracts tenant/role claims.
package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Modes: dev accepts "tenant:role" tokens unverified, hmac checks HS256 JWTs,
// jwks checks RS256 JWTs against the keys published at JWKSURL.
const (
	ModeDev  = "dev"
	ModeHMAC = "hmac"
	ModeJWKS = "jwks"
)

const defaultJWKSCacheTTL = 10 * time.Minute

// Verifier validates bearer tokens.
type Verifier struct {
	Mode       string
	HMACSecret []byte
	JWKSURL    string
	// HTTP fetches the key set; nil uses a client with a 5s timeout.
	HTTP *http.Client
	// CacheTTL bounds how long fetched keys are trusted; zero means 10 minutes.
	CacheTTL time.Duration

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time
}

type Principal struct {
	Tenant string
	Role   string
}

// Claims is the token payload: the registered claims plus tenant and role.
type Claims struct {
	Tenant string `json:"tenant"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func NewVerifier(mode, secret string) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = ModeDev
	}
	return &Verifier{Mode: mode, HMACSecret: []byte(secret)}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case ModeDev:
		// token format: tenant:role
		parts := strings.Split(token, ":")
		if len(parts) >= 2 && parts[0] != "" {
			return Principal{Tenant: parts[0], Role: strings.ToLower(parts[1])}, nil
		}
		return Principal{}, errors.New("invalid dev token; expected tenant:role")
	case ModeHMAC:
		if len(v.HMACSecret) == 0 {
			return Principal{}, errors.New("AUTH_HMAC_SECRET not set")
		}
		return parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return v.HMACSecret, nil
		}, jwt.SigningMethodHS256.Alg())
	case ModeJWKS:
		return parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			kid, _ := t.Header["kid"].(string)
			return v.publicKey(kid)
		}, jwt.SigningMethodRS256.Alg())
	default:
		return Principal{}, fmt.Errorf("unsupported auth mode %q", v.Mode)
	}
}

func parse(token string, key jwt.Keyfunc, alg string) (Principal, error) {
	var c Claims
	if _, err := jwt.ParseWithClaims(token, &c, key, jwt.WithValidMethods([]string{alg})); err != nil {
		return Principal{}, err
	}
	if c.Tenant == "" {
		return Principal{}, errors.New("missing tenant claim")
	}
	role := strings.ToLower(c.Role)
	if role == "" {
		role = "viewer"
	}
	return Principal{Tenant: c.Tenant, Role: role}, nil
}

// publicKey returns the RSA key for kid, refetching the key set when the
// cache is empty or older than CacheTTL.
func (v *Verifier) publicKey(kid string) (*rsa.PublicKey, error) {
	ttl := v.CacheTTL
	if ttl <= 0 {
		ttl = defaultJWKSCacheTTL
	}
	v.mu.RLock()
	key, ok := v.keys[kid]
	stale := v.keys == nil || time.Since(v.lastFetch) > ttl
	v.mu.RUnlock()
	if ok && !stale {
		return key, nil
	}
	if stale {
		if err := v.fetchJWKS(); err != nil {
			return nil, err
		}
		v.mu.RLock()
		key, ok = v.keys[kid]
		v.mu.RUnlock()
		if ok {
			return key, nil
		}
	}
	return nil, fmt.Errorf("kid %q not found in JWKS", kid)
}

func (v *Verifier) fetchJWKS() error {
	if v.JWKSURL == "" {
		return errors.New("AUTH_JWKS_URL not set")
	}
	client := v.HTTP
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Get(v.JWKSURL)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch JWKS: %s", resp.Status)
	}
	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode JWKS: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		pub, err := k.rsa()
		if err != nil {
			return fmt.Errorf("JWKS key %q: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	v.mu.Lock()
	v.keys = keys
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}

func (k jwk) rsa() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 {
		return nil, errors.New("bad exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

// Sign issues an HS256 token for p valid for ttl; a zero ttl never expires.
func (v *Verifier) Sign(p Principal, ttl time.Duration) (string, error) {
	if len(v.HMACSecret) == 0 {
		return "", errors.New("no signing secret")
	}
	now := time.Now()
	c := Claims{Tenant: p.Tenant, Role: p.Role, RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now)}}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.HMACSecret)
}
