// Package token produces and decodes the rotating attendance payloads shown
// as QR codes on the teacher's display.
//
// A payload names a subject and the moment it was generated. Nothing about
// the displayed token is kept on the server: verification only looks at the
// embedded timestamp, so the generator is safe to call from any request.
package token

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default cadence of a live display.
const (
	RotateEvery = 5 * time.Second
	SessionTTL  = 120 * time.Second
)

// ErrMalformed is returned by Decode when the input is not a payload.
var ErrMalformed = errors.New("token: malformed payload")

// Payload is the content of one displayed token.
type Payload struct {
	SubjectID string
	Timestamp int64 // epoch milliseconds
	Nonce     string
}

// IssuedAt returns the generation time.
func (p Payload) IssuedAt() time.Time { return time.UnixMilli(p.Timestamp) }

// Codec turns payloads into the string carried by the QR code and back.
type Codec interface {
	Encode(p Payload) (string, error)
	Decode(raw string) (Payload, error)
}

// PlainCodec emits {"subjectId": "...", "timestamp": <millis>}. Anyone can
// build a valid plain token, so it only holds up as long as the freshness
// window is short.
type PlainCodec struct{}

type plainWire struct {
	SubjectID *string `json:"subjectId"`
	Timestamp *int64  `json:"timestamp"`
}

func (PlainCodec) Encode(p Payload) (string, error) {
	b, err := json.Marshal(plainWire{SubjectID: &p.SubjectID, Timestamp: &p.Timestamp})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (PlainCodec) Decode(raw string) (Payload, error) {
	var w plainWire
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(raw))))
	if err := dec.Decode(&w); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return Payload{}, fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	if w.SubjectID == nil || *w.SubjectID == "" || w.Timestamp == nil {
		return Payload{}, fmt.Errorf("%w: missing subjectId or timestamp", ErrMalformed)
	}
	return Payload{SubjectID: *w.SubjectID, Timestamp: *w.Timestamp}, nil
}

// SignedCodec wraps the payload in an HS256 JWT with a random nonce, so a
// token can only come from the server. Expiry is still decided by the
// verifier's freshness window, not by the JWT.
type SignedCodec struct {
	key    []byte
	issuer string
}

// NewSignedCodec builds a codec signing with key.
func NewSignedCodec(key, issuer string) (*SignedCodec, error) {
	if len(key) < 16 {
		return nil, errors.New("token: signing key must be at least 16 bytes")
	}
	return &SignedCodec{key: []byte(key), issuer: issuer}, nil
}

type qrClaims struct {
	SubjectID string `json:"sid"`
	Timestamp int64  `json:"ts"`
	jwt.RegisteredClaims
}

func (c *SignedCodec) Encode(p Payload) (string, error) {
	nonce := p.Nonce
	if nonce == "" {
		nonce = uuid.NewString()
	}
	claims := qrClaims{
		SubjectID: p.SubjectID,
		Timestamp: p.Timestamp,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: c.issuer,
			ID:     nonce,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

func (c *SignedCodec) Decode(raw string) (Payload, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	var claims qrClaims
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (interface{}, error) {
		return c.key, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.SubjectID == "" || claims.Timestamp == 0 {
		return Payload{}, fmt.Errorf("%w: missing sid or ts", ErrMalformed)
	}
	return Payload{SubjectID: claims.SubjectID, Timestamp: claims.Timestamp, Nonce: claims.ID}, nil
}

// Generator stamps payloads with the current time.
type Generator struct {
	codec Codec
	now   func() time.Time
}

// NewGenerator returns a generator; now defaults to time.Now.
func NewGenerator(codec Codec, now func() time.Time) *Generator {
	if codec == nil {
		codec = PlainCodec{}
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{codec: codec, now: now}
}

// Generate encodes {subjectID, now}.
func (g *Generator) Generate(subjectID string) (string, error) {
	if subjectID == "" {
		return "", errors.New("token: subject id required")
	}
	return g.codec.Encode(Payload{SubjectID: subjectID, Timestamp: g.now().UnixMilli()})
}
