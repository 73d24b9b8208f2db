package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// Interactions older than this are replays; Discord re-signs on retry.
	maxAgeSeconds = 300

	// Small allowance for clock drift on timestamps from the future.
	maxFutureSkewSeconds = 30
)

// ErrSignatureInvalid covers every way an inbound request can fail
// authentication: missing headers, a stale timestamp, or a signature that
// does not verify. Callers must not process the request any further.
var ErrSignatureInvalid = errors.New("invalid request signature")

// Verifier authenticates Discord interaction requests: Ed25519 over the
// concatenation of the timestamp header and the raw body, hex-encoded
// signature and key.
type Verifier struct {
	key ed25519.PublicKey
	now func() time.Time
}

func NewVerifier(publicKeyHex string) (*Verifier, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode public key hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return &Verifier{key: ed25519.PublicKey(raw), now: time.Now}, nil
}

// Verify returns nil only for an authentic, fresh request. Any failure maps
// to ErrSignatureInvalid; the caller answers 401 and stops.
func (v *Verifier) Verify(signatureHex, timestamp string, body []byte) error {
	if signatureHex == "" || timestamp == "" {
		return ErrSignatureInvalid
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	now := v.now().Unix()
	if ts > now+maxFutureSkewSeconds {
		return ErrSignatureInvalid
	}
	if now-ts > maxAgeSeconds {
		return ErrSignatureInvalid
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrSignatureInvalid
	}

	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)

	if !ed25519.Verify(v.key, msg, sig) {
		return ErrSignatureInvalid
	}
	return nil
}
