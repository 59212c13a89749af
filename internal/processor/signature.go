package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header the processor signs deliveries with.
const SignatureHeader = "Processor-Signature"

// ErrInvalidSignature covers missing, malformed, stale and forged
// signatures alike; callers must not distinguish them to the sender.
var ErrInvalidSignature = errors.New("invalid webhook signature")

const signatureTolerance = 5 * time.Minute

// VerifySignature checks a `t=<unix>,v1=<hex>` header against the raw
// request body. The signed payload is "<t>.<body>" under HMAC-SHA256
// with the endpoint secret. Must run before the body is parsed.
func VerifySignature(payload []byte, header, secret string, now time.Time) error {
	if header == "" || secret == "" {
		return ErrInvalidSignature
	}
	var ts int64
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			n, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			ts = n
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrInvalidSignature
	}
	sent := time.Unix(ts, 0)
	if sent.Before(now.Add(-signatureTolerance)) || sent.After(now.Add(signatureTolerance)) {
		return ErrInvalidSignature
	}
	expected := Sign(payload, secret, ts)
	for _, s := range sigs {
		if hmac.Equal([]byte(s), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign computes the v1 signature for a payload at a given timestamp.
// Exported for tests and for local tooling that replays events.
func Sign(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureFor builds a complete header value, the counterpart of
// VerifySignature.
func SignatureFor(payload []byte, secret string, now time.Time) string {
	ts := now.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, Sign(payload, secret, ts))
}
