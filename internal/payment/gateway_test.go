package payment_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datquang03/studio-booking-engine/internal/payment"
)

// sign mirrors the gateway's canonical sort-keys-ascending signing scheme so
// tests can produce a valid signature without a live gateway.
func sign(t *testing.T, checksumKey string, fields map[string]interface{}) string {
	t.Helper()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]interface{}, len(fields))
	for _, k := range keys {
		ordered[k] = fields[k]
	}
	canonical, err := json.Marshal(ordered)
	assert.NoError(t, err)

	mac := hmac.New(sha256.New, []byte(checksumKey))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPayOSGateway_VerifySignature_AcceptsMatchingHMAC(t *testing.T) {
	checksumKey := "test-checksum-key"
	gw := payment.NewPayOSGateway("https://example.test", "client", "key", checksumKey)

	fields := map[string]interface{}{
		"orderCode": float64(12345),
		"amount":    float64(100000),
		"code":      "00",
	}
	body, err := json.Marshal(fields)
	assert.NoError(t, err)

	sig := sign(t, checksumKey, fields)
	assert.True(t, gw.VerifySignature(body, sig))
}

func TestPayOSGateway_VerifySignature_RejectsTamperedBody(t *testing.T) {
	checksumKey := "test-checksum-key"
	gw := payment.NewPayOSGateway("https://example.test", "client", "key", checksumKey)

	fields := map[string]interface{}{
		"orderCode": float64(12345),
		"amount":    float64(100000),
		"code":      "00",
	}
	sig := sign(t, checksumKey, fields)

	tampered, err := json.Marshal(map[string]interface{}{
		"orderCode": float64(12345),
		"amount":    float64(999999),
		"code":      "00",
	})
	assert.NoError(t, err)

	assert.False(t, gw.VerifySignature(tampered, sig))
}

func TestPayOSGateway_VerifySignature_RejectsWrongKey(t *testing.T) {
	gw := payment.NewPayOSGateway("https://example.test", "client", "key", "real-key")

	fields := map[string]interface{}{"orderCode": float64(1), "code": "00"}
	body, err := json.Marshal(fields)
	assert.NoError(t, err)

	sig := sign(t, "wrong-key", fields)
	assert.False(t, gw.VerifySignature(body, sig))
}
