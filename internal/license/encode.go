package license

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// KeyPrefix tags every encoded license key.
const KeyPrefix = "NARONG-"

// Encode serializes a signed record into the public key string:
// NARONG- + the first 16 base64 chars in 4-char groups + the remaining
// base64 tail as one last segment.
func Encode(rec LicenseRecord) (string, error) {
	buf, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	enc := base64.StdEncoding.EncodeToString(buf)

	head := enc
	if len(head) > 16 {
		head = head[:16]
	}
	var parts []string
	for i := 0; i < len(head); i += 4 {
		end := i + 4
		if end > len(head) {
			end = len(head)
		}
		parts = append(parts, head[i:end])
	}
	if len(enc) > 16 {
		parts = append(parts, enc[16:])
	}
	return KeyPrefix + strings.Join(parts, "-"), nil
}

// Decode parses an encoded key back into a record. It checks no signature
// and no expiry; that is Verify's job. Any parse failure wraps
// ErrMalformedKey.
func Decode(key string) (LicenseRecord, error) {
	if !strings.HasPrefix(key, KeyPrefix) {
		return LicenseRecord{}, fmt.Errorf("%w: missing %q prefix", ErrMalformedKey, KeyPrefix)
	}
	enc := strings.ReplaceAll(strings.TrimPrefix(key, KeyPrefix), "-", "")
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return LicenseRecord{}, fmt.Errorf("%w: bad base64: %v", ErrMalformedKey, err)
	}
	if !utf8.Valid(raw) {
		return LicenseRecord{}, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedKey)
	}
	var rec LicenseRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return LicenseRecord{}, fmt.Errorf("%w: bad payload: %v", ErrMalformedKey, err)
	}
	return rec, nil
}
