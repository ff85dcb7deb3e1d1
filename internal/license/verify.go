package license

import "crypto/subtle"

// Verify decodes an encoded license key, recomputes the signature over the
// decoded fields and checks expiry against the generator's clock. On
// success it returns the decoded record; failures are ErrMalformedKey,
// ErrSignatureMismatch or *ExpiredError.
func (g *Generator) Verify(key string) (LicenseRecord, error) {
	rec, err := Decode(key)
	if err != nil {
		return LicenseRecord{}, err
	}
	expected := g.Sign(rec)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(rec.Signature)) != 1 {
		return LicenseRecord{}, ErrSignatureMismatch
	}
	if g.now().After(rec.ExpirationDate) {
		return LicenseRecord{}, &ExpiredError{ExpiredAt: rec.ExpirationDate}
	}
	return rec, nil
}
