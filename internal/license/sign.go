package license

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the record's authentication tag: SHA-256 over the fixed
// concatenation license_id + company_name + expiration_date + machine_id +
// master secret, truncated to the first 32 hex chars.
//
// This is the secret-suffix construction every key in the field was issued
// with, kept byte-for-byte for compatibility. A future scheme version should
// move to HMAC-SHA256 behind a Version bump.
func (g *Generator) Sign(rec LicenseRecord) string {
	data := rec.LicenseID +
		rec.CompanyName +
		rec.ExpirationDate.Format(timeLayout) +
		rec.MachineID +
		g.masterSecret
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])[:32]
}
