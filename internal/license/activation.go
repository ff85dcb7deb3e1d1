package license

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const activationDateLayout = "20060102"

// ActivationKey is the compact machine-bound credential. It is signed with
// the activation salt, not the master secret; the two schemes share nothing
// but structure.
type ActivationKey struct {
	MachineID  string
	ExpiryDate time.Time // date granularity
	TypeCode   string
	Signature  string // 8 hex chars, uppercase
}

// String renders the wire form MACHINEID-YYYYMMDD-TYP-XXXXXXXX.
func (k ActivationKey) String() string {
	return fmt.Sprintf("%s-%s-%s-%s",
		k.MachineID, k.ExpiryDate.Format(activationDateLayout), k.TypeCode, k.Signature)
}

// NewActivationKey derives the machine-bound key. The 32-bit tag only
// deters casual tampering; the format trades collision margin for a string
// short enough to read aloud. Machine id length policy (16 chars) is the
// caller's to enforce.
func (g *Generator) NewActivationKey(machineID string, expiry time.Time, licenseType string) (string, error) {
	if machineID == "" {
		return "", fmt.Errorf("%w: machine id is required", ErrInvalidInput)
	}
	code := typeCode(licenseType)
	key := ActivationKey{
		MachineID:  machineID,
		ExpiryDate: expiry,
		TypeCode:   code,
		Signature:  g.activationTag(machineID, expiry, code),
	}
	return key.String(), nil
}

// typeCode abbreviates a free-form license-type label: first three chars,
// uppercased.
func typeCode(licenseType string) string {
	if len(licenseType) > 3 {
		licenseType = licenseType[:3]
	}
	return strings.ToUpper(licenseType)
}

func (g *Generator) activationTag(machineID string, expiry time.Time, code string) string {
	data := machineID + "|" + expiry.Format(dateLayout) + "|" + code
	sum := sha256.Sum256([]byte(data + g.activationSalt))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:8])
}

// ParseActivationKey splits the dash-delimited wire form. Machine ids may
// themselves contain dashes, so the last three segments are taken as date,
// type code and tag and the rest rejoined as the machine id.
func ParseActivationKey(key string) (ActivationKey, error) {
	parts := strings.Split(key, "-")
	if len(parts) < 4 {
		return ActivationKey{}, fmt.Errorf("%w: want MACHINEID-YYYYMMDD-TYP-XXXXXXXX", ErrMalformedKey)
	}
	n := len(parts)
	machineID := strings.Join(parts[:n-3], "-")
	if machineID == "" {
		return ActivationKey{}, fmt.Errorf("%w: empty machine id", ErrMalformedKey)
	}
	expiry, err := time.Parse(activationDateLayout, parts[n-3])
	if err != nil {
		return ActivationKey{}, fmt.Errorf("%w: bad expiry date: %v", ErrMalformedKey, err)
	}
	if len(parts[n-1]) != 8 {
		return ActivationKey{}, fmt.Errorf("%w: tag must be 8 hex chars", ErrMalformedKey)
	}
	return ActivationKey{
		MachineID:  machineID,
		ExpiryDate: expiry,
		TypeCode:   parts[n-2],
		Signature:  parts[n-1],
	}, nil
}

// VerifyActivationKey parses the key, recomputes the tag and checks expiry.
// The key stays valid through the end of its expiry date.
func (g *Generator) VerifyActivationKey(key string) (ActivationKey, error) {
	ak, err := ParseActivationKey(key)
	if err != nil {
		return ActivationKey{}, err
	}
	expected := g.activationTag(ak.MachineID, ak.ExpiryDate, ak.TypeCode)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(ak.Signature)) != 1 {
		return ActivationKey{}, ErrSignatureMismatch
	}
	if !g.now().Before(ak.ExpiryDate.AddDate(0, 0, 1)) {
		return ActivationKey{}, &ExpiredError{ExpiredAt: ak.ExpiryDate}
	}
	return ak, nil
}
