package license

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivationKeyFormat(t *testing.T) {
	g := NewGenerator(Config{Now: fixedClock(testNow)})
	expiry := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	key, err := g.NewActivationKey("ABCD1234EFGH5678", expiry, "PROFESSIONAL")
	require.NoError(t, err)
	assert.Regexp(t, `^ABCD1234EFGH5678-20251231-PRO-[0-9A-F]{8}$`, key)

	again, err := g.NewActivationKey("ABCD1234EFGH5678", expiry, "PROFESSIONAL")
	require.NoError(t, err)
	assert.Equal(t, key, again)
}

func TestActivationKeyEmptyMachineID(t *testing.T) {
	g := testGenerator()
	_, err := g.NewActivationKey("", time.Now(), "PROFESSIONAL")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTypeCode(t *testing.T) {
	assert.Equal(t, "PRO", typeCode("PROFESSIONAL"))
	assert.Equal(t, "TRI", typeCode("trial"))
	assert.Equal(t, "GO", typeCode("go"))
	assert.Equal(t, "", typeCode(""))
}

func TestVerifyActivationKey(t *testing.T) {
	g := NewGenerator(Config{Now: fixedClock(testNow)})
	expiry := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	key, err := g.NewActivationKey("ABCD1234EFGH5678", expiry, "PROFESSIONAL")
	require.NoError(t, err)

	ak, err := g.VerifyActivationKey(key)
	require.NoError(t, err)
	assert.Equal(t, "ABCD1234EFGH5678", ak.MachineID)
	assert.Equal(t, "PRO", ak.TypeCode)
	assert.True(t, ak.ExpiryDate.Equal(expiry))
}

func TestVerifyActivationKeyTampered(t *testing.T) {
	g := NewGenerator(Config{Now: fixedClock(testNow)})
	expiry := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	key, err := g.NewActivationKey("ABCD1234EFGH5678", expiry, "PROFESSIONAL")
	require.NoError(t, err)

	tampered := key[:len(key)-8] + flipHex(key[len(key)-8:])
	_, err = g.VerifyActivationKey(tampered)
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	// A different machine id with the original tag must fail too.
	_, err = g.VerifyActivationKey("ZZZZ1234EFGH5678" + key[16:])
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifyActivationKeyDifferentSalt(t *testing.T) {
	expiry := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	a := NewGenerator(Config{ActivationSalt: "salt-a", Now: fixedClock(testNow)})
	b := NewGenerator(Config{ActivationSalt: "salt-b", Now: fixedClock(testNow)})

	key, err := a.NewActivationKey("ABCD1234EFGH5678", expiry, "PROFESSIONAL")
	require.NoError(t, err)
	_, err = b.VerifyActivationKey(key)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifyActivationKeyExpiry(t *testing.T) {
	expiry := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	issuer := NewGenerator(Config{Now: fixedClock(testNow)})
	key, err := issuer.NewActivationKey("ABCD1234EFGH5678", expiry, "PROFESSIONAL")
	require.NoError(t, err)

	// Valid through the whole expiry day.
	endOfDay := NewGenerator(Config{Now: fixedClock(time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC))})
	_, err = endOfDay.VerifyActivationKey(key)
	assert.NoError(t, err)

	nextDay := NewGenerator(Config{Now: fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))})
	_, err = nextDay.VerifyActivationKey(key)
	var exp *ExpiredError
	require.ErrorAs(t, err, &exp)
	assert.True(t, exp.ExpiredAt.Equal(expiry))
}

func TestParseActivationKeyMachineIDWithDashes(t *testing.T) {
	g := NewGenerator(Config{Now: fixedClock(testNow)})
	expiry := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	key, err := g.NewActivationKey("AB-CD-EF-GH", expiry, "TRIAL")
	require.NoError(t, err)

	ak, err := ParseActivationKey(key)
	require.NoError(t, err)
	assert.Equal(t, "AB-CD-EF-GH", ak.MachineID)

	_, err = g.VerifyActivationKey(key)
	assert.NoError(t, err)
}

func TestParseActivationKeyMalformed(t *testing.T) {
	cases := []string{
		"",
		"garbage",
		"ABCD1234EFGH5678-20251231-PRO", // missing tag
		"-20251231-PRO-AAAAAAAA",        // empty machine id
		"ABCD1234EFGH5678-notadate-PRO-AAAAAAAA",
		"ABCD1234EFGH5678-20251231-PRO-AAA", // short tag
	}
	for _, key := range cases {
		_, err := ParseActivationKey(key)
		assert.ErrorIs(t, err, ErrMalformedKey, "key %q", key)
	}
}

func TestActivationAndRecordSchemesAreIndependent(t *testing.T) {
	g := testGenerator()
	out, err := g.Issue(IssueParams{
		CompanyName:    "Acme",
		ExpirationDays: 30,
		MaxActivations: 1,
		MachineID:      "ABCD1234EFGH5678",
	})
	require.NoError(t, err)

	// The activation tag is not a prefix of the record signature; the two
	// formats share no secret.
	tag := out.ActivationKey[len(out.ActivationKey)-8:]
	assert.NotEqual(t, strings.ToUpper(out.Record.Signature[:8]), tag)
}
