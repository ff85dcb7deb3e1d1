package license

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zeroReader pins license id generation for golden tests.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testGenerator() *Generator {
	return NewGenerator(Config{Now: fixedClock(testNow), Rand: zeroReader{}})
}

func TestNewRecordDefaults(t *testing.T) {
	g := testGenerator()
	rec, err := g.NewRecord(IssueParams{
		CompanyName:    "Acme Corp",
		ExpirationDays: 365,
		MaxActivations: 1,
	})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{16}$`), rec.LicenseID)
	assert.Equal(t, []string{"full_access"}, rec.Features)
	assert.Equal(t, "", rec.MachineID)
	assert.Equal(t, SchemeVersion, rec.Version)
	assert.Equal(t, testNow, rec.IssueDate)
	assert.Equal(t, testNow.AddDate(0, 0, 365), rec.ExpirationDate)
	assert.Len(t, rec.Signature, 32)
	assert.True(t, rec.ExpirationDate.After(rec.IssueDate))
}

func TestNewRecordFreshIDs(t *testing.T) {
	g := NewGenerator(Config{})
	a, err := g.NewRecord(IssueParams{CompanyName: "X", ExpirationDays: 1, MaxActivations: 1})
	require.NoError(t, err)
	b, err := g.NewRecord(IssueParams{CompanyName: "X", ExpirationDays: 1, MaxActivations: 1})
	require.NoError(t, err)
	assert.NotEqual(t, a.LicenseID, b.LicenseID)
}

func TestNewRecordInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		p    IssueParams
	}{
		{"empty company", IssueParams{CompanyName: "", ExpirationDays: 30, MaxActivations: 1}},
		{"blank company", IssueParams{CompanyName: "   ", ExpirationDays: 30, MaxActivations: 1}},
		{"zero days", IssueParams{CompanyName: "Acme", ExpirationDays: 0, MaxActivations: 1}},
		{"negative days", IssueParams{CompanyName: "Acme", ExpirationDays: -5, MaxActivations: 1}},
		{"zero activations", IssueParams{CompanyName: "Acme", ExpirationDays: 30, MaxActivations: 0}},
	}
	g := testGenerator()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.NewRecord(tc.p)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestSignDeterministic(t *testing.T) {
	g := testGenerator()
	rec, err := g.NewRecord(IssueParams{CompanyName: "Acme Corp", ExpirationDays: 30, MaxActivations: 1})
	require.NoError(t, err)

	assert.Equal(t, g.Sign(rec), g.Sign(rec))

	mutations := map[string]func(r LicenseRecord) LicenseRecord{
		"company":    func(r LicenseRecord) LicenseRecord { r.CompanyName = "Acme Corq"; return r },
		"license id": func(r LicenseRecord) LicenseRecord { r.LicenseID = "FFFFFFFFFFFFFFFF"; return r },
		"expiration": func(r LicenseRecord) LicenseRecord { r.ExpirationDate = r.ExpirationDate.Add(time.Second); return r },
		"machine id": func(r LicenseRecord) LicenseRecord { r.MachineID = "ABCD1234EFGH5678"; return r },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			assert.NotEqual(t, g.Sign(rec), g.Sign(mutate(rec)))
		})
	}
}

func TestSignUsesMasterSecret(t *testing.T) {
	a := NewGenerator(Config{MasterSecret: "secret-a", Now: fixedClock(testNow), Rand: zeroReader{}})
	b := NewGenerator(Config{MasterSecret: "secret-b", Now: fixedClock(testNow), Rand: zeroReader{}})
	rec, err := a.NewRecord(IssueParams{CompanyName: "Acme", ExpirationDays: 30, MaxActivations: 1})
	require.NoError(t, err)
	assert.NotEqual(t, a.Sign(rec), b.Sign(rec))
}

func TestRecordJSONKeyOrder(t *testing.T) {
	g := testGenerator()
	rec, err := g.NewRecord(IssueParams{CompanyName: "Acme", ExpirationDays: 30, MaxActivations: 1})
	require.NoError(t, err)
	buf, err := json.Marshal(rec)
	require.NoError(t, err)

	// Previously issued keys depend on this exact order.
	order := []string{
		`"license_id"`, `"company_name"`, `"issue_date"`, `"expiration_date"`,
		`"max_activations"`, `"features"`, `"version"`, `"machine_id"`, `"signature"`,
	}
	s := string(buf)
	last := -1
	for _, k := range order {
		idx := strings.Index(s, k)
		require.GreaterOrEqual(t, idx, 0, "missing key %s", k)
		assert.Greater(t, idx, last, "key %s out of order", k)
		last = idx
	}
	assert.NotContains(t, s, " ", "wire JSON must be compact")
}

func TestIssueWithMachineID(t *testing.T) {
	g := testGenerator()
	out, err := g.Issue(IssueParams{
		CompanyName:    "Acme Corp",
		ExpirationDays: 90,
		MaxActivations: 2,
		MachineID:      "ABCD1234EFGH5678",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.LicenseKey, KeyPrefix))
	assert.Equal(t, DefaultLicenseType, out.LicenseType)
	assert.Equal(t, 90, out.DaysValid)
	assert.True(t, strings.HasPrefix(out.ActivationKey, "ABCD1234EFGH5678-"))
}

func TestIssueUnboundHasNoActivationKey(t *testing.T) {
	g := testGenerator()
	out, err := g.Issue(IssueParams{CompanyName: "Acme", ExpirationDays: 30, MaxActivations: 1})
	require.NoError(t, err)
	assert.Empty(t, out.ActivationKey)
}
