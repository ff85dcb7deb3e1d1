// Package license implements the NARONG credential scheme: a signed,
// base64-encoded license record distributed as one dash-formatted string,
// plus a compact machine-bound activation key with its own secret.
package license

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// SchemeVersion is carried opaquely through signing and encoding; it is
// never interpreted.
const SchemeVersion = "8.6"

// DefaultLicenseType is used when the caller does not name one.
const DefaultLicenseType = "PROFESSIONAL"

const (
	defaultMasterSecret   = "NARONG_CCTV_2025_MASTER_KEY_v8.7_SECURE"
	defaultActivationSalt = "NarongCCTV_SkyTech_2025_SecureKey"

	// Wire dates are second precision, no timezone.
	timeLayout = "2006-01-02T15:04:05"
	dateLayout = "2006-01-02"
)

// LicenseRecord is one issued license. Records are built once and immutable
// after signing; Signature is derived from the other fields and must never
// be set by the caller.
type LicenseRecord struct {
	LicenseID      string
	CompanyName    string
	IssueDate      time.Time
	ExpirationDate time.Time
	MaxActivations int
	Features       []string
	Version        string
	MachineID      string // empty means unbound
	Signature      string
}

// wireRecord fixes the JSON key order; previously issued keys depend on it.
type wireRecord struct {
	LicenseID      string   `json:"license_id"`
	CompanyName    string   `json:"company_name"`
	IssueDate      string   `json:"issue_date"`
	ExpirationDate string   `json:"expiration_date"`
	MaxActivations int      `json:"max_activations"`
	Features       []string `json:"features"`
	Version        string   `json:"version"`
	MachineID      string   `json:"machine_id"`
	Signature      string   `json:"signature"`
}

func (r LicenseRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecord{
		LicenseID:      r.LicenseID,
		CompanyName:    r.CompanyName,
		IssueDate:      r.IssueDate.Format(timeLayout),
		ExpirationDate: r.ExpirationDate.Format(timeLayout),
		MaxActivations: r.MaxActivations,
		Features:       r.Features,
		Version:        r.Version,
		MachineID:      r.MachineID,
		Signature:      r.Signature,
	})
}

func (r *LicenseRecord) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	issued, err := time.Parse(timeLayout, w.IssueDate)
	if err != nil {
		return fmt.Errorf("issue_date: %w", err)
	}
	expires, err := time.Parse(timeLayout, w.ExpirationDate)
	if err != nil {
		return fmt.Errorf("expiration_date: %w", err)
	}
	*r = LicenseRecord{
		LicenseID:      w.LicenseID,
		CompanyName:    w.CompanyName,
		IssueDate:      issued,
		ExpirationDate: expires,
		MaxActivations: w.MaxActivations,
		Features:       w.Features,
		Version:        w.Version,
		MachineID:      w.MachineID,
		Signature:      w.Signature,
	}
	return nil
}

// Config holds the two independent signing secrets plus the clock and
// random source. Zero values fall back to the built-in constants,
// time.Now (UTC) and crypto/rand.
type Config struct {
	MasterSecret   string
	ActivationSalt string
	Now            func() time.Time
	Rand           io.Reader
}

// Generator issues and verifies credentials. Safe for concurrent use; all
// state is read-only after construction.
type Generator struct {
	masterSecret   string
	activationSalt string
	now            func() time.Time
	rand           io.Reader
}

func NewGenerator(cfg Config) *Generator {
	g := &Generator{
		masterSecret:   cfg.MasterSecret,
		activationSalt: cfg.ActivationSalt,
		now:            cfg.Now,
		rand:           cfg.Rand,
	}
	if g.masterSecret == "" {
		g.masterSecret = defaultMasterSecret
	}
	if g.activationSalt == "" {
		g.activationSalt = defaultActivationSalt
	}
	if g.now == nil {
		g.now = func() time.Time { return time.Now().UTC() }
	}
	if g.rand == nil {
		g.rand = rand.Reader
	}
	return g
}

// IssueParams are the caller-supplied license parameters.
type IssueParams struct {
	CompanyName    string
	ExpirationDays int
	MaxActivations int
	Features       []string // nil/empty defaults to ["full_access"]
	MachineID      string   // optional; binds an activation key
	LicenseType    string   // optional; defaults to DefaultLicenseType
}

// NewRecord assembles and signs a LicenseRecord. The license id is 16 hex
// chars (uppercase) drawn fresh from the random source on every call.
func (g *Generator) NewRecord(p IssueParams) (LicenseRecord, error) {
	if strings.TrimSpace(p.CompanyName) == "" {
		return LicenseRecord{}, fmt.Errorf("%w: company name is required", ErrInvalidInput)
	}
	if p.ExpirationDays < 1 {
		return LicenseRecord{}, fmt.Errorf("%w: expiration days must be >= 1", ErrInvalidInput)
	}
	if p.MaxActivations < 1 {
		return LicenseRecord{}, fmt.Errorf("%w: max activations must be >= 1", ErrInvalidInput)
	}

	id, err := g.newLicenseID()
	if err != nil {
		return LicenseRecord{}, err
	}

	features := p.Features
	if len(features) == 0 {
		features = []string{"full_access"}
	}

	now := g.now().Truncate(time.Second)
	rec := LicenseRecord{
		LicenseID:      id,
		CompanyName:    p.CompanyName,
		IssueDate:      now,
		ExpirationDate: now.AddDate(0, 0, p.ExpirationDays),
		MaxActivations: p.MaxActivations,
		Features:       features,
		Version:        SchemeVersion,
		MachineID:      p.MachineID,
	}
	rec.Signature = g.Sign(rec)
	return rec, nil
}

func (g *Generator) newLicenseID() (string, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(g.rand, b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// Issued is everything the tool reports for one generated license: the
// encoded key, the machine-bound activation key when one applies, and the
// record itself.
type Issued struct {
	Record        LicenseRecord
	LicenseKey    string
	ActivationKey string // empty when the record is unbound
	DaysValid     int
	LicenseType   string
}

// Issue builds, signs and encodes a record, deriving the activation key
// when a machine id was supplied.
func (g *Generator) Issue(p IssueParams) (Issued, error) {
	if p.LicenseType == "" {
		p.LicenseType = DefaultLicenseType
	}
	rec, err := g.NewRecord(p)
	if err != nil {
		return Issued{}, err
	}
	key, err := Encode(rec)
	if err != nil {
		return Issued{}, err
	}
	out := Issued{
		Record:      rec,
		LicenseKey:  key,
		DaysValid:   p.ExpirationDays,
		LicenseType: p.LicenseType,
	}
	if rec.MachineID != "" {
		out.ActivationKey, err = g.NewActivationKey(rec.MachineID, rec.ExpirationDate, p.LicenseType)
		if err != nil {
			return Issued{}, err
		}
	}
	return out, nil
}
