package store

import (
	"time"

	"narong-license-tool/internal/license"
)

// IssuedLicense is the persisted document for one issued license: the
// record fields plus the encoded key, the derived activation key, and the
// issue-time parameters the operator asked for.
type IssuedLicense struct {
	LicenseID      string    `json:"license_id"`
	CompanyName    string    `json:"company_name"`
	IssueDate      time.Time `json:"issue_date"`
	ExpirationDate time.Time `json:"expiration_date"`
	MaxActivations int       `json:"max_activations"`
	Features       []string  `json:"features"`
	Version        string    `json:"version"`
	MachineID      string    `json:"machine_id"`
	LicenseKey     string    `json:"license_key"`
	ActivationKey  string    `json:"activation_key,omitempty"`
	DaysValid      int       `json:"days_valid"`
	LicenseType    string    `json:"license_type"`
	CreatedAt      time.Time `json:"created_at"`
}

type MachineBinding struct {
	MachineID string    `json:"machine_id"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	SeenCount int       `json:"seen_count"`
}

type LicenseInfo struct {
	License  IssuedLicense    `json:"license"`
	Used     int              `json:"used"`
	Bindings []MachineBinding `json:"bindings"`
}

type ActivateResult struct {
	OK         bool   `json:"ok"`
	Reason     string `json:"reason"`
	Used       int    `json:"used"`
	Limit      int    `json:"limit"`
	NewlyBound bool   `json:"newly_bound"`
}

type Store interface {
	Close() error

	IssueLicense(p license.IssueParams) (IssuedLicense, error)
	GetInfo(licenseID string) (LicenseInfo, error)
	ListLicenses() ([]LicenseInfo, error)

	Activate(licenseKey string, machineID string) (ActivateResult, error)
}
