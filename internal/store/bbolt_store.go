package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"narong-license-tool/internal/license"

	"go.etcd.io/bbolt"
)

var errNotFound = errors.New("license not found")

const (
	bucketIssued      = "issued"
	bucketActivations = "activations"
)

type BBoltStore struct {
	db  *bbolt.DB
	gen *license.Generator
}

func OpenBBolt(path string, gen *license.Generator) (*BBoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	st := &BBoltStore{db: db, gen: gen}
	if err := st.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketIssued)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketActivations)); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *BBoltStore) Close() error { return s.db.Close() }

// IssueLicense generates a fresh signed license and persists the issued
// document keyed by license id.
func (s *BBoltStore) IssueLicense(p license.IssueParams) (IssuedLicense, error) {
	issued, err := s.gen.Issue(p)
	if err != nil {
		return IssuedLicense{}, err
	}
	doc := IssuedLicense{
		LicenseID:      issued.Record.LicenseID,
		CompanyName:    issued.Record.CompanyName,
		IssueDate:      issued.Record.IssueDate,
		ExpirationDate: issued.Record.ExpirationDate,
		MaxActivations: issued.Record.MaxActivations,
		Features:       issued.Record.Features,
		Version:        issued.Record.Version,
		MachineID:      issued.Record.MachineID,
		LicenseKey:     issued.LicenseKey,
		ActivationKey:  issued.ActivationKey,
		DaysValid:      issued.DaysValid,
		LicenseType:    issued.LicenseType,
		CreatedAt:      time.Now().UTC(),
	}
	buf, _ := json.Marshal(doc)

	if err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketIssued))
		if b.Get([]byte(doc.LicenseID)) != nil {
			return errors.New("license id collision, try again")
		}
		if err := b.Put([]byte(doc.LicenseID), buf); err != nil {
			return err
		}
		acts := tx.Bucket([]byte(bucketActivations))
		_, err := acts.CreateBucketIfNotExists([]byte(doc.LicenseID))
		return err
	}); err != nil {
		return IssuedLicense{}, err
	}
	return doc, nil
}

func (s *BBoltStore) GetInfo(licenseID string) (LicenseInfo, error) {
	var info LicenseInfo
	if err := s.db.View(func(tx *bbolt.Tx) error {
		doc, err := getIssued(tx, licenseID)
		if err != nil {
			return err
		}
		bindings, err := getBindings(tx, licenseID)
		if err != nil {
			return err
		}
		info = LicenseInfo{License: doc, Used: len(bindings), Bindings: bindings}
		return nil
	}); err != nil {
		return LicenseInfo{}, err
	}
	return info, nil
}

func (s *BBoltStore) ListLicenses() ([]LicenseInfo, error) {
	var out []LicenseInfo
	if err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketIssued))
		return b.ForEach(func(k, v []byte) error {
			var doc IssuedLicense
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			bindings, err := getBindings(tx, string(k))
			if err != nil {
				return err
			}
			out = append(out, LicenseInfo{License: doc, Used: len(bindings), Bindings: nil})
			return nil
		})
	}); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].License.CreatedAt.After(out[j].License.CreatedAt)
	})
	return out, nil
}

// Activate verifies the encoded key, then records the machine binding
// against the issued document's activation limit. Re-binding an already
// bound machine never consumes a slot.
func (s *BBoltStore) Activate(licenseKey string, machineID string) (ActivateResult, error) {
	licenseKey = strings.TrimSpace(licenseKey)
	machineID = strings.TrimSpace(machineID)
	if licenseKey == "" || machineID == "" {
		return ActivateResult{OK: false, Reason: "invalid_request"}, nil
	}
	if len(machineID) > 128 {
		return ActivateResult{OK: false, Reason: "machine_id_too_long"}, nil
	}

	rec, err := s.gen.Verify(licenseKey)
	if err != nil {
		return ActivateResult{OK: false, Reason: verifyReason(err)}, nil
	}
	if rec.MachineID != "" && rec.MachineID != machineID {
		return ActivateResult{OK: false, Reason: "machine_mismatch"}, nil
	}

	var res ActivateResult
	now := time.Now().UTC()
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		doc, err := getIssued(tx, rec.LicenseID)
		if err != nil {
			res = ActivateResult{OK: false, Reason: "not_found"}
			return nil
		}
		actsRoot := tx.Bucket([]byte(bucketActivations))
		acts := actsRoot.Bucket([]byte(doc.LicenseID))
		if acts == nil {
			var err error
			acts, err = actsRoot.CreateBucketIfNotExists([]byte(doc.LicenseID))
			if err != nil {
				return err
			}
		}

		existing := acts.Get([]byte(machineID))
		newBinding := false
		var mb MachineBinding
		if existing != nil {
			_ = json.Unmarshal(existing, &mb)
			mb.LastSeen = now
			mb.SeenCount++
		} else {
			used := countKeys(acts)
			if used >= doc.MaxActivations {
				res = ActivateResult{OK: false, Reason: "limit_reached", Used: used, Limit: doc.MaxActivations}
				return nil
			}
			newBinding = true
			mb = MachineBinding{MachineID: machineID, FirstSeen: now, LastSeen: now, SeenCount: 1}
		}
		buf, _ := json.Marshal(mb)
		if err := acts.Put([]byte(machineID), buf); err != nil {
			return err
		}
		used := countKeys(acts)
		res = ActivateResult{OK: true, Reason: "ok", Used: used, Limit: doc.MaxActivations, NewlyBound: newBinding}
		return nil
	}); err != nil {
		return ActivateResult{}, err
	}
	return res, nil
}

func verifyReason(err error) string {
	var exp *license.ExpiredError
	switch {
	case errors.Is(err, license.ErrMalformedKey):
		return "malformed_key"
	case errors.Is(err, license.ErrSignatureMismatch):
		return "signature_mismatch"
	case errors.As(err, &exp):
		return "expired"
	default:
		return "invalid"
	}
}

func getIssued(tx *bbolt.Tx, licenseID string) (IssuedLicense, error) {
	b := tx.Bucket([]byte(bucketIssued))
	v := b.Get([]byte(licenseID))
	if v == nil {
		return IssuedLicense{}, errNotFound
	}
	var doc IssuedLicense
	if err := json.Unmarshal(v, &doc); err != nil {
		return IssuedLicense{}, err
	}
	return doc, nil
}

func getBindings(tx *bbolt.Tx, licenseID string) ([]MachineBinding, error) {
	actsRoot := tx.Bucket([]byte(bucketActivations))
	acts := actsRoot.Bucket([]byte(licenseID))
	if acts == nil {
		return nil, nil
	}
	bindings := make([]MachineBinding, 0)
	err := acts.ForEach(func(k, v []byte) error {
		var mb MachineBinding
		if err := json.Unmarshal(v, &mb); err != nil {
			return err
		}
		mb.MachineID = string(k)
		bindings = append(bindings, mb)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].LastSeen.After(bindings[j].LastSeen)
	})
	return bindings, nil
}

func countKeys(b *bbolt.Bucket) int {
	// Stats can be stale; iterate for correctness.
	n := 0
	_ = b.ForEach(func(_, _ []byte) error {
		n++
		return nil
	})
	return n
}
