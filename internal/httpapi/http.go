package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"narong-license-tool/internal/license"
	"narong-license-tool/internal/store"
)

type API struct {
	st  store.Store
	gen *license.Generator
}

func New(st store.Store, gen *license.Generator) *API {
	return &API{st: st, gen: gen}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/issue", a.handleIssue)
	mux.HandleFunc("/v1/verify", a.handleVerify)
	mux.HandleFunc("/v1/activate", a.handleActivate)
	return mux
}

type issueReq struct {
	CompanyName    string   `json:"company_name"`
	ExpirationDays int      `json:"expiration_days"`
	MaxActivations int      `json:"max_activations"`
	Features       []string `json:"features"`
	MachineID      string   `json:"machine_id"`
	LicenseType    string   `json:"license_type"`
}

type errorResp struct {
	Error string `json:"error"`
}

func (a *API) handleIssue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req issueReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "bad_json"})
		return
	}
	doc, err := a.st.IssueLicense(license.IssueParams{
		CompanyName:    req.CompanyName,
		ExpirationDays: req.ExpirationDays,
		MaxActivations: req.MaxActivations,
		Features:       req.Features,
		MachineID:      req.MachineID,
		LicenseType:    req.LicenseType,
	})
	if err != nil {
		if errors.Is(err, license.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "server_error"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type verifyReq struct {
	LicenseKey string `json:"license_key"`
}

type verifyResp struct {
	Valid     bool                   `json:"valid"`
	Reason    string                 `json:"reason,omitempty"`
	Record    *license.LicenseRecord `json:"record,omitempty"`
	ExpiredOn string                 `json:"expired_on,omitempty"`
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req verifyReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "bad_json"})
		return
	}
	rec, err := a.gen.Verify(req.LicenseKey)
	if err != nil {
		resp := verifyResp{Valid: false}
		var exp *license.ExpiredError
		switch {
		case errors.Is(err, license.ErrMalformedKey):
			resp.Reason = "malformed_key"
		case errors.Is(err, license.ErrSignatureMismatch):
			resp.Reason = "signature_mismatch"
		case errors.As(err, &exp):
			resp.Reason = "expired"
			resp.ExpiredOn = exp.ExpiredAt.Format(time.DateOnly)
		default:
			resp.Reason = "invalid"
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusOK, verifyResp{Valid: true, Record: &rec})
}

type activateReq struct {
	LicenseKey string `json:"license_key"`
	MachineID  string `json:"machine_id"`
}

func (a *API) handleActivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req activateReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, store.ActivateResult{OK: false, Reason: "bad_json"})
		return
	}
	res, err := a.st.Activate(req.LicenseKey, req.MachineID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, store.ActivateResult{OK: false, Reason: "server_error"})
		return
	}
	status := http.StatusOK
	if !res.OK {
		status = http.StatusForbidden
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
