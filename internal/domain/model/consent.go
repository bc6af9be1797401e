package model

import (
	"strings"
	"time"
)

// Provider is the only lending partner the platform is queried for.
const Provider = "QI"

// ConsentTerm is the provider-issued consent ("termo") identifier. It is the
// correlation key for polling and simulation.
type ConsentTerm struct {
	ID string
}

// ConsultRequest is the consent term creation payload built from an Identity.
type ConsultRequest struct {
	DocumentNumber string
	Gender         string
	BirthDate      string
	SignerName     string
	SignerEmail    string
	SignerPhone    Phone
	Provider       string
}

// NewConsultRequest maps an Identity onto the consent payload. The mapping is
// deterministic: equal identities produce equal requests.
func NewConsultRequest(id Identity) ConsultRequest {
	return ConsultRequest{
		DocumentNumber: id.CPF,
		Gender:         id.Gender,
		BirthDate:      id.BirthDate,
		SignerName:     id.Name,
		SignerEmail:    id.Email,
		SignerPhone:    id.Phone,
		Provider:       Provider,
	}
}

// MarginStatus is the provider-defined consult status vocabulary.
type MarginStatus string

const (
	MarginStatusSuccess         MarginStatus = "SUCCESS"
	MarginStatusConsentApproved MarginStatus = "CONSENT_APPROVED"
	MarginStatusRejected        MarginStatus = "REJECTED"
	MarginStatusFailed          MarginStatus = "FAILED"
)

// IsReady reports whether the status belongs to the ready set.
func (s MarginStatus) IsReady() bool {
	switch MarginStatus(strings.ToUpper(string(s))) {
	case MarginStatusSuccess, MarginStatusConsentApproved:
		return true
	default:
		return false
	}
}

// IsTerminalFailure reports whether the status belongs to the rejected set.
func (s MarginStatus) IsTerminalFailure() bool {
	switch MarginStatus(strings.ToUpper(string(s))) {
	case MarginStatusRejected, MarginStatusFailed:
		return true
	default:
		return false
	}
}

// MarginSnapshot is a point-in-time read of one consent term's eligibility.
type MarginSnapshot struct {
	TermID          string
	AvailableMargin float64
	Status          MarginStatus
	Description     string
}

// MarginState is the poller's classification of a snapshot.
type MarginState int

const (
	MarginPending MarginState = iota
	MarginReady
	MarginRejected
	MarginTimedOut
)

// String returns a human-readable name for the state.
func (s MarginState) String() string {
	switch s {
	case MarginPending:
		return "pending"
	case MarginReady:
		return "ready"
	case MarginRejected:
		return "rejected"
	case MarginTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Classify maps a snapshot to READY, REJECTED or PENDING. A ready status with
// no margin stays pending because the margin may not have been computed yet.
func (s MarginSnapshot) Classify() MarginState {
	switch {
	case s.Status.IsTerminalFailure():
		return MarginRejected
	case s.Status.IsReady() && s.AvailableMargin > 0:
		return MarginReady
	default:
		return MarginPending
	}
}

// ConsultSearch scopes a consult listing to a document number and time window.
type ConsultSearch struct {
	DocumentNumber string
	Start          time.Time
	End            time.Time
	Limit          int
	Page           int
	Provider       string
}

// DayWindow returns local midnight and local end-of-day for the day holding now.
func DayWindow(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	end := time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), now.Location())
	return start, end
}
