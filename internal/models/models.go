// Package models contains shared data structures for the telemetry client and collector.
package models

import (
	"sort"
	"time"
)

// ProbeStatus represents the classification of a single probe outcome
type ProbeStatus string

const (
	ProbeStatusSuccess      ProbeStatus = "Success"      // Stable value captured
	ProbeStatusBlocked      ProbeStatus = "Blocked"      // Anti-fingerprinting interference detected
	ProbeStatusError        ProbeStatus = "Error"        // Unexpected failure in the probe
	ProbeStatusNotSupported ProbeStatus = "NotSupported" // Required capability absent
)

// IsSentinel reports whether the status stands in for a missing raw value
func (s ProbeStatus) IsSentinel() bool {
	return s == ProbeStatusBlocked || s == ProbeStatusError || s == ProbeStatusNotSupported
}

// UnavailableHash is the per-probe hash recorded for sentinel outcomes
const UnavailableHash = "N/A"

// ProbeResult is one fingerprint component
type ProbeResult struct {
	Raw    any         `json:"raw"`
	Hash   string      `json:"hash"`
	Status ProbeStatus `json:"status"`
}

// Fingerprint is the aggregate of all probe results for a browser session
type Fingerprint struct {
	Components map[string]ProbeResult `json:"components"`
	FinalHash  string                 `json:"final_hash"`
}

// Names returns the probe names in lexical order
func (f *Fingerprint) Names() []string {
	names := make([]string, 0, len(f.Components))
	for name := range f.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClientIdentity holds the credentials issued by the collection service
type ClientIdentity struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// Valid reports whether both halves of the credential pair are present
func (c ClientIdentity) Valid() bool {
	return c.ID != "" && c.Token != ""
}

// CounterRecord holds the engagement counters for one URL
type CounterRecord struct {
	URL       string `json:"url"`
	ViewCount int64  `json:"view_count"`
	LikeCount int64  `json:"like_count"`
}

// Counts is the convenience pair exposed per URL by bulk lookups
type Counts struct {
	ViewCount int64 `json:"view_count"`
	LikeCount int64 `json:"like_count"`
}

// URLCount is the response body of the single-URL count endpoints
type URLCount struct {
	URL   string `json:"url"`
	Count int64  `json:"count"`
}

// StatusRequest is the body of POST /client/status
type StatusRequest struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// CheckinRequest is the body of POST /client/checkin
type CheckinRequest struct {
	ClientID    string         `json:"client_id"`
	ClientToken string         `json:"client_token"`
	Version     string         `json:"version"`
	FPV         int            `json:"fpv"`
	FP          string         `json:"fp"`
	UA          string         `json:"ua"`
	UAD         *UserAgentData `json:"uad"`
}

// EventRequest is the body of POST /client/view and POST /client/like
type EventRequest struct {
	ClientID    string `json:"client_id"`
	ClientToken string `json:"client_token"`
	URL         string `json:"url"`
}

// BulkCountsRequest is the body of POST /counts/bulk
type BulkCountsRequest struct {
	URLs []string `json:"urls"`
}

// BulkCountsResponse is the payload returned by POST /counts/bulk
type BulkCountsResponse struct {
	Results []CounterRecord `json:"results"`
}

// BulkCounts pairs the raw server payload with a per-URL lookup
type BulkCounts struct {
	Raw BulkCountsResponse `json:"raw"`
	Map map[string]Counts  `json:"map"`
}

// Brand is one entry of navigator.userAgentData.brands
type Brand struct {
	Brand   string `json:"brand"`
	Version string `json:"version"`
}

// UserAgentData is the structured user-agent description sent on checkin
type UserAgentData struct {
	Brands         []Brand `json:"brands,omitempty"`
	Mobile         bool    `json:"mobile"`
	Platform       string  `json:"platform,omitempty"`
	Browser        string  `json:"browser"`
	BrowserVersion string  `json:"browser_version"`
	OS             string  `json:"os"`
	OSVersion      string  `json:"os_version"`
	DeviceType     string  `json:"device_type"`
}

// ActionType represents types of tracked client writes for rate limiting
type ActionType string

const (
	ActionTypeView    ActionType = "view"
	ActionTypeLike    ActionType = "like"
	ActionTypeCheckin ActionType = "checkin"
)

// Client is a registered identity as stored by the collector
type Client struct {
	ID            string    `json:"id"`
	TokenHash     string    `json:"-"`
	LastFP        string    `json:"last_fp"`
	CreatedAt     time.Time `json:"created_at"`
	LastCheckinAt time.Time `json:"last_checkin_at"`
}

// Checkin is a fingerprint submission as stored by the collector
type Checkin struct {
	ID        int64     `json:"id"`
	ClientID  string    `json:"client_id"`
	FP        string    `json:"fp"`
	FPV       int       `json:"fpv"`
	Version   string    `json:"version"`
	UA        string    `json:"ua"`
	UAD       string    `json:"uad"` // JSON-encoded UserAgentData
	CreatedAt time.Time `json:"created_at"`
}
