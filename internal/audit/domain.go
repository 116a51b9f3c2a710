package audit

import "time"

// Result of an access decision.
const (
	ResultAllowed = "ALLOWED"
	ResultDenied  = "DENIED"
)

// Entry is one append-only audit record. Entries are rendered in full at
// decision time; deferred persistence must store them unchanged.
type Entry struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	UserID    string         `json:"userId"`
	Feature   string         `json:"feature"`
	Result    string         `json:"result"`
	Reason    string         `json:"reason"`
	Context   map[string]any `json:"context,omitempty"`
	Policies  []string       `json:"policies,omitempty"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	Country   string         `json:"country,omitempty"`
	Region    string         `json:"region,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Entry types.
const (
	TypeAccessDecision = "access_decision"
)

// TimelineFilters narrows the audit timeline query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	UserID   string
	Feature  string
	Result   string
	Page     int
	PageSize int
}

// PagingInfo describes the returned window.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	NextPage int  `json:"nextPage,omitempty"`
	PrevPage int  `json:"prevPage,omitempty"`
}

// TimelineResult bundles a page of entries with paging information.
type TimelineResult struct {
	Entries []Entry    `json:"entries"`
	Paging  PagingInfo `json:"paging"`
}
