// Package contribution defines the submission payload accepted by the
// verification engine: the contribution claim itself, its attached evidence
// items, and the status lifecycle a claim moves through.
package contribution

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind categorizes an evidence item by origin.
type SourceKind string

const (
	SourceCodeRepo  SourceKind = "code-repo"
	SourceDocument  SourceKind = "document"
	SourceWebsite   SourceKind = "website"
	SourceSignature SourceKind = "signature"
)

// KnownSourceKinds lists every valid evidence source kind.
var KnownSourceKinds = []SourceKind{SourceCodeRepo, SourceDocument, SourceWebsite, SourceSignature}

// Valid reports whether k is a recognized source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceCodeRepo, SourceDocument, SourceWebsite, SourceSignature:
		return true
	}
	return false
}

// EvidenceItem is a single piece of supporting evidence. It is owned
// exclusively by its Contribution.
type EvidenceItem struct {
	SourceKind     SourceKind `json:"source_kind"`
	URLOrHash      string     `json:"url_or_hash"`
	DeclaredAuthor string     `json:"declared_author,omitempty"`
	DeclaredDate   time.Time  `json:"declared_date,omitempty"`
}

// Status is the lifecycle state of a contribution. A contribution
// transitions out of Pending exactly once per evaluation run.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
	StatusFlagged  Status = "flagged"
)

// Terminal reports whether s is a terminal engine state. Flagged is terminal
// for the engine; a human review may re-run the engine with a manual-override
// fact to move it to Verified or Rejected.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusRejected || s == StatusFlagged
}

// Contribution is a user-submitted claim of a real-world contribution.
// Immutable after creation except for Status, which is set from the engine's
// output.
type Contribution struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Category      string         `json:"category"`
	ImpactLevel   string         `json:"impact_level"`
	WalletAddress string         `json:"wallet_address,omitempty"`
	Evidence      []EvidenceItem `json:"evidence"`
	CreatedAt     time.Time      `json:"created_at"`
	Status        Status         `json:"status"`
}

// ValidationError reports a malformed contribution payload. Evaluation is
// aborted before scoring; the caller must fix and resubmit.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid contribution: field %q: %s", e.Field, e.Reason)
}

// Validate checks the structural requirements of the payload. Category and
// impact level membership is checked separately against engine configuration.
func (c *Contribution) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if strings.TrimSpace(c.UserID) == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}
	if strings.TrimSpace(c.Category) == "" {
		return &ValidationError{Field: "category", Reason: "required"}
	}
	if strings.TrimSpace(c.ImpactLevel) == "" {
		return &ValidationError{Field: "impact_level", Reason: "required"}
	}
	if c.CreatedAt.IsZero() {
		return &ValidationError{Field: "created_at", Reason: "required"}
	}
	for i, item := range c.Evidence {
		if !item.SourceKind.Valid() {
			return &ValidationError{
				Field:  fmt.Sprintf("evidence[%d].source_kind", i),
				Reason: fmt.Sprintf("unknown source kind %q", item.SourceKind),
			}
		}
		if strings.TrimSpace(item.URLOrHash) == "" {
			return &ValidationError{
				Field:  fmt.Sprintf("evidence[%d].url_or_hash", i),
				Reason: "required",
			}
		}
	}
	return nil
}
