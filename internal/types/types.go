// Package types provides domain models shared across CaseGuard components.
//
// Zero-dependency design: types.go and errors.go use only the standard
// library so the access evaluator and filter compiler carry no storage
// concerns. ID utilities in ids.go import uuid but are isolated for
// selective inclusion.
package types

import "time"

// CaseID represents a UUIDv7 case identifier.
// String alias enables type safety while maintaining JSON string serialization.
// UUIDv7 time-ordering makes the id DESC sort tie-break also newest-first.
type CaseID string

// ContactID represents a UUIDv7 connected-contact identifier.
type ContactID string

// AccountSID identifies the account that exclusively owns a case.
type AccountSID string

// WorkerSID identifies a counsellor or supervisor within an account.
type WorkerSID string

// Case status values with built-in semantics. Accounts may configure further
// statuses; only open and closed carry meaning for access rules and filters.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// RoleSupervisor is the role name checked by the isSupervisor capability.
const RoleSupervisor = "supervisor"

// ViewerContext carries the identity a request acts as. Every evaluation and
// compilation receives the viewer explicitly; there is no ambient request
// state.
type ViewerContext struct {
	AccountSID AccountSID
	WorkerSID  WorkerSID
	Roles      []string
}

// HasRole reports whether the viewer holds the named role.
func (v ViewerContext) HasRole(role string) bool {
	for _, r := range v.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ContactSummary is the per-case projection of a connected contact.
// Owner is the worker who created the contact, used by isCaseContactOwner.
// Categories maps category name to the subcategories recorded on the contact.
type ContactSummary struct {
	ID         ContactID           `json:"id"`
	Owner      WorkerSID           `json:"owner"`
	FirstName  string              `json:"firstName,omitempty"`
	LastName   string              `json:"lastName,omitempty"`
	Number     string              `json:"number,omitempty"`
	Categories map[string][]string `json:"categories,omitempty"`
}

// CaseRecord is the case aggregate as seen by the access evaluator and
// returned by the query executor. Info is the free-form nested info map;
// Contacts are the connected-contact summaries for the case.
type CaseRecord struct {
	ID              CaseID           `json:"id"`
	AccountSID      AccountSID       `json:"accountSid"`
	Status          string           `json:"status"`
	Helpline        string           `json:"helpline,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	CreatedBy       WorkerSID        `json:"createdBy"`
	StatusUpdatedAt *time.Time       `json:"statusUpdatedAt,omitempty"`
	StatusUpdatedBy WorkerSID        `json:"statusUpdatedBy,omitempty"`
	PreviousStatus  string           `json:"previousStatus,omitempty"`
	Info            map[string]any   `json:"info,omitempty"`
	Contacts        []ContactSummary `json:"connectedContacts,omitempty"`
}

// FollowUpDate returns the followUpDate value from the info map, or "" when
// absent. An empty string and a missing key are equivalent for existence
// filtering.
func (c *CaseRecord) FollowUpDate() string {
	if c.Info == nil {
		return ""
	}
	s, _ := c.Info["followUpDate"].(string)
	return s
}

// OperatingArea returns the operatingArea value from the info map, or "".
func (c *CaseRecord) OperatingArea() string {
	if c.Info == nil {
		return ""
	}
	s, _ := c.Info["operatingArea"].(string)
	return s
}

// Resource limits enforced before compilation to bound query size and
// evaluation cost.
const (
	// MaxConditionSets limits the OR breadth of a permission rule.
	// 16 sets is far beyond any observed account configuration.
	MaxConditionSets = 16

	// MaxConditionsPerSet limits the AND depth of a single condition set.
	MaxConditionsPerSet = 16

	// MaxFilterValues limits any OR-matched filter list (statuses, helplines,
	// counsellors, categories, operating areas). Bounds the IN-clause size
	// the compiler emits.
	MaxFilterValues = 64

	// MaxPageSize caps list page sizes regardless of the requested limit.
	MaxPageSize = 1000

	// DefaultPageSize applies when a search request carries no limit.
	DefaultPageSize = 20
)
