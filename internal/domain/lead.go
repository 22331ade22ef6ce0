package domain

import (
	"fmt"
	"strings"
	"time"
)

type LeadStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Order     int    `json:"order"`
	IsDefault bool   `json:"isDefault"`
}

var DefaultStatuses = []LeadStatus{
	{ID: "status_1", Name: "New", Color: "#3B82F6", Order: 1, IsDefault: true},
	{ID: "status_2", Name: "Contacted", Color: "#EAB308", Order: 2},
	{ID: "status_3", Name: "Qualified", Color: "#A855F7", Order: 3},
	{ID: "status_4", Name: "Proposal", Color: "#6366F1", Order: 4},
	{ID: "status_5", Name: "Negotiation", Color: "#F97316", Order: 5},
	{ID: "status_6", Name: "Sold", Color: "#22C55E", Order: 6},
	{ID: "status_7", Name: "Lost", Color: "#EF4444", Order: 7},
	{ID: "status_8", Name: "Do Not Call", Color: "#6B7280", Order: 8},
}

// DefaultStatus is the status every new lead starts in.
func DefaultStatus() LeadStatus {
	for _, s := range DefaultStatuses {
		if s.IsDefault {
			return s
		}
	}
	return DefaultStatuses[0]
}

// StatusByID looks up a status by id, falling back to a lookup by name.
func StatusByID(id string) (LeadStatus, bool) {
	for _, s := range DefaultStatuses {
		if s.ID == id {
			return s, true
		}
	}
	for _, s := range DefaultStatuses {
		if strings.EqualFold(s.Name, id) {
			return s, true
		}
	}
	return LeadStatus{}, false
}

type LeadAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
}

func (a LeadAddress) String() string {
	s := strings.Join(nonEmpty(a.Street, a.City, a.State), ", ")
	if a.ZipCode != "" {
		if s != "" {
			s += " "
		}
		s += a.ZipCode
	}
	return s
}

func nonEmpty(parts ...string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Actor identifies who authored a note or performed a change.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Note struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy Actor     `json:"createdBy"`
}

type HistoryAction string

const (
	HistoryCreated       HistoryAction = "created"
	HistoryUpdated       HistoryAction = "updated"
	HistoryStatusChanged HistoryAction = "status_changed"
	HistoryNoteAdded     HistoryAction = "note_added"
)

// HistoryEntry is an append-only audit record of one change to a lead.
type HistoryEntry struct {
	ID          string        `json:"id"`
	Action      HistoryAction `json:"action"`
	Field       string        `json:"field,omitempty"`
	OldValue    string        `json:"oldValue,omitempty"`
	NewValue    string        `json:"newValue,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	PerformedBy Actor         `json:"performedBy"`
}

type Lead struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenantId"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone,omitempty"`
	Address   LeadAddress    `json:"address"`
	Status    LeadStatus     `json:"status"`
	Notes     []Note         `json:"notes"`
	History   []HistoryEntry `json:"history"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Clone returns a copy whose slices do not alias the receiver's.
func (l *Lead) Clone() *Lead {
	c := *l
	c.Notes = append([]Note(nil), l.Notes...)
	c.History = append([]HistoryEntry(nil), l.History...)
	if c.Notes == nil {
		c.Notes = []Note{}
	}
	if c.History == nil {
		c.History = []HistoryEntry{}
	}
	return &c
}

// Validate applies the creation rules to a stored or updated lead.
func (l *Lead) Validate() error {
	return LeadDraft{FirstName: l.FirstName, LastName: l.LastName, Email: l.Email}.Validate()
}

// LeadDraft is the caller-supplied part of a new lead.
type LeadDraft struct {
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Email     string      `json:"email"`
	Phone     string      `json:"phone,omitempty"`
	Address   LeadAddress `json:"address"`
}

func (d LeadDraft) Validate() error {
	switch {
	case strings.TrimSpace(d.FirstName) == "" && strings.TrimSpace(d.LastName) == "":
		return fmt.Errorf("%w: lead name is required", ErrValidation)
	case strings.TrimSpace(d.Email) == "":
		return fmt.Errorf("%w: lead email is required", ErrValidation)
	}
	return nil
}

// LeadChanges enumerates the mutable lead fields. Nil means "leave as is".
type LeadChanges struct {
	FirstName *string      `json:"firstName,omitempty"`
	LastName  *string      `json:"lastName,omitempty"`
	Email     *string      `json:"email,omitempty"`
	Phone     *string      `json:"phone,omitempty"`
	Address   *LeadAddress `json:"address,omitempty"`
	StatusID  *string      `json:"statusId,omitempty"`
}

// FieldChange is one differing field between a lead and a changeset.
type FieldChange struct {
	Field    string
	OldValue string
	NewValue string
	Status   bool
}

// Diff compares the changeset against lead field by field, in the order
// firstName, lastName, email, phone, address, status. Status values are
// reported as display names. Unknown status ids fail with ErrValidation.
func (c LeadChanges) Diff(lead *Lead) ([]FieldChange, error) {
	var out []FieldChange
	str := func(field string, next *string, cur string) {
		if next != nil && *next != cur {
			out = append(out, FieldChange{Field: field, OldValue: cur, NewValue: *next})
		}
	}
	str("firstName", c.FirstName, lead.FirstName)
	str("lastName", c.LastName, lead.LastName)
	str("email", c.Email, lead.Email)
	str("phone", c.Phone, lead.Phone)
	if c.Address != nil && *c.Address != lead.Address {
		out = append(out, FieldChange{Field: "address", OldValue: lead.Address.String(), NewValue: c.Address.String()})
	}
	if c.StatusID != nil {
		next, ok := StatusByID(*c.StatusID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *c.StatusID)
		}
		if next.ID != lead.Status.ID {
			out = append(out, FieldChange{Field: "status", OldValue: lead.Status.Name, NewValue: next.Name, Status: true})
		}
	}
	return out, nil
}

// Apply writes the changeset onto lead. Call Diff first to validate it.
func (c LeadChanges) Apply(lead *Lead) {
	if c.FirstName != nil {
		lead.FirstName = *c.FirstName
	}
	if c.LastName != nil {
		lead.LastName = *c.LastName
	}
	if c.Email != nil {
		lead.Email = *c.Email
	}
	if c.Phone != nil {
		lead.Phone = *c.Phone
	}
	if c.Address != nil {
		lead.Address = *c.Address
	}
	if c.StatusID != nil {
		if s, ok := StatusByID(*c.StatusID); ok {
			lead.Status = s
		}
	}
}
