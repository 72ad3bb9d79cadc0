package adapter

import (
	"bytes"
	"encoding/json"
)

type nullableState uint8

const (
	unset nullableState = iota
	set
	cleared
)

// Nullable is a patch value for a clearable field. The zero value leaves
// the field alone; Set assigns it; Clear removes it. In JSON an absent key
// is unset and an explicit null clears.
type Nullable[T any] struct {
	state nullableState
	value T
}

// Set returns a Nullable that assigns v.
func Set[T any](v T) Nullable[T] {
	return Nullable[T]{state: set, value: v}
}

// Clear returns a Nullable that removes the field's value.
func Clear[T any]() Nullable[T] {
	return Nullable[T]{state: cleared}
}

// IsZero reports whether the field is left untouched; used by omitzero.
func (n Nullable[T]) IsZero() bool { return n.state == unset }

// IsSet reports whether a value is assigned.
func (n Nullable[T]) IsSet() bool { return n.state == set }

// IsCleared reports whether the field is to be removed.
func (n Nullable[T]) IsCleared() bool { return n.state == cleared }

// Value returns the assigned value and whether one was assigned.
func (n Nullable[T]) Value() (T, bool) { return n.value, n.state == set }

// MarshalJSON writes null for a cleared field.
func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if n.state != set {
		return []byte("null"), nil
	}
	return json.Marshal(n.value)
}

// UnmarshalJSON treats null as Clear.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*n = Clear[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Set(v)
	return nil
}

// Patch is a partial update in external terms. Nil pointers leave required
// fields alone; clearable fields use Nullable.
type Patch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Type        *string   `json:"type,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Priority    *string   `json:"priority,omitempty"`
	Labels      *[]string `json:"labels,omitempty"`

	Assignee           Nullable[string]          `json:"assignee,omitzero"`
	EstimateMinutes    Nullable[int]             `json:"estimate_minutes,omitzero"`
	DesignNotes        Nullable[string]          `json:"design_notes,omitzero"`
	AcceptanceCriteria Nullable[string]          `json:"acceptance_criteria,omitzero"`
	WorkingNotes       Nullable[string]          `json:"working_notes,omitzero"`
	ExternalRef        Nullable[string]          `json:"external_ref,omitzero"`
	SpecID             Nullable[string]          `json:"spec_id,omitzero"`
	Metadata           Nullable[json.RawMessage] `json:"metadata,omitzero"`
}

// PatchToUpdates turns p into the update map accepted by
// Storage.UpdateIssue. Cleared fields map to nil.
func PatchToUpdates(p Patch) (map[string]interface{}, error) {
	updates := make(map[string]interface{})
	if p.Title != nil {
		updates["title"] = *p.Title
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.Type != nil {
		updates["type"] = *p.Type
	}
	if p.Status != nil {
		updates["status"] = *p.Status
	}
	if p.Priority != nil {
		n, err := ParsePriority(*p.Priority)
		if err != nil {
			return nil, err
		}
		updates["priority"] = n
	}
	if p.Labels != nil {
		updates["labels"] = *p.Labels
	}

	putString(updates, "assignee", p.Assignee)
	putString(updates, "design_notes", p.DesignNotes)
	putString(updates, "acceptance_criteria", p.AcceptanceCriteria)
	putString(updates, "working_notes", p.WorkingNotes)
	putString(updates, "external_ref", p.ExternalRef)
	putString(updates, "spec_id", p.SpecID)
	switch {
	case p.EstimateMinutes.IsSet():
		v, _ := p.EstimateMinutes.Value()
		updates["estimate_minutes"] = v
	case p.EstimateMinutes.IsCleared():
		updates["estimate_minutes"] = nil
	}
	switch {
	case p.Metadata.IsSet():
		v, _ := p.Metadata.Value()
		updates["metadata"] = v
	case p.Metadata.IsCleared():
		updates["metadata"] = nil
	}
	return updates, nil
}

func putString(updates map[string]interface{}, key string, n Nullable[string]) {
	switch {
	case n.IsSet():
		v, _ := n.Value()
		updates[key] = v
	case n.IsCleared():
		updates[key] = nil
	}
}
