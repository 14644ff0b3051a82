package core

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type (
	ActionKind string
	EntityKind string
)

const (
	ActionAdd    ActionKind = "add"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"

	EntityIncome  EntityKind = "income"
	EntityExpense EntityKind = "expense"
	EntitySegment EntityKind = "segment"
)

// SyncAction is one pending mutation recorded while the remote store was
// unreachable. It is a tagged union: exactly one of Income, Expense or
// Segment is set for add/update, and only TargetID for delete.
type SyncAction struct {
	ID        string     `json:"id"`
	Kind      ActionKind `json:"kind"`
	Entity    EntityKind `json:"entity"`
	Income    *Income    `json:"income,omitempty"`
	Expense   *Expense   `json:"expense,omitempty"`
	Segment   *Segment   `json:"segment,omitempty"`
	TargetID  string     `json:"targetId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

var (
	ErrInvalidActionKind = errors.New("invalid action kind")
	ErrInvalidEntityKind = errors.New("invalid entity kind")
	ErrMissingPayload    = errors.New("sync action payload missing")
)

func NewAddIncome(v Income) SyncAction {
	return newAction(ActionAdd, EntityIncome, SyncAction{Income: &v, TargetID: v.ID})
}

func NewUpdateIncome(v Income) SyncAction {
	return newAction(ActionUpdate, EntityIncome, SyncAction{Income: &v, TargetID: v.ID})
}

func NewAddExpense(v Expense) SyncAction {
	return newAction(ActionAdd, EntityExpense, SyncAction{Expense: &v, TargetID: v.ID})
}

func NewUpdateExpense(v Expense) SyncAction {
	return newAction(ActionUpdate, EntityExpense, SyncAction{Expense: &v, TargetID: v.ID})
}

func NewAddSegment(v Segment) SyncAction {
	return newAction(ActionAdd, EntitySegment, SyncAction{Segment: &v, TargetID: v.ID})
}

func NewUpdateSegment(v Segment) SyncAction {
	return newAction(ActionUpdate, EntitySegment, SyncAction{Segment: &v, TargetID: v.ID})
}

func NewDelete(entity EntityKind, id string) SyncAction {
	return newAction(ActionDelete, entity, SyncAction{TargetID: id})
}

func newAction(kind ActionKind, entity EntityKind, base SyncAction) SyncAction {
	base.ID = uuid.NewString()
	base.Kind = kind
	base.Entity = entity
	base.CreatedAt = time.Now().UTC()
	return base
}

func (k ActionKind) Valid() bool {
	switch k {
	case ActionAdd, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

func (k EntityKind) Valid() bool {
	switch k {
	case EntityIncome, EntityExpense, EntitySegment:
		return true
	}
	return false
}

// Validate checks that the action is well formed: a valid kind/entity pair
// and the payload variant matching the entity kind.
func (a SyncAction) Validate() error {
	if !a.Kind.Valid() {
		return ErrInvalidActionKind
	}
	if !a.Entity.Valid() {
		return ErrInvalidEntityKind
	}
	if a.Kind == ActionDelete {
		if a.TargetID == "" {
			return ErrMissingPayload
		}
		return nil
	}
	switch a.Entity {
	case EntityIncome:
		if a.Income == nil {
			return ErrMissingPayload
		}
	case EntityExpense:
		if a.Expense == nil {
			return ErrMissingPayload
		}
	case EntitySegment:
		if a.Segment == nil {
			return ErrMissingPayload
		}
	}
	return nil
}
