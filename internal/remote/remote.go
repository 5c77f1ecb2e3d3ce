// Package remote defines the port through which stores reach the hosted
// relational backend. Row visibility is enforced by the backend, not here.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
)

const (
	// CodeUniqueViolation is the Postgres code reported for duplicate rows.
	CodeUniqueViolation = "23505"
	// CodeInsufficientPrivilege is the Postgres code reported by row level security.
	CodeInsufficientPrivilege = "42501"
	// CodeNoRows marks a write that matched no visible row.
	CodeNoRows = "PGRST116"
)

// Error is a structured failure returned by the remote backend.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// NewError builds a remote error with a message and optional code.
func NewError(message, code string) *Error {
	return &Error{Message: message, Code: code}
}

// Message extracts the human readable message from err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Message
	}
	return err.Error()
}

// Code extracts the machine code from err, if any.
func Code(err error) string {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Code
	}
	return ""
}

// SpaceSource reads and writes spaces and their membership rows.
type SpaceSource interface {
	ListSpaces(ctx context.Context) ([]inventory.SpaceRow, error)
	InsertSpace(ctx context.Context, row inventory.SpaceRow) ([]inventory.SpaceRow, error)
	UpdateSpace(ctx context.Context, row inventory.SpaceRow) ([]inventory.SpaceRow, error)
	DeleteSpace(ctx context.Context, spaceID string) error
	ListMemberships(ctx context.Context) ([]inventory.MembershipRow, error)
	// SpaceMembers invokes the privileged get_space_members procedure.
	SpaceMembers(ctx context.Context, spaceID string) ([]inventory.MemberRow, error)
	// AddSpaceMember invokes the privileged add_space_member procedure.
	AddSpaceMember(ctx context.Context, spaceID, email, role string) (bool, error)
}

// BoxSource reads and writes boxes.
type BoxSource interface {
	ListBoxes(ctx context.Context, spaceID string) ([]inventory.BoxRow, error)
	InsertBox(ctx context.Context, row inventory.BoxRow) ([]inventory.BoxRow, error)
	UpdateBox(ctx context.Context, row inventory.BoxRow) ([]inventory.BoxRow, error)
	// DeleteBox returns the deleted row so callers can find its space.
	DeleteBox(ctx context.Context, boxID string) ([]inventory.BoxRow, error)
}

// ItemSource reads and writes items.
type ItemSource interface {
	ListItems(ctx context.Context, boxID string) ([]inventory.ItemRow, error)
	InsertItem(ctx context.Context, row inventory.ItemRow) ([]inventory.ItemRow, error)
	UpdateItem(ctx context.Context, row inventory.ItemRow) ([]inventory.ItemRow, error)
	// DeleteItem returns the deleted row so callers can find its box.
	DeleteItem(ctx context.Context, itemID string) ([]inventory.ItemRow, error)
}

// DataSource is the full remote surface bound to one caller identity.
type DataSource interface {
	SpaceSource
	BoxSource
	ItemSource
}
