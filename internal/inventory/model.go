package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxNameLength = 190

	// RoleOwner marks the synthesized owner entry of a member list.
	RoleOwner = "owner"
	// RoleEditor grants write access to a shared space.
	RoleEditor = "editor"
	// RoleViewer grants read access to a shared space.
	RoleViewer = "viewer"
	// RoleMember stands in for a membership row without an explicit role.
	RoleMember = "member"

	timestampLayout = "2006-01-02T15:04:05.000Z"
)

var (
	// ErrInvalidName indicates that an entity name is empty or exceeds storage bounds.
	ErrInvalidName = errors.New("inventory: invalid name")
	// ErrMissingOwner indicates that a space was submitted without an owner identity.
	ErrMissingOwner = errors.New("inventory: owner id required")
	// ErrMissingSpace indicates that a box was submitted without its parent space.
	ErrMissingSpace = errors.New("inventory: space id required")
	// ErrMissingBox indicates that an item was submitted without its parent box.
	ErrMissingBox = errors.New("inventory: box id required")
	// ErrInvalidQuantity indicates a negative item quantity.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
)

// Space is the view model of a top-level storage container.
type Space struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Location     *string `json:"location,omitempty"`
	OwnerID      string  `json:"owner_id"`
	Owner        *string `json:"owner,omitempty"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	CreatedAt    *string `json:"created_at"`
	ModifiedAt   *string `json:"modified_at"`
	MemberCount  int     `json:"memberCount"`
}

// NewSpace is the shape accepted by the create operation.
type NewSpace struct {
	Name         string  `json:"name"`
	Location     *string `json:"location,omitempty"`
	OwnerID      string  `json:"owner_id"`
	Owner        *string `json:"owner,omitempty"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
}

// Validate reports whether the space can be submitted for insert.
func (s NewSpace) Validate() error {
	if err := ValidateName(s.Name); err != nil {
		return err
	}
	if strings.TrimSpace(s.OwnerID) == "" {
		return ErrMissingOwner
	}
	return nil
}

// Box is the view model of a physical container inside a space.
type Box struct {
	ID           string  `json:"id"`
	SpaceID      string  `json:"space_id"`
	Name         string  `json:"name"`
	Location     *string `json:"location,omitempty"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	Content      *string `json:"content"`
	CreatedAt    *string `json:"created_at"`
	ModifiedAt   *string `json:"modified_at"`
}

// NewBox is the shape accepted by the box create operation.
type NewBox struct {
	SpaceID      string  `json:"space_id"`
	Name         string  `json:"name"`
	Location     *string `json:"location,omitempty"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	Content      *string `json:"content"`
}

// Validate reports whether the box can be submitted for insert.
func (b NewBox) Validate() error {
	if strings.TrimSpace(b.SpaceID) == "" {
		return ErrMissingSpace
	}
	return ValidateName(b.Name)
}

// Item is the view model of a single stored thing inside a box.
type Item struct {
	ID          string  `json:"id"`
	BoxID       string  `json:"box_id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	CreatedAt   *string `json:"created_at"`
	ModifiedAt  *string `json:"modified_at"`
}

// NewItem is the shape accepted by the item create operation.
type NewItem struct {
	BoxID       string  `json:"box_id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
}

// Validate reports whether the item can be submitted for insert.
func (i NewItem) Validate() error {
	if strings.TrimSpace(i.BoxID) == "" {
		return ErrMissingBox
	}
	if i.Quantity < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, i.Quantity)
	}
	return ValidateName(i.Name)
}

// SpaceMember is a collaborator entry of a space. A nil Role means plain member.
type SpaceMember struct {
	UserID      string  `json:"user_id"`
	Role        *string `json:"role"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

// UserProfile describes the signed-in identity as the application presents it.
type UserProfile struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FullName  string   `json:"full_name,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	Roles     []string `json:"roles"`
}

// Identity is the authenticated user record delivered by the auth service.
type Identity struct {
	ID           string
	Email        string
	UserMetadata map[string]any
}

// FormatTimestamp renders t the way the hosted backend stores timestamps.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// StringPtr returns a pointer to value, or nil when value is blank.
func StringPtr(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

// ValidateName reports whether name is usable as an entity name.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(trimmed) > maxNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}
