package inventory

import (
	"slices"
	"strings"
)

// SortSpacesByName returns a copy of spaces ordered by name; unnamed spaces sort last.
func SortSpacesByName(spaces []Space) []Space {
	return sortByName(spaces, func(space Space) string { return space.Name })
}

// SortBoxesByName returns a copy of boxes ordered by name; unnamed boxes sort last.
func SortBoxesByName(boxes []Box) []Box {
	return sortByName(boxes, func(box Box) string { return box.Name })
}

// OrderMembers returns a copy of members with the owner first and the rest by display name.
func OrderMembers(members []SpaceMember, ownerID string) []SpaceMember {
	ordered := slices.Clone(members)
	slices.SortStableFunc(ordered, func(a, b SpaceMember) int {
		aOwner, bOwner := a.UserID == ownerID, b.UserID == ownerID
		switch {
		case aOwner && !bOwner:
			return -1
		case bOwner && !aOwner:
			return 1
		}
		return compareNames(derefString(a.DisplayName), derefString(b.DisplayName))
	})
	return ordered
}

func sortByName[T any](values []T, name func(T) string) []T {
	ordered := slices.Clone(values)
	slices.SortStableFunc(ordered, func(a, b T) int {
		return compareNames(name(a), name(b))
	})
	return ordered
}

func compareNames(a, b string) int {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}
	return strings.Compare(a, b)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
