package inventory

// SpaceRow is the wire shape of the spaces table. Nil optional fields are
// written as explicit nulls. Owner is server-derived and never written.
type SpaceRow struct {
	ID           string  `json:"id,omitempty"`
	Name         string  `json:"name"`
	Location     *string `json:"location"`
	OwnerID      string  `json:"owner_id"`
	Owner        *string `json:"owner,omitempty"`
	ThumbnailURL *string `json:"thumbnail_url"`
	CreatedAt    *string `json:"created_at,omitempty"`
	ModifiedAt   *string `json:"modified_at,omitempty"`
}

// BoxRow is the wire shape of the boxes table.
type BoxRow struct {
	ID           string  `json:"id,omitempty"`
	SpaceID      string  `json:"space_id"`
	Name         string  `json:"name"`
	Location     *string `json:"location"`
	ThumbnailURL *string `json:"thumbnail_url"`
	Content      *string `json:"content"`
	CreatedAt    *string `json:"created_at,omitempty"`
	ModifiedAt   *string `json:"modified_at,omitempty"`
}

// ItemRow is the wire shape of the items table.
type ItemRow struct {
	ID          string  `json:"id,omitempty"`
	BoxID       string  `json:"box_id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Quantity    int     `json:"quantity"`
	CreatedAt   *string `json:"created_at,omitempty"`
	ModifiedAt  *string `json:"modified_at,omitempty"`
}

// MembershipRow is a raw space_members row.
type MembershipRow struct {
	SpaceID   string  `json:"space_id"`
	UserID    string  `json:"user_id"`
	Role      *string `json:"role"`
	CreatedAt *string `json:"created_at,omitempty"`
}

// MemberRow is a row returned by the get_space_members procedure.
type MemberRow struct {
	UserID      string  `json:"user_id"`
	Role        *string `json:"role"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

// SpaceFromRow maps a spaces row to its view model. MemberCount starts at zero
// and is recomputed by the store from membership rows.
func SpaceFromRow(row SpaceRow) Space {
	return Space{
		ID:           row.ID,
		Name:         row.Name,
		Location:     copyString(row.Location),
		OwnerID:      row.OwnerID,
		Owner:        copyString(row.Owner),
		ThumbnailURL: copyString(row.ThumbnailURL),
		CreatedAt:    row.CreatedAt,
		ModifiedAt:   row.ModifiedAt,
		MemberCount:  0,
	}
}

// SpaceToRow maps a view model to a write row, dropping the derived owner name.
func SpaceToRow(space Space) SpaceRow {
	return SpaceRow{
		ID:           space.ID,
		Name:         space.Name,
		Location:     copyString(space.Location),
		OwnerID:      space.OwnerID,
		ThumbnailURL: copyString(space.ThumbnailURL),
		CreatedAt:    copyString(space.CreatedAt),
		ModifiedAt:   copyString(space.ModifiedAt),
	}
}

// NewSpaceRow maps a create request to an insert row stamped with now.
func NewSpaceRow(space NewSpace, now string) SpaceRow {
	return SpaceRow{
		Name:         space.Name,
		Location:     copyString(space.Location),
		OwnerID:      space.OwnerID,
		ThumbnailURL: copyString(space.ThumbnailURL),
		CreatedAt:    &now,
		ModifiedAt:   &now,
	}
}

// BoxFromRow maps a boxes row to its view model.
func BoxFromRow(row BoxRow) Box {
	return Box{
		ID:           row.ID,
		SpaceID:      row.SpaceID,
		Name:         row.Name,
		Location:     copyString(row.Location),
		ThumbnailURL: copyString(row.ThumbnailURL),
		Content:      copyString(row.Content),
		CreatedAt:    row.CreatedAt,
		ModifiedAt:   row.ModifiedAt,
	}
}

// BoxToRow maps a box view model to its row shape.
func BoxToRow(box Box) BoxRow {
	return BoxRow{
		ID:           box.ID,
		SpaceID:      box.SpaceID,
		Name:         box.Name,
		Location:     copyString(box.Location),
		ThumbnailURL: copyString(box.ThumbnailURL),
		Content:      copyString(box.Content),
		CreatedAt:    copyString(box.CreatedAt),
		ModifiedAt:   copyString(box.ModifiedAt),
	}
}

// NewBoxRow maps a create request to an insert row stamped with now.
func NewBoxRow(box NewBox, now string) BoxRow {
	return BoxRow{
		SpaceID:      box.SpaceID,
		Name:         box.Name,
		Location:     copyString(box.Location),
		ThumbnailURL: copyString(box.ThumbnailURL),
		Content:      copyString(box.Content),
		CreatedAt:    &now,
		ModifiedAt:   &now,
	}
}

// ItemFromRow maps an items row to its view model.
func ItemFromRow(row ItemRow) Item {
	return Item{
		ID:          row.ID,
		BoxID:       row.BoxID,
		Name:        row.Name,
		Description: copyString(row.Description),
		Quantity:    row.Quantity,
		CreatedAt:   row.CreatedAt,
		ModifiedAt:  row.ModifiedAt,
	}
}

// ItemToRow maps an item view model to its row shape.
func ItemToRow(item Item) ItemRow {
	return ItemRow{
		ID:          item.ID,
		BoxID:       item.BoxID,
		Name:        item.Name,
		Description: copyString(item.Description),
		Quantity:    item.Quantity,
		CreatedAt:   copyString(item.CreatedAt),
		ModifiedAt:  copyString(item.ModifiedAt),
	}
}

// NewItemRow maps a create request to an insert row stamped with now.
func NewItemRow(item NewItem, now string) ItemRow {
	return ItemRow{
		BoxID:       item.BoxID,
		Name:        item.Name,
		Description: copyString(item.Description),
		Quantity:    item.Quantity,
		CreatedAt:   &now,
		ModifiedAt:  &now,
	}
}

// MemberFromRow maps a get_space_members row to a SpaceMember.
func MemberFromRow(row MemberRow) SpaceMember {
	return SpaceMember{
		UserID:      row.UserID,
		Role:        copyString(row.Role),
		DisplayName: copyString(row.DisplayName),
		AvatarURL:   copyString(row.AvatarURL),
	}
}

// ProfileFromIdentity maps an authenticated identity to a UserProfile.
func ProfileFromIdentity(identity Identity) UserProfile {
	fullName := metadataString(identity.UserMetadata, "full_name")
	if fullName == "" {
		fullName = metadataString(identity.UserMetadata, "name")
	}
	if fullName == "" {
		fullName = identity.Email
	}
	return UserProfile{
		ID:        identity.ID,
		Email:     identity.Email,
		FullName:  fullName,
		AvatarURL: metadataString(identity.UserMetadata, "avatar_url"),
		Roles:     []string{},
	}
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key].(string)
	if !ok {
		return ""
	}
	return value
}

// copyString duplicates value. Null stays nil and becomes absent in view
// models; an empty string is kept as given.
func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
