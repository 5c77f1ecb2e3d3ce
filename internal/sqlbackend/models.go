package sqlbackend

import (
	"github.com/MarcoPoloResearchLab/storage-manager/internal/database"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/users"
	"gorm.io/gorm"
)

const migrationBackfillModifiedAt = "2025-06-01_backfill_modified_at"

type spaceRecord struct {
	ID           string  `gorm:"column:id;primaryKey;size:64;not null"`
	Name         string  `gorm:"column:name;size:190;not null"`
	Location     *string `gorm:"column:location;size:320"`
	OwnerID      string  `gorm:"column:owner_id;size:190;not null;index"`
	ThumbnailURL *string `gorm:"column:thumbnail_url;size:512"`
	CreatedAt    *string `gorm:"column:created_at;size:32"`
	ModifiedAt   *string `gorm:"column:modified_at;size:32"`
}

func (spaceRecord) TableName() string {
	return "spaces"
}

type membershipRecord struct {
	SpaceID   string  `gorm:"column:space_id;primaryKey;size:64;not null"`
	UserID    string  `gorm:"column:user_id;primaryKey;size:190;not null;index"`
	Role      *string `gorm:"column:role;size:32"`
	CreatedAt *string `gorm:"column:created_at;size:32"`
}

func (membershipRecord) TableName() string {
	return "space_members"
}

type boxRecord struct {
	ID           string  `gorm:"column:id;primaryKey;size:64;not null"`
	SpaceID      string  `gorm:"column:space_id;size:64;not null;index"`
	Name         string  `gorm:"column:name;size:190;not null"`
	Location     *string `gorm:"column:location;size:320"`
	ThumbnailURL *string `gorm:"column:thumbnail_url;size:512"`
	Content      *string `gorm:"column:content"`
	CreatedAt    *string `gorm:"column:created_at;size:32"`
	ModifiedAt   *string `gorm:"column:modified_at;size:32"`
}

func (boxRecord) TableName() string {
	return "boxes"
}

type itemRecord struct {
	ID          string  `gorm:"column:id;primaryKey;size:64;not null"`
	BoxID       string  `gorm:"column:box_id;size:64;not null;index"`
	Name        string  `gorm:"column:name;size:190;not null"`
	Description *string `gorm:"column:description"`
	Quantity    int     `gorm:"column:quantity;not null;default:0"`
	CreatedAt   *string `gorm:"column:created_at;size:32"`
	ModifiedAt  *string `gorm:"column:modified_at;size:32"`
}

func (itemRecord) TableName() string {
	return "items"
}

// Schema returns the tables and migrations of the embedded backend.
func Schema() database.Schema {
	return database.Schema{
		Models: []any{&users.Profile{}, &spaceRecord{}, &membershipRecord{}, &boxRecord{}, &itemRecord{}},
		Migrations: []database.Migration{
			{Name: migrationBackfillModifiedAt, Apply: backfillModifiedAt},
		},
	}
}

func backfillModifiedAt(db *gorm.DB) error {
	for _, model := range []any{&spaceRecord{}, &boxRecord{}, &itemRecord{}} {
		err := db.Model(model).
			Where("modified_at IS NULL OR modified_at = ''").
			Update("modified_at", gorm.Expr("created_at")).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r spaceRecord) row(owner *string) inventory.SpaceRow {
	return inventory.SpaceRow{
		ID:           r.ID,
		Name:         r.Name,
		Location:     r.Location,
		OwnerID:      r.OwnerID,
		Owner:        owner,
		ThumbnailURL: r.ThumbnailURL,
		CreatedAt:    r.CreatedAt,
		ModifiedAt:   r.ModifiedAt,
	}
}

func (r boxRecord) row() inventory.BoxRow {
	return inventory.BoxRow{
		ID:           r.ID,
		SpaceID:      r.SpaceID,
		Name:         r.Name,
		Location:     r.Location,
		ThumbnailURL: r.ThumbnailURL,
		Content:      r.Content,
		CreatedAt:    r.CreatedAt,
		ModifiedAt:   r.ModifiedAt,
	}
}

func (r itemRecord) row() inventory.ItemRow {
	return inventory.ItemRow{
		ID:          r.ID,
		BoxID:       r.BoxID,
		Name:        r.Name,
		Description: r.Description,
		Quantity:    r.Quantity,
		CreatedAt:   r.CreatedAt,
		ModifiedAt:  r.ModifiedAt,
	}
}

func (r membershipRecord) row() inventory.MembershipRow {
	return inventory.MembershipRow{
		SpaceID:   r.SpaceID,
		UserID:    r.UserID,
		Role:      r.Role,
		CreatedAt: r.CreatedAt,
	}
}
