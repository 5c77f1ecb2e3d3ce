package users

import (
	"strings"
	"time"
)

// Profile is the directory entry of an authenticated user. Membership
// procedures resolve invitees by email through this table.
type Profile struct {
	UserID     string    `gorm:"column:id;primaryKey;size:190;not null"`
	Email      string    `gorm:"column:email;size:320;index"`
	FullName   string    `gorm:"column:full_name;size:320"`
	AvatarURL  string    `gorm:"column:avatar_url;size:512"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "profiles"
}

// DisplayName returns the best available label for the profile.
func (p Profile) DisplayName() string {
	if name := normalize(p.FullName); name != "" {
		return name
	}
	return normalize(p.Email)
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
