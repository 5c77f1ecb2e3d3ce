package users

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Profile{}); err != nil {
		t.Fatalf("failed to migrate profile schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestRecordCreatesAndRefreshesProfile(t *testing.T) {
	service := newTestService(t)

	profile, err := service.Record(inventory.Identity{
		ID:           "user-1",
		Email:        "Ada@Example.com",
		UserMetadata: map[string]any{"full_name": "Ada Lovelace"},
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if profile.Email != "ada@example.com" || profile.DisplayName() != "Ada Lovelace" {
		t.Fatalf("unexpected profile: %#v", profile)
	}

	profile, err = service.Record(inventory.Identity{
		ID:           "user-1",
		Email:        "ada@example.com",
		UserMetadata: map[string]any{"avatar_url": "https://example.com/ada.png"},
	})
	if err != nil {
		t.Fatalf("second record failed: %v", err)
	}
	if profile.AvatarURL != "https://example.com/ada.png" {
		t.Fatalf("expected avatar to be updated, got %#v", profile)
	}

	found, err := service.ByEmail("  ADA@example.COM ")
	if err != nil {
		t.Fatalf("lookup by email failed: %v", err)
	}
	if found.UserID != "user-1" || found.AvatarURL != "https://example.com/ada.png" {
		t.Fatalf("unexpected lookup result: %#v", found)
	}
}

func TestRecordRejectsEmptyIdentity(t *testing.T) {
	service := newTestService(t)
	if _, err := service.Record(inventory.Identity{Email: "x@example.com"}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected invalid identity, got %v", err)
	}
}

func TestLookupsReportMissingProfiles(t *testing.T) {
	service := newTestService(t)
	if _, err := service.ByEmail("nobody@example.com"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := service.ByID("nobody"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := service.Record(inventory.Identity{ID: "user-2", Email: "b@example.com"}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	profiles, err := service.ByIDs([]string{"user-2", "nobody"})
	if err != nil {
		t.Fatalf("batch lookup failed: %v", err)
	}
	if len(profiles) != 1 || profiles["user-2"].DisplayName() != "b@example.com" {
		t.Fatalf("unexpected batch result: %#v", profiles)
	}
}
