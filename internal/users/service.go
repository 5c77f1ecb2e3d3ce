package users

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"gorm.io/gorm"
)

var (
	// ErrInvalidIdentity indicates the identity did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrProfileNotFound indicates that no profile matched the lookup.
	ErrProfileNotFound = errors.New("users: profile not found")
)

// ServiceConfig describes the dependencies required for profile management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service records authenticated users and resolves them by id or email.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		cache: sync.Map{},
	}, nil
}

// Record creates or refreshes the profile of identity and returns it.
func (s *Service) Record(identity inventory.Identity) (Profile, error) {
	userID := normalize(identity.ID)
	if userID == "" {
		return Profile{}, ErrInvalidIdentity
	}
	view := inventory.ProfileFromIdentity(identity)
	email := normalizeEmail(identity.Email)

	var profile Profile
	err := s.db.Where("id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = Profile{
			UserID:     userID,
			Email:      email,
			FullName:   normalize(view.FullName),
			AvatarURL:  normalize(view.AvatarURL),
			LastSeenAt: s.now(),
		}
		if err := s.db.Create(&profile).Error; err != nil {
			return Profile{}, err
		}
	} else if err != nil {
		return Profile{}, err
	} else {
		updates := map[string]interface{}{}
		if email != "" && email != profile.Email {
			updates["email"] = email
			profile.Email = email
		}
		if name := normalize(view.FullName); name != "" && name != profile.FullName {
			updates["full_name"] = name
			profile.FullName = name
		}
		if avatar := normalize(view.AvatarURL); avatar != "" && avatar != profile.AvatarURL {
			updates["avatar_url"] = avatar
			profile.AvatarURL = avatar
		}
		profile.LastSeenAt = s.now()
		updates["last_seen_at"] = profile.LastSeenAt
		_ = s.db.Model(&Profile{}).
			Where("id = ?", userID).
			Updates(updates).
			Error
	}

	s.cache.Store(userID, profile)
	return profile, nil
}

// ByID returns the profile of userID.
func (s *Service) ByID(userID string) (Profile, error) {
	userID = normalize(userID)
	if cached, ok := s.cache.Load(userID); ok {
		if profile, ok := cached.(Profile); ok {
			return profile, nil
		}
	}
	var profile Profile
	err := s.db.Where("id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	s.cache.Store(userID, profile)
	return profile, nil
}

// ByEmail returns the profile registered under email, compared case-insensitively.
func (s *Service) ByEmail(email string) (Profile, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return Profile{}, ErrProfileNotFound
	}
	var profile Profile
	err := s.db.Where("email = ?", normalized).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// ByIDs returns the known profiles among userIDs keyed by id.
func (s *Service) ByIDs(userIDs []string) (map[string]Profile, error) {
	profiles := make(map[string]Profile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	var rows []Profile
	if err := s.db.Where("id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		profiles[row.UserID] = row
	}
	return profiles, nil
}
