package sqlbackend

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/remote"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opListSpaces     = "sqlbackend.list_spaces"
	opInsertSpace    = "sqlbackend.insert_space"
	opUpdateSpace    = "sqlbackend.update_space"
	opDeleteSpace    = "sqlbackend.delete_space"
	opSpaceMembers   = "sqlbackend.get_space_members"
	opAddSpaceMember = "sqlbackend.add_space_member"

	tableSpaces  = "spaces"
	tableMembers = "space_members"
)

// Session is a remote.DataSource acting as one user.
type Session struct {
	backend *Backend
	userID  string
}

var _ remote.DataSource = (*Session)(nil)

type access struct {
	space   spaceRecord
	role    string
	visible bool
}

func (a access) owner() bool {
	return a.role == inventory.RoleOwner
}

func (a access) writable() bool {
	return a.role == inventory.RoleOwner || a.role == inventory.RoleEditor
}

func (s *Session) db(ctx context.Context) *gorm.DB {
	return s.backend.db.WithContext(ctx)
}

// visibleSpaceIDs selects the ids of spaces the caller owns or belongs to.
func (s *Session) visibleSpaceIDs(ctx context.Context) *gorm.DB {
	memberOf := s.db(ctx).Model(&membershipRecord{}).Select("space_id").Where("user_id = ?", s.userID)
	return s.db(ctx).Model(&spaceRecord{}).Select("id").Where("owner_id = ? OR id IN (?)", s.userID, memberOf)
}

func (s *Session) spaceAccess(ctx context.Context, spaceID string) (access, error) {
	var space spaceRecord
	err := s.db(ctx).Where("id = ?", spaceID).Take(&space).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return access{}, nil
	}
	if err != nil {
		return access{}, err
	}
	if s.userID != "" && space.OwnerID == s.userID {
		return access{space: space, role: inventory.RoleOwner, visible: true}, nil
	}
	var membership membershipRecord
	err = s.db(ctx).Where("space_id = ? AND user_id = ?", spaceID, s.userID).Take(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return access{space: space}, nil
	}
	if err != nil {
		return access{}, err
	}
	role := inventory.RoleMember
	if membership.Role != nil && *membership.Role != "" {
		role = *membership.Role
	}
	return access{space: space, role: role, visible: true}, nil
}

func (s *Session) ownerNames(ownerIDs []string) map[string]*string {
	names := make(map[string]*string, len(ownerIDs))
	profiles, err := s.backend.users.ByIDs(ownerIDs)
	if err != nil {
		s.backend.logger.Warn("owner lookup failed", zap.Error(err))
		return names
	}
	for id, profile := range profiles {
		names[id] = inventory.StringPtr(profile.DisplayName())
	}
	return names
}

// ListSpaces returns every space the caller owns or belongs to, ordered by name.
func (s *Session) ListSpaces(ctx context.Context) ([]inventory.SpaceRow, error) {
	var records []spaceRecord
	err := s.db(ctx).
		Where("id IN (?)", s.visibleSpaceIDs(ctx)).
		Order("name ASC").
		Find(&records).Error
	if err != nil {
		s.backend.logError(opListSpaces, "select_failed", err)
		return nil, internalFailure(err)
	}
	ownerIDs := make([]string, 0, len(records))
	for _, record := range records {
		ownerIDs = append(ownerIDs, record.OwnerID)
	}
	names := s.ownerNames(ownerIDs)
	rows := make([]inventory.SpaceRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.row(names[record.OwnerID]))
	}
	return rows, nil
}

// InsertSpace stores a space owned by the caller along with its owner membership.
func (s *Session) InsertSpace(ctx context.Context, row inventory.SpaceRow) ([]inventory.SpaceRow, error) {
	if s.userID == "" || row.OwnerID != s.userID {
		return nil, permissionDenied(tableSpaces)
	}
	if err := inventory.ValidateName(row.Name); err != nil {
		return nil, invalidArgument(err.Error())
	}
	id, err := s.backend.newID()
	if err != nil {
		s.backend.logError(opInsertSpace, "id_failed", err)
		return nil, internalFailure(err)
	}
	createdAt := valueOr(row.CreatedAt, s.backend.now())
	record := spaceRecord{
		ID:           id,
		Name:         strings.TrimSpace(row.Name),
		Location:     row.Location,
		OwnerID:      s.userID,
		ThumbnailURL: row.ThumbnailURL,
		CreatedAt:    createdAt,
		ModifiedAt:   valueOr(row.ModifiedAt, *createdAt),
	}
	ownerRole := inventory.RoleOwner
	err = s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		return tx.Create(&membershipRecord{
			SpaceID:   id,
			UserID:    s.userID,
			Role:      &ownerRole,
			CreatedAt: createdAt,
		}).Error
	})
	if err != nil {
		s.backend.logError(opInsertSpace, "insert_failed", err)
		return nil, internalFailure(err)
	}
	names := s.ownerNames([]string{s.userID})
	return []inventory.SpaceRow{record.row(names[s.userID])}, nil
}

// UpdateSpace applies row to a space the caller owns. Spaces the caller cannot
// see match no row.
func (s *Session) UpdateSpace(ctx context.Context, row inventory.SpaceRow) ([]inventory.SpaceRow, error) {
	grant, err := s.spaceAccess(ctx, row.ID)
	if err != nil {
		return nil, internalFailure(err)
	}
	if !grant.visible {
		return []inventory.SpaceRow{}, nil
	}
	if !grant.owner() {
		return nil, permissionDenied(tableSpaces)
	}
	if err := inventory.ValidateName(row.Name); err != nil {
		return nil, invalidArgument(err.Error())
	}
	updates := map[string]interface{}{
		"name":          strings.TrimSpace(row.Name),
		"location":      row.Location,
		"thumbnail_url": row.ThumbnailURL,
		"modified_at":   valueOr(row.ModifiedAt, s.backend.now()),
	}
	if err := s.db(ctx).Model(&spaceRecord{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
		s.backend.logError(opUpdateSpace, "update_failed", err, zap.String("space_id", row.ID))
		return nil, internalFailure(err)
	}
	var stored spaceRecord
	if err := s.db(ctx).Where("id = ?", row.ID).Take(&stored).Error; err != nil {
		return nil, internalFailure(err)
	}
	names := s.ownerNames([]string{stored.OwnerID})
	return []inventory.SpaceRow{stored.row(names[stored.OwnerID])}, nil
}

// DeleteSpace removes a space the caller owns together with its contents.
func (s *Session) DeleteSpace(ctx context.Context, spaceID string) error {
	grant, err := s.spaceAccess(ctx, spaceID)
	if err != nil {
		return internalFailure(err)
	}
	if !grant.visible {
		return noVisibleRow(tableSpaces)
	}
	if !grant.owner() {
		return permissionDenied(tableSpaces)
	}
	err = s.db(ctx).Transaction(func(tx *gorm.DB) error {
		boxIDs := tx.Model(&boxRecord{}).Select("id").Where("space_id = ?", spaceID)
		if err := tx.Where("box_id IN (?)", boxIDs).Delete(&itemRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("space_id = ?", spaceID).Delete(&boxRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("space_id = ?", spaceID).Delete(&membershipRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", spaceID).Delete(&spaceRecord{}).Error
	})
	if err != nil {
		s.backend.logError(opDeleteSpace, "delete_failed", err, zap.String("space_id", spaceID))
		return internalFailure(err)
	}
	return nil
}

// ListMemberships returns the membership rows of every visible space.
func (s *Session) ListMemberships(ctx context.Context) ([]inventory.MembershipRow, error) {
	var records []membershipRecord
	err := s.db(ctx).Where("space_id IN (?)", s.visibleSpaceIDs(ctx)).Find(&records).Error
	if err != nil {
		return nil, internalFailure(err)
	}
	rows := make([]inventory.MembershipRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.row())
	}
	return rows, nil
}

// SpaceMembers lists the collaborators of a visible space with their profiles.
// The owner is not part of the result.
func (s *Session) SpaceMembers(ctx context.Context, spaceID string) ([]inventory.MemberRow, error) {
	grant, err := s.spaceAccess(ctx, spaceID)
	if err != nil {
		return nil, internalFailure(err)
	}
	if !grant.visible {
		return nil, permissionDenied(tableMembers)
	}
	var records []membershipRecord
	err = s.db(ctx).
		Where("space_id = ? AND user_id <> ?", spaceID, grant.space.OwnerID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		s.backend.logError(opSpaceMembers, "select_failed", err, zap.String("space_id", spaceID))
		return nil, internalFailure(err)
	}
	userIDs := make([]string, 0, len(records))
	for _, record := range records {
		userIDs = append(userIDs, record.UserID)
	}
	profiles, err := s.backend.users.ByIDs(userIDs)
	if err != nil {
		return nil, internalFailure(err)
	}
	rows := make([]inventory.MemberRow, 0, len(records))
	for _, record := range records {
		row := inventory.MemberRow{UserID: record.UserID, Role: record.Role}
		if profile, ok := profiles[record.UserID]; ok {
			row.DisplayName = inventory.StringPtr(profile.DisplayName())
			row.AvatarURL = inventory.StringPtr(profile.AvatarURL)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// AddSpaceMember lets the owner grant role to the user registered under email.
func (s *Session) AddSpaceMember(ctx context.Context, spaceID, email, role string) (bool, error) {
	grant, err := s.spaceAccess(ctx, spaceID)
	if err != nil {
		return false, internalFailure(err)
	}
	if !grant.visible || !grant.owner() {
		return false, &remote.Error{
			Message: "permission denied: only the owner can share this space",
			Code:    remote.CodeInsufficientPrivilege,
			Status:  permissionDenied(tableMembers).Status,
		}
	}
	if role != inventory.RoleViewer && role != inventory.RoleEditor {
		return false, invalidArgument("invalid member role: " + role)
	}
	profile, err := s.backend.users.ByEmail(email)
	if errors.Is(err, users.ErrProfileNotFound) {
		return false, userNotFound()
	}
	if err != nil {
		return false, internalFailure(err)
	}
	if profile.UserID == grant.space.OwnerID {
		return false, duplicateMember()
	}
	var existing int64
	if err := s.db(ctx).Model(&membershipRecord{}).
		Where("space_id = ? AND user_id = ?", spaceID, profile.UserID).
		Count(&existing).Error; err != nil {
		return false, internalFailure(err)
	}
	if existing > 0 {
		return false, duplicateMember()
	}
	memberRole := role
	if err := s.db(ctx).Create(&membershipRecord{
		SpaceID:   spaceID,
		UserID:    profile.UserID,
		Role:      &memberRole,
		CreatedAt: valueOr(nil, s.backend.now()),
	}).Error; err != nil {
		s.backend.logError(opAddSpaceMember, "insert_failed", err, zap.String("space_id", spaceID))
		return false, internalFailure(err)
	}
	return true, nil
}
