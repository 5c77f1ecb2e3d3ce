package sqlbackend

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opInsertBox  = "sqlbackend.insert_box"
	opUpdateBox  = "sqlbackend.update_box"
	opDeleteBox  = "sqlbackend.delete_box"
	opInsertItem = "sqlbackend.insert_item"
	opUpdateItem = "sqlbackend.update_item"
	opDeleteItem = "sqlbackend.delete_item"

	tableBoxes = "boxes"
	tableItems = "items"
)

func (s *Session) boxAccess(ctx context.Context, boxID string) (boxRecord, access, bool, error) {
	var box boxRecord
	err := s.db(ctx).Where("id = ?", boxID).Take(&box).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return boxRecord{}, access{}, false, nil
	}
	if err != nil {
		return boxRecord{}, access{}, false, err
	}
	grant, err := s.spaceAccess(ctx, box.SpaceID)
	if err != nil {
		return boxRecord{}, access{}, false, err
	}
	return box, grant, true, nil
}

// ListBoxes returns the boxes of a visible space, ordered by name.
func (s *Session) ListBoxes(ctx context.Context, spaceID string) ([]inventory.BoxRow, error) {
	grant, err := s.spaceAccess(ctx, spaceID)
	if err != nil {
		return nil, internalFailure(err)
	}
	rows := []inventory.BoxRow{}
	if !grant.visible {
		return rows, nil
	}
	var records []boxRecord
	if err := s.db(ctx).Where("space_id = ?", spaceID).Order("name ASC").Find(&records).Error; err != nil {
		return nil, internalFailure(err)
	}
	for _, record := range records {
		rows = append(rows, record.row())
	}
	return rows, nil
}

// InsertBox stores a box in a space the caller may edit.
func (s *Session) InsertBox(ctx context.Context, row inventory.BoxRow) ([]inventory.BoxRow, error) {
	grant, err := s.spaceAccess(ctx, row.SpaceID)
	if err != nil {
		return nil, internalFailure(err)
	}
	if !grant.visible || !grant.writable() {
		return nil, permissionDenied(tableBoxes)
	}
	if err := inventory.ValidateName(row.Name); err != nil {
		return nil, invalidArgument(err.Error())
	}
	id, err := s.backend.newID()
	if err != nil {
		return nil, internalFailure(err)
	}
	createdAt := valueOr(row.CreatedAt, s.backend.now())
	record := boxRecord{
		ID:           id,
		SpaceID:      row.SpaceID,
		Name:         strings.TrimSpace(row.Name),
		Location:     row.Location,
		ThumbnailURL: row.ThumbnailURL,
		Content:      row.Content,
		CreatedAt:    createdAt,
		ModifiedAt:   valueOr(row.ModifiedAt, *createdAt),
	}
	if err := s.db(ctx).Create(&record).Error; err != nil {
		s.backend.logError(opInsertBox, "insert_failed", err, zap.String("space_id", row.SpaceID))
		return nil, internalFailure(err)
	}
	return []inventory.BoxRow{record.row()}, nil
}

// UpdateBox applies row to a box the caller may edit. A box keeps its space.
func (s *Session) UpdateBox(ctx context.Context, row inventory.BoxRow) ([]inventory.BoxRow, error) {
	box, grant, found, err := s.boxAccess(ctx, row.ID)
	if err != nil {
		return nil, internalFailure(err)
	}
	if !found || !grant.visible {
		return []inventory.BoxRow{}, nil
	}
	if !grant.writable() {
		return nil, permissionDenied(tableBoxes)
	}
	if row.SpaceID != "" && row.SpaceID != box.SpaceID {
		return nil, invalidArgument("space_id cannot change")
	}
	if err := inventory.ValidateName(row.Name); err != nil {
		return nil, invalidArgument(err.Error())
	}
	updates := map[string]interface{}{
		"name":          strings.TrimSpace(row.Name),
		"location":      row.Location,
		"thumbnail_url": row.ThumbnailURL,
		"content":       row.Content,
		"modified_at":   valueOr(row.ModifiedAt, s.backend.now()),
	}
	if err := s.db(ctx).Model(&boxRecord{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
		s.backend.logError(opUpdateBox, "update_failed", err, zap.String("box_id", row.ID))
		return nil, internalFailure(err)
	}
	var stored boxRecord
	if err := s.db(ctx).Where("id = ?", row.ID).Take(&stored).Error; err != nil {
		return nil, internalFailure(err)
	}
	return []inventory.BoxRow{stored.row()}, nil
}

// DeleteBox removes a box the caller may edit together with its items.
func (s *Session) DeleteBox(ctx context.Context, boxID string) ([]inventory.BoxRow, error) {
	box, grant, found, err := s.boxAccess(ctx, boxID)
	if err != nil {
		return nil, internalFailure(err)
	}
	if !found || !grant.visible {
		return nil, noVisibleRow(tableBoxes)
	}
	if !grant.writable() {
		return nil, permissionDenied(tableBoxes)
	}
	err = s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("box_id = ?", boxID).Delete(&itemRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", boxID).Delete(&boxRecord{}).Error
	})
	if err != nil {
		s.backend.logError(opDeleteBox, "delete_failed", err, zap.String("box_id", boxID))
		return nil, internalFailure(err)
	}
	return []inventory.BoxRow{box.row()}, nil
}

// ListItems returns the items of a visible box, ordered by name.
func (s *Session) ListItems(ctx context.Context, boxID string) ([]inventory.ItemRow, error) {
	_, grant, found, err := s.boxAccess(ctx, boxID)
	if err != nil {
		return nil, internalFailure(err)
	}
	rows := []inventory.ItemRow{}
	if !found || !grant.visible {
		return rows, nil
	}
	var records []itemRecord
	if err := s.db(ctx).Where("box_id = ?", boxID).Order("name ASC").Find(&records).Error; err != nil {
		return nil, internalFailure(err)
	}
	for _, record := range records {
		rows = append(rows, record.row())
	}
	return rows, nil
}

// InsertItem stores an item in a box the caller may edit.
func (s *Session) InsertItem(ctx context.Context, row inventory.ItemRow) ([]inventory.ItemRow, error) {
	_, grant, found, err := s.boxAccess(ctx, row.BoxID)
	if err != nil {
		return nil, internalFailure(err)
	}
	if !found || !grant.visible || !grant.writable() {
		return nil, permissionDenied(tableItems)
	}
	if err := inventory.ValidateName(row.Name); err != nil {
		return nil, invalidArgument(err.Error())
	}
	if row.Quantity < 0 {
		return nil, invalidArgument(inventory.ErrInvalidQuantity.Error())
	}
	id, err := s.backend.newID()
	if err != nil {
		return nil, internalFailure(err)
	}
	createdAt := valueOr(row.CreatedAt, s.backend.now())
	record := itemRecord{
		ID:          id,
		BoxID:       row.BoxID,
		Name:        strings.TrimSpace(row.Name),
		Description: row.Description,
		Quantity:    row.Quantity,
		CreatedAt:   createdAt,
		ModifiedAt:  valueOr(row.ModifiedAt, *createdAt),
	}
	if err := s.db(ctx).Create(&record).Error; err != nil {
		s.backend.logError(opInsertItem, "insert_failed", err, zap.String("box_id", row.BoxID))
		return nil, internalFailure(err)
	}
	return []inventory.ItemRow{record.row()}, nil
}

// UpdateItem applies row to an item the caller may edit.
func (s *Session) UpdateItem(ctx context.Context, row inventory.ItemRow) ([]inventory.ItemRow, error) {
	var item itemRecord
	err := s.db(ctx).Where("id = ?", row.ID).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []inventory.ItemRow{}, nil
	}
	if err != nil {
		return nil, internalFailure(err)
	}
	_, grant, found, err := s.boxAccess(ctx, item.BoxID)
	if err != nil {
		return nil, internalFailure(err)
	}
	if !found || !grant.visible {
		return []inventory.ItemRow{}, nil
	}
	if !grant.writable() {
		return nil, permissionDenied(tableItems)
	}
	if row.BoxID != "" && row.BoxID != item.BoxID {
		return nil, invalidArgument("box_id cannot change")
	}
	if err := inventory.ValidateName(row.Name); err != nil {
		return nil, invalidArgument(err.Error())
	}
	if row.Quantity < 0 {
		return nil, invalidArgument(inventory.ErrInvalidQuantity.Error())
	}
	updates := map[string]interface{}{
		"name":        strings.TrimSpace(row.Name),
		"description": row.Description,
		"quantity":    row.Quantity,
		"modified_at": valueOr(row.ModifiedAt, s.backend.now()),
	}
	if err := s.db(ctx).Model(&itemRecord{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
		s.backend.logError(opUpdateItem, "update_failed", err, zap.String("item_id", row.ID))
		return nil, internalFailure(err)
	}
	var stored itemRecord
	if err := s.db(ctx).Where("id = ?", row.ID).Take(&stored).Error; err != nil {
		return nil, internalFailure(err)
	}
	return []inventory.ItemRow{stored.row()}, nil
}

// DeleteItem removes an item the caller may edit.
func (s *Session) DeleteItem(ctx context.Context, itemID string) ([]inventory.ItemRow, error) {
	var item itemRecord
	err := s.db(ctx).Where("id = ?", itemID).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, noVisibleRow(tableItems)
	}
	if err != nil {
		return nil, internalFailure(err)
	}
	_, grant, found, err := s.boxAccess(ctx, item.BoxID)
	if err != nil {
		return nil, internalFailure(err)
	}
	if !found || !grant.visible {
		return nil, noVisibleRow(tableItems)
	}
	if !grant.writable() {
		return nil, permissionDenied(tableItems)
	}
	if err := s.db(ctx).Where("id = ?", itemID).Delete(&itemRecord{}).Error; err != nil {
		s.backend.logError(opDeleteItem, "delete_failed", err, zap.String("item_id", itemID))
		return nil, internalFailure(err)
	}
	return []inventory.ItemRow{item.row()}, nil
}
