package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/resolver"
)

// FinalSave commits a session's staged dataset to the live catalog. The
// session must still be editable and free of validation errors (it is
// revalidated here, not trusted from the stored lists). All catalog writes
// happen in one transaction; the change log and the status transition to
// saved are persisted together, so a session never claims changes it did not
// apply.
func (s *ImportService) FinalSave(ctx context.Context, tenantID string, sessionID uuid.UUID) (*models.ImportSession, error) {
	var changeLog models.ChangeLog

	session, err := s.sessions.UpdateLocked(ctx, tenantID, sessionID, func(session *models.ImportSession) error {
		if !session.IsEditable() {
			return ErrSessionNotEditable
		}
		if session.ParsedData.IsEmpty() {
			return ErrEmptyDataset
		}
		if err := s.revalidate(session); err != nil {
			return err
		}
		if len(session.ValidationErrors) > 0 {
			return ErrValidationFailed
		}

		log, err := s.commit(session)
		if err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}

		changeLog = log
		session.AppliedChangeLog = log
		session.Status = models.SessionStatusSaved
		session.SavedAt = timePtr(time.Now())
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	s.catalog.InvalidateTenant(ctx, tenantID)

	s.logger.WithFields(logrus.Fields{
		"sessionID": session.ID,
		"tenantID":  tenantID,
		"changes":   len(changeLog),
	}).Info("Import session committed")

	if s.publisher != nil {
		_ = s.publisher.PublishImportCommitted(ctx, session, changeLog)
	}
	return session, nil
}

// RollbackSession reverses a committed session's change log. Each entry is
// reversed independently, newest first: created rows are removed, updated
// rows are restored from their pre-commit snapshots. Entries that can no
// longer be reversed (the row was changed or removed since the commit) are
// reported, not fatal, and the session still transitions to rolled_back.
func (s *ImportService) RollbackSession(ctx context.Context, tenantID string, sessionID uuid.UUID) (*models.ImportSession, *models.RollbackResult, error) {
	result := &models.RollbackResult{}

	session, err := s.sessions.UpdateLocked(ctx, tenantID, sessionID, func(session *models.ImportSession) error {
		if session.Status != models.SessionStatusSaved {
			return ErrSessionNotCommitted
		}

		for i := len(session.AppliedChangeLog) - 1; i >= 0; i-- {
			entry := session.AppliedChangeLog[i]
			if err := s.reverseEntry(tenantID, entry); err != nil {
				result.Failed = append(result.Failed, models.RollbackFailure{
					Entry:  entry,
					Reason: err.Error(),
				})
				continue
			}
			result.Reversed++
		}

		session.Status = models.SessionStatusRolledBack
		session.RolledBackAt = timePtr(time.Now())
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}

	s.catalog.InvalidateTenant(ctx, tenantID)

	s.logger.WithFields(logrus.Fields{
		"sessionID": session.ID,
		"tenantID":  tenantID,
		"reversed":  result.Reversed,
		"failed":    len(result.Failed),
	}).Info("Import session rolled back")

	if s.publisher != nil {
		_ = s.publisher.PublishImportRolledBack(ctx, session, result)
	}
	return session, result, nil
}

// commit applies the staged dataset in dependency order inside one catalog
// transaction and returns the resulting change log.
func (s *ImportService) commit(session *models.ImportSession) (models.ChangeLog, error) {
	var log models.ChangeLog

	err := s.catalog.Transaction(func(tx repository.CatalogRepositoryInterface) error {
		c := &committer{
			tx:       tx,
			tenantID: session.TenantID,
			userID:   session.CreatedBy,
			data:     &session.ParsedData,
		}

		for _, kind := range models.EntityKinds() {
			var err error
			switch kind {
			case models.EntityCategories:
				err = c.commitCategories()
			case models.EntityModifierGroups:
				err = c.commitModifierGroups()
			case models.EntityModifiers:
				err = c.commitModifiers()
			case models.EntityItems:
				err = c.commitItems()
			case models.EntityItemSizes:
				err = c.commitItemSizes()
			}
			if err != nil {
				return err
			}
		}

		log = c.log
		return nil
	})
	if err != nil {
		return nil, err
	}
	return log, nil
}

// committer applies one session's rows against a transaction-bound catalog
// repository, recording every write.
type committer struct {
	tx       repository.CatalogRepositoryInterface
	tenantID string
	userID   string
	data     *models.ParsedDataset
	log      models.ChangeLog
}

func (c *committer) record(entity models.EntityKind, op models.ChangeOperation, id uuid.UUID, snapshot interface{}) error {
	entry := models.ChangeLogEntry{Entity: entity, Operation: op, ID: id}
	if snapshot != nil {
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("failed to snapshot %s %s: %w", entity, id, err)
		}
		entry.PreviousSnapshot = raw
	}
	c.log = append(c.log, entry)
	return nil
}

func (c *committer) commitCategories() error {
	for _, row := range c.data.Categories {
		var sectionID *uuid.UUID
		if strings.TrimSpace(row.KitchenSectionName) != "" {
			id, found, err := c.tx.KitchenSectionIDByName(c.tenantID, row.KitchenSectionName)
			if err != nil {
				return err
			}
			if found {
				sectionID = &id
			}
		}

		existing, err := c.tx.FindCategoryByName(c.tenantID, row.Name)
		if err != nil {
			return err
		}

		if existing != nil {
			if err := c.record(models.EntityCategories, models.ChangeOpUpdated, existing.ID, existing); err != nil {
				return err
			}
			existing.Description = strPtr(row.Description)
			existing.SortOrder = row.SortOrder
			existing.IsActive = boolPtr(row.IsActive)
			if sectionID != nil {
				existing.KitchenSectionID = sectionID
			}
			existing.UpdatedBy = &c.userID
			if err := c.tx.SaveCategory(c.tenantID, existing); err != nil {
				return fmt.Errorf("failed to update category '%s': %w", row.Name, err)
			}
			continue
		}

		category := &models.Category{
			Name:             row.Name,
			Slug:             slugify(row.Name),
			Description:      strPtr(row.Description),
			SortOrder:        row.SortOrder,
			IsActive:         boolPtr(row.IsActive),
			KitchenSectionID: sectionID,
			CreatedBy:        &c.userID,
			UpdatedBy:        &c.userID,
		}
		if err := c.tx.CreateCategory(c.tenantID, category); err != nil {
			return fmt.Errorf("failed to create category '%s': %w", row.Name, err)
		}
		if err := c.record(models.EntityCategories, models.ChangeOpCreated, category.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *committer) commitModifierGroups() error {
	for _, row := range c.data.ModifierGroups {
		key := resolver.GroupKey(row.Name)

		existing, err := c.tx.FindModifierGroupByKey(c.tenantID, key)
		if err != nil {
			return err
		}

		if existing != nil {
			if err := c.record(models.EntityModifierGroups, models.ChangeOpUpdated, existing.ID, existing); err != nil {
				return err
			}
			existing.Name = row.Name
			existing.DisplayName = strPtr(row.DisplayName)
			existing.DisplayType = models.DisplayType(row.DisplayType)
			existing.MinSelect = row.MinSelect
			existing.MaxSelect = row.MaxSelect
			existing.SortOrder = row.SortOrder
			existing.IsActive = boolPtr(row.IsActive)
			if err := c.tx.SaveModifierGroup(c.tenantID, existing); err != nil {
				return fmt.Errorf("failed to update modifier group '%s': %w", row.Name, err)
			}
			continue
		}

		group := &models.ModifierGroup{
			Name:        row.Name,
			GroupKey:    key,
			DisplayName: strPtr(row.DisplayName),
			DisplayType: models.DisplayType(row.DisplayType),
			MinSelect:   row.MinSelect,
			MaxSelect:   row.MaxSelect,
			SortOrder:   row.SortOrder,
			IsActive:    boolPtr(row.IsActive),
		}
		if err := c.tx.CreateModifierGroup(c.tenantID, group); err != nil {
			return fmt.Errorf("failed to create modifier group '%s': %w", row.Name, err)
		}
		if err := c.record(models.EntityModifierGroups, models.ChangeOpCreated, group.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *committer) commitModifiers() error {
	for _, row := range c.data.Modifiers {
		key := resolver.GroupKey(row.GroupKey)
		group, err := c.tx.FindModifierGroupByKey(c.tenantID, key)
		if err != nil {
			return err
		}
		if group == nil {
			return fmt.Errorf("modifier group '%s' not found for modifier '%s'", row.GroupKey, row.ModifierKey)
		}

		existing, err := c.tx.FindModifierByKey(c.tenantID, group.ID, row.ModifierKey)
		if err != nil {
			return err
		}

		if existing != nil {
			if err := c.record(models.EntityModifiers, models.ChangeOpUpdated, existing.ID, existing); err != nil {
				return err
			}
			existing.Name = row.Name
			existing.MaxQuantity = row.MaxQuantity
			existing.IsDefault = row.IsDefault
			existing.DisplayOrder = row.DisplayOrder
			existing.IsActive = boolPtr(row.IsActive)
			if err := c.tx.SaveModifier(c.tenantID, existing); err != nil {
				return fmt.Errorf("failed to update modifier '%s': %w", row.ModifierKey, err)
			}
			continue
		}

		modifier := &models.Modifier{
			GroupID:      group.ID,
			ModifierKey:  row.ModifierKey,
			Name:         row.Name,
			MaxQuantity:  row.MaxQuantity,
			IsDefault:    row.IsDefault,
			DisplayOrder: row.DisplayOrder,
			IsActive:     boolPtr(row.IsActive),
		}
		if err := c.tx.CreateModifier(c.tenantID, modifier); err != nil {
			return fmt.Errorf("failed to create modifier '%s': %w", row.ModifierKey, err)
		}
		if err := c.record(models.EntityModifiers, models.ChangeOpCreated, modifier.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *committer) commitItems() error {
	for _, row := range c.data.Items {
		category, err := c.tx.FindCategoryByName(c.tenantID, row.CategoryName)
		if err != nil {
			return err
		}
		if category == nil {
			return fmt.Errorf("category '%s' not found for item '%s'", row.CategoryName, row.Name)
		}

		var basePrice *string
		if !row.IsSizeable && strings.TrimSpace(row.BasePrice) != "" {
			basePrice = strPtr(strings.TrimSpace(row.BasePrice))
		}
		var defaultSize *string
		if row.IsSizeable {
			defaultSize = strPtr(c.defaultSizeCode(row))
		}

		groupKeys := make(pq.StringArray, 0, len(row.ModifierGroups))
		for _, g := range row.ModifierGroups {
			groupKeys = append(groupKeys, resolver.GroupKey(g))
		}

		existing, err := c.tx.FindItemByName(c.tenantID, row.Name)
		if err != nil {
			return err
		}

		if existing != nil {
			if err := c.record(models.EntityItems, models.ChangeOpUpdated, existing.ID, existing); err != nil {
				return err
			}
			existing.CategoryID = category.ID
			existing.Description = strPtr(row.Description)
			existing.SortOrder = row.SortOrder
			existing.IsActive = boolPtr(row.IsActive)
			existing.IsSizeable = row.IsSizeable
			existing.BasePrice = basePrice
			existing.DefaultSizeCode = defaultSize
			if len(groupKeys) > 0 {
				existing.ModifierGroups = groupKeys
			}
			existing.UpdatedBy = &c.userID
			if err := c.tx.SaveItem(c.tenantID, existing); err != nil {
				return fmt.Errorf("failed to update item '%s': %w", row.Name, err)
			}
			continue
		}

		item := &models.MenuItem{
			CategoryID:      category.ID,
			Name:            row.Name,
			Slug:            slugify(row.Name),
			Description:     strPtr(row.Description),
			SortOrder:       row.SortOrder,
			IsActive:        boolPtr(row.IsActive),
			IsSizeable:      row.IsSizeable,
			BasePrice:       basePrice,
			DefaultSizeCode: defaultSize,
			ModifierGroups:  groupKeys,
			CreatedBy:       &c.userID,
			UpdatedBy:       &c.userID,
		}
		if err := c.tx.CreateItem(c.tenantID, item); err != nil {
			return fmt.Errorf("failed to create item '%s': %w", row.Name, err)
		}
		if err := c.record(models.EntityItems, models.ChangeOpCreated, item.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *committer) commitItemSizes() error {
	for _, row := range c.data.ItemSizes {
		var itemID *uuid.UUID
		if strings.TrimSpace(row.ItemName) != "" {
			item, err := c.tx.FindItemByName(c.tenantID, row.ItemName)
			if err != nil {
				return err
			}
			if item == nil {
				return fmt.Errorf("item '%s' not found for size '%s'", row.ItemName, row.SizeCode)
			}
			itemID = &item.ID
		}

		var price *string
		if strings.TrimSpace(row.Price) != "" {
			price = strPtr(strings.TrimSpace(row.Price))
		}

		existing, err := c.tx.FindSizeByCode(c.tenantID, row.SizeCode, itemID)
		if err != nil {
			return err
		}

		if existing != nil {
			if err := c.record(models.EntityItemSizes, models.ChangeOpUpdated, existing.ID, existing); err != nil {
				return err
			}
			existing.Name = row.Name
			existing.Price = price
			existing.DisplayOrder = row.DisplayOrder
			existing.IsActive = boolPtr(row.IsActive)
			if err := c.tx.SaveSize(c.tenantID, existing); err != nil {
				return fmt.Errorf("failed to update size '%s': %w", row.SizeCode, err)
			}
			continue
		}

		size := &models.ItemSize{
			ItemID:       itemID,
			Name:         row.Name,
			SizeCode:     row.SizeCode,
			Price:        price,
			DisplayOrder: row.DisplayOrder,
			IsActive:     boolPtr(row.IsActive),
		}
		if err := c.tx.CreateSize(c.tenantID, size); err != nil {
			return fmt.Errorf("failed to create size '%s': %w", row.SizeCode, err)
		}
		if err := c.record(models.EntityItemSizes, models.ChangeOpCreated, size.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

// defaultSizeCode picks a sizeable item's default size the same way
// validation does: explicit default first, then the first referenced code,
// then the first session size scoped to this item.
func (c *committer) defaultSizeCode(row models.ItemRow) string {
	if code := strings.TrimSpace(row.DefaultSizeCode); code != "" {
		return code
	}
	if len(row.SizeCodes) > 0 {
		return row.SizeCodes[0]
	}
	for _, size := range c.data.ItemSizes {
		if size.ItemName != "" && resolver.NormalizeKey(size.ItemName) == resolver.NormalizeKey(row.Name) {
			return size.SizeCode
		}
	}
	return ""
}

// reverseEntry undoes one change log entry against the live catalog. A
// created row that is already gone counts as reversed.
func (s *ImportService) reverseEntry(tenantID string, entry models.ChangeLogEntry) error {
	if entry.Operation == models.ChangeOpCreated {
		var err error
		switch entry.Entity {
		case models.EntityCategories:
			err = s.catalog.DeleteCategoryHard(tenantID, entry.ID)
		case models.EntityItems:
			err = s.catalog.DeleteItemHard(tenantID, entry.ID)
		case models.EntityItemSizes:
			err = s.catalog.DeleteSizeHard(tenantID, entry.ID)
		case models.EntityModifierGroups:
			err = s.catalog.DeleteModifierGroupHard(tenantID, entry.ID)
		case models.EntityModifiers:
			err = s.catalog.DeleteModifierHard(tenantID, entry.ID)
		default:
			return fmt.Errorf("unknown entity kind '%s'", entry.Entity)
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if len(entry.PreviousSnapshot) == 0 {
		return errors.New("change log entry has no snapshot to restore")
	}

	switch entry.Entity {
	case models.EntityCategories:
		var category models.Category
		if err := json.Unmarshal(entry.PreviousSnapshot, &category); err != nil {
			return err
		}
		category.ID = entry.ID
		return s.catalog.SaveCategory(tenantID, &category)
	case models.EntityItems:
		var item models.MenuItem
		if err := json.Unmarshal(entry.PreviousSnapshot, &item); err != nil {
			return err
		}
		item.ID = entry.ID
		return s.catalog.SaveItem(tenantID, &item)
	case models.EntityItemSizes:
		var size models.ItemSize
		if err := json.Unmarshal(entry.PreviousSnapshot, &size); err != nil {
			return err
		}
		size.ID = entry.ID
		return s.catalog.SaveSize(tenantID, &size)
	case models.EntityModifierGroups:
		var group models.ModifierGroup
		if err := json.Unmarshal(entry.PreviousSnapshot, &group); err != nil {
			return err
		}
		group.ID = entry.ID
		return s.catalog.SaveModifierGroup(tenantID, &group)
	case models.EntityModifiers:
		var modifier models.Modifier
		if err := json.Unmarshal(entry.PreviousSnapshot, &modifier); err != nil {
			return err
		}
		modifier.ID = entry.ID
		return s.catalog.SaveModifier(tenantID, &modifier)
	}
	return fmt.Errorf("unknown entity kind '%s'", entry.Entity)
}

// slugify creates a URL-friendly slug from a name
func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}
