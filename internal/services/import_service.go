// Package services implements the import session lifecycle: parsing uploads
// into a staged dataset, draft editing, validation, commit to the live
// catalog, and rollback of a committed session.
package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/events"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/parser"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/resolver"
	"catalog-import-service/internal/validator"
)

var (
	ErrSessionNotFound     = errors.New("import session not found")
	ErrSessionNotEditable  = errors.New("import session is no longer editable")
	ErrSessionNotCommitted = errors.New("import session has not been committed")
	ErrValidationFailed    = errors.New("import session has validation errors")
	ErrEmptyDataset        = errors.New("import session has no staged rows")
	ErrRowNotFound         = errors.New("row index out of range")
	ErrUnknownEntity       = errors.New("unknown entity kind")
	ErrUnknownField        = errors.New("unknown field")
	ErrSessionCommitted    = errors.New("committed sessions must be rolled back before deletion")
)

// ImportService orchestrates import sessions end to end
type ImportService struct {
	sessions  repository.SessionRepositoryInterface
	catalog   repository.CatalogRepositoryInterface
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewImportService creates a new ImportService. publisher may be nil when
// event publishing is disabled.
func NewImportService(sessions repository.SessionRepositoryInterface, catalog repository.CatalogRepositoryInterface, publisher *events.Publisher, logger *logrus.Logger) *ImportService {
	return &ImportService{
		sessions:  sessions,
		catalog:   catalog,
		publisher: publisher,
		logger:    logger.WithField("component", "import-service"),
	}
}

// Parse parses an uploaded file (CSV, XLSX, or a zip of them) into a new
// import session. Structural problems (unreadable file, missing required
// columns) fail the upload without creating a session; per-row problems
// become validation issues on the created session instead.
func (s *ImportService) Parse(ctx context.Context, tenantID, userID, filename string, data []byte, hint models.EntityKind) (*models.ImportSession, error) {
	result, err := parser.ParseUpload(filename, data, hint)
	if err != nil {
		return nil, err
	}

	session := &models.ImportSession{
		TenantID:      tenantID,
		CreatedBy:     userID,
		Status:        models.SessionStatusParsed,
		OriginalFiles: result.Manifest,
		ParsedData:    result.Data,
	}

	if err := s.revalidate(session); err != nil {
		return nil, err
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create import session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"sessionID": session.ID,
		"tenantID":  tenantID,
		"files":     len(result.Manifest),
		"rows":      session.ParsedData.RowCount(),
		"errors":    len(session.ValidationErrors),
		"warnings":  len(session.ValidationWarnings),
	}).Info("Import session created")

	return session, nil
}

// AppendFile parses another upload into an existing session. New rows are
// appended to the staged dataset; nothing already staged is replaced.
func (s *ImportService) AppendFile(ctx context.Context, tenantID string, sessionID uuid.UUID, filename string, data []byte, hint models.EntityKind) (*models.ImportSession, error) {
	result, err := parser.ParseUpload(filename, data, hint)
	if err != nil {
		return nil, err
	}

	return s.updateEditable(ctx, tenantID, sessionID, func(session *models.ImportSession) error {
		session.ParsedData.Merge(&result.Data)
		session.OriginalFiles = append(session.OriginalFiles, result.Manifest...)
		return s.revalidate(session)
	})
}

// GetSession retrieves a session by ID
func (s *ImportService) GetSession(ctx context.Context, tenantID string, sessionID uuid.UUID) (*models.ImportSession, error) {
	session, err := s.sessions.GetByID(ctx, tenantID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// ListSessions lists a tenant's sessions newest first
func (s *ImportService) ListSessions(ctx context.Context, tenantID, status string, limit, offset int) ([]models.ImportSession, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.sessions.List(ctx, tenantID, status, limit, offset)
}

// UpdateSession replaces the staged dataset wholesale and revalidates
func (s *ImportService) UpdateSession(ctx context.Context, tenantID string, sessionID uuid.UUID, req *models.UpdateSessionRequest) (*models.ImportSession, error) {
	return s.updateEditable(ctx, tenantID, sessionID, func(session *models.ImportSession) error {
		if req.ParsedData != nil {
			session.ParsedData = *req.ParsedData
		}
		if req.Metadata != nil {
			session.Metadata = req.Metadata
		}
		session.Status = models.SessionStatusDraftSaved
		return s.revalidate(session)
	})
}

// AddRow appends a manually entered row to the staged dataset
func (s *ImportService) AddRow(ctx context.Context, tenantID string, sessionID uuid.UUID, req *models.AddRowRequest) (*models.ImportSession, error) {
	if !req.Entity.IsValid() {
		return nil, ErrUnknownEntity
	}

	return s.updateEditable(ctx, tenantID, sessionID, func(session *models.ImportSession) error {
		if err := appendRow(&session.ParsedData, req.Entity, req.Fields); err != nil {
			return err
		}
		session.Status = models.SessionStatusDraftSaved
		return s.revalidate(session)
	})
}

// UpdateRow applies field edits to a staged row by entity kind and index
func (s *ImportService) UpdateRow(ctx context.Context, tenantID string, sessionID uuid.UUID, req *models.UpdateRowRequest) (*models.ImportSession, error) {
	if !req.Entity.IsValid() {
		return nil, ErrUnknownEntity
	}

	return s.updateEditable(ctx, tenantID, sessionID, func(session *models.ImportSession) error {
		if err := updateRow(&session.ParsedData, req.Entity, req.Index, req.Fields); err != nil {
			return err
		}
		session.Status = models.SessionStatusDraftSaved
		return s.revalidate(session)
	})
}

// RemoveRow deletes a staged row by entity kind and index
func (s *ImportService) RemoveRow(ctx context.Context, tenantID string, sessionID uuid.UUID, req *models.RemoveRowRequest) (*models.ImportSession, error) {
	if !req.Entity.IsValid() {
		return nil, ErrUnknownEntity
	}

	return s.updateEditable(ctx, tenantID, sessionID, func(session *models.ImportSession) error {
		if err := removeRow(&session.ParsedData, req.Entity, req.Index); err != nil {
			return err
		}
		session.Status = models.SessionStatusDraftSaved
		return s.revalidate(session)
	})
}

// DiscardSession abandons a staged session without touching the catalog
func (s *ImportService) DiscardSession(ctx context.Context, tenantID string, sessionID uuid.UUID) (*models.ImportSession, error) {
	session, err := s.updateEditable(ctx, tenantID, sessionID, func(session *models.ImportSession) error {
		session.Status = models.SessionStatusDiscarded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		_ = s.publisher.PublishImportDiscarded(ctx, session)
	}
	return session, nil
}

// DeleteSession permanently removes a session record. Committed sessions are
// refused: deleting one would destroy the change log rollback depends on.
func (s *ImportService) DeleteSession(ctx context.Context, tenantID string, sessionID uuid.UUID) error {
	session, err := s.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}
	if session.Status == models.SessionStatusSaved {
		return ErrSessionCommitted
	}

	if err := s.sessions.Delete(ctx, tenantID, sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// ClearHistory deletes every finished session for a tenant
func (s *ImportService) ClearHistory(ctx context.Context, tenantID string) (int64, error) {
	return s.sessions.DeleteTerminal(ctx, tenantID)
}

// ErrorsCSV renders the session's current validation errors as a CSV download
func (s *ImportService) ErrorsCSV(ctx context.Context, tenantID string, sessionID uuid.UUID) ([]byte, error) {
	session, err := s.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"file", "entity", "row", "field", "message", "value"})
	for _, issue := range session.ValidationErrors {
		_ = w.Write([]string{
			issue.File,
			string(issue.Entity),
			strconv.Itoa(issue.Row),
			issue.Field,
			issue.Message,
			issue.Value,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// updateEditable loads the session under lock, rejects terminal states, and
// applies fn.
func (s *ImportService) updateEditable(ctx context.Context, tenantID string, sessionID uuid.UUID, fn func(session *models.ImportSession) error) (*models.ImportSession, error) {
	session, err := s.sessions.UpdateLocked(ctx, tenantID, sessionID, func(session *models.ImportSession) error {
		if !session.IsEditable() {
			return ErrSessionNotEditable
		}
		return fn(session)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// revalidate recomputes the session's validation errors and warnings against
// the current staged dataset and live catalog.
func (s *ImportService) revalidate(session *models.ImportSession) error {
	res := resolver.New(session.TenantID, s.catalog, &session.ParsedData)
	validationErrors, warnings, err := validator.Validate(&session.ParsedData, res)
	if err != nil {
		return fmt.Errorf("validation lookup failed: %w", err)
	}
	session.ValidationErrors = validationErrors
	session.ValidationWarnings = warnings
	return nil
}

// Row edit helpers. Manually added rows carry File "manual" and row number 0
// so validation issues still have a stable location to point at.

func appendRow(data *models.ParsedDataset, entity models.EntityKind, fields map[string]string) error {
	switch entity {
	case models.EntityCategories:
		row := models.CategoryRow{File: "manual", IsActive: true}
		if err := setCategoryFields(&row, fields); err != nil {
			return err
		}
		data.Categories = append(data.Categories, row)
	case models.EntityItems:
		row := models.ItemRow{File: "manual", IsActive: true}
		if err := setItemFields(&row, fields); err != nil {
			return err
		}
		data.Items = append(data.Items, row)
	case models.EntityItemSizes:
		row := models.ItemSizeRow{File: "manual", IsActive: true}
		if err := setItemSizeFields(&row, fields); err != nil {
			return err
		}
		data.ItemSizes = append(data.ItemSizes, row)
	case models.EntityModifierGroups:
		row := models.ModifierGroupRow{File: "manual", IsActive: true, DisplayType: string(models.DisplayTypeCheckbox), MaxSelect: 1}
		if err := setModifierGroupFields(&row, fields); err != nil {
			return err
		}
		data.ModifierGroups = append(data.ModifierGroups, row)
	case models.EntityModifiers:
		row := models.ModifierRow{File: "manual", IsActive: true}
		if err := setModifierFields(&row, fields); err != nil {
			return err
		}
		data.Modifiers = append(data.Modifiers, row)
	default:
		return ErrUnknownEntity
	}
	return nil
}

func updateRow(data *models.ParsedDataset, entity models.EntityKind, index int, fields map[string]string) error {
	switch entity {
	case models.EntityCategories:
		if index < 0 || index >= len(data.Categories) {
			return ErrRowNotFound
		}
		return setCategoryFields(&data.Categories[index], fields)
	case models.EntityItems:
		if index < 0 || index >= len(data.Items) {
			return ErrRowNotFound
		}
		return setItemFields(&data.Items[index], fields)
	case models.EntityItemSizes:
		if index < 0 || index >= len(data.ItemSizes) {
			return ErrRowNotFound
		}
		return setItemSizeFields(&data.ItemSizes[index], fields)
	case models.EntityModifierGroups:
		if index < 0 || index >= len(data.ModifierGroups) {
			return ErrRowNotFound
		}
		return setModifierGroupFields(&data.ModifierGroups[index], fields)
	case models.EntityModifiers:
		if index < 0 || index >= len(data.Modifiers) {
			return ErrRowNotFound
		}
		return setModifierFields(&data.Modifiers[index], fields)
	}
	return ErrUnknownEntity
}

func removeRow(data *models.ParsedDataset, entity models.EntityKind, index int) error {
	switch entity {
	case models.EntityCategories:
		if index < 0 || index >= len(data.Categories) {
			return ErrRowNotFound
		}
		data.Categories = append(data.Categories[:index], data.Categories[index+1:]...)
	case models.EntityItems:
		if index < 0 || index >= len(data.Items) {
			return ErrRowNotFound
		}
		data.Items = append(data.Items[:index], data.Items[index+1:]...)
	case models.EntityItemSizes:
		if index < 0 || index >= len(data.ItemSizes) {
			return ErrRowNotFound
		}
		data.ItemSizes = append(data.ItemSizes[:index], data.ItemSizes[index+1:]...)
	case models.EntityModifierGroups:
		if index < 0 || index >= len(data.ModifierGroups) {
			return ErrRowNotFound
		}
		data.ModifierGroups = append(data.ModifierGroups[:index], data.ModifierGroups[index+1:]...)
	case models.EntityModifiers:
		if index < 0 || index >= len(data.Modifiers) {
			return ErrRowNotFound
		}
		data.Modifiers = append(data.Modifiers[:index], data.Modifiers[index+1:]...)
	default:
		return ErrUnknownEntity
	}
	return nil
}

// Field setters use the same column names as the CSV templates so the UI can
// drive manual edits and file fixes with one vocabulary.

func setCategoryFields(row *models.CategoryRow, fields map[string]string) error {
	for field, value := range fields {
		switch field {
		case "name":
			row.Name = strings.TrimSpace(value)
		case "description":
			row.Description = strings.TrimSpace(value)
		case "sort_order":
			row.SortOrder = parseIntField(value, row.SortOrder)
		case "is_active":
			row.IsActive = parseBoolField(value, row.IsActive)
		case "kitchen_section_name":
			row.KitchenSectionName = strings.TrimSpace(value)
		default:
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
	}
	return nil
}

func setItemFields(row *models.ItemRow, fields map[string]string) error {
	for field, value := range fields {
		switch field {
		case "name":
			row.Name = strings.TrimSpace(value)
		case "category_name":
			row.CategoryName = strings.TrimSpace(value)
		case "description":
			row.Description = strings.TrimSpace(value)
		case "sort_order":
			row.SortOrder = parseIntField(value, row.SortOrder)
		case "is_active":
			row.IsActive = parseBoolField(value, row.IsActive)
		case "is_sizeable":
			row.IsSizeable = parseBoolField(value, row.IsSizeable)
		case "base_price":
			row.BasePrice = strings.TrimSpace(value)
		case "size_codes":
			row.SizeCodes = splitListField(value)
		case "default_size_code":
			row.DefaultSizeCode = strings.TrimSpace(value)
		case "modifier_groups":
			row.ModifierGroups = splitListField(value)
		default:
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
	}
	return nil
}

func setItemSizeFields(row *models.ItemSizeRow, fields map[string]string) error {
	for field, value := range fields {
		switch field {
		case "name":
			row.Name = strings.TrimSpace(value)
		case "size_code":
			row.SizeCode = strings.TrimSpace(value)
		case "item_name":
			row.ItemName = strings.TrimSpace(value)
		case "price":
			row.Price = strings.TrimSpace(value)
		case "display_order":
			row.DisplayOrder = parseIntField(value, row.DisplayOrder)
		case "is_active":
			row.IsActive = parseBoolField(value, row.IsActive)
		default:
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
	}
	return nil
}

func setModifierGroupFields(row *models.ModifierGroupRow, fields map[string]string) error {
	for field, value := range fields {
		switch field {
		case "name":
			row.Name = strings.TrimSpace(value)
		case "display_name":
			row.DisplayName = strings.TrimSpace(value)
		case "display_type":
			row.DisplayType = strings.ToUpper(strings.TrimSpace(value))
		case "min_select":
			row.MinSelect = parseIntField(value, row.MinSelect)
		case "max_select":
			row.MaxSelect = parseIntField(value, row.MaxSelect)
		case "sort_order":
			row.SortOrder = parseIntField(value, row.SortOrder)
		case "is_active":
			row.IsActive = parseBoolField(value, row.IsActive)
		default:
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
	}
	return nil
}

func setModifierFields(row *models.ModifierRow, fields map[string]string) error {
	for field, value := range fields {
		switch field {
		case "group_key":
			row.GroupKey = strings.TrimSpace(value)
		case "modifier_key":
			row.ModifierKey = strings.TrimSpace(value)
		case "name":
			row.Name = strings.TrimSpace(value)
		case "max_quantity":
			row.MaxQuantity = parseIntPtrField(value, row.MaxQuantity)
		case "is_default":
			row.IsDefault = parseBoolField(value, row.IsDefault)
		case "display_order":
			row.DisplayOrder = parseIntField(value, row.DisplayOrder)
		case "is_active":
			row.IsActive = parseBoolField(value, row.IsActive)
		default:
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
	}
	return nil
}

func parseBoolField(value string, current bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return current
}

func parseIntField(value string, current int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return n
	}
	return current
}

// parseIntPtrField clears the value on a blank edit, keeping absent
// distinguishable from an explicit number
func parseIntPtrField(value string, current *int) *int {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return &n
	}
	return current
}

func splitListField(value string) []string {
	parts := strings.Split(value, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// timePtr returns a pointer to t
func timePtr(t time.Time) *time.Time {
	return &t
}
