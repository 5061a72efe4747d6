package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/resolver"
)

// MockSessionRepository is a mock implementation of SessionRepositoryInterface
type MockSessionRepository struct {
	mock.Mock
}

// Ensure MockSessionRepository implements the interface
var _ repository.SessionRepositoryInterface = (*MockSessionRepository)(nil)

func (m *MockSessionRepository) Create(ctx context.Context, session *models.ImportSession) error {
	args := m.Called(ctx, session)
	if args.Error(0) == nil {
		session.ID = uuid.New()
		session.CreatedAt = time.Now()
	}
	return args.Error(0)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.ImportSession, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportSession), args.Error(1)
}

func (m *MockSessionRepository) List(ctx context.Context, tenantID string, status string, limit, offset int) ([]models.ImportSession, int64, error) {
	args := m.Called(ctx, tenantID, status, limit, offset)
	return args.Get(0).([]models.ImportSession), args.Get(1).(int64), args.Error(2)
}

func (m *MockSessionRepository) Update(ctx context.Context, session *models.ImportSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

// UpdateLocked runs fn against the configured session, mirroring the real
// repository's transactional load-mutate-save cycle.
func (m *MockSessionRepository) UpdateLocked(ctx context.Context, tenantID string, id uuid.UUID, fn func(session *models.ImportSession) error) (*models.ImportSession, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	session := args.Get(0).(*models.ImportSession)
	if err := fn(session); err != nil {
		return nil, err
	}
	return session, args.Error(1)
}

func (m *MockSessionRepository) Delete(ctx context.Context, tenantID string, id uuid.UUID) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

func (m *MockSessionRepository) DeleteTerminal(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

// fakeCatalog is an in-memory stand-in for the live catalog tables. It keeps
// the same copy-on-read semantics as the gorm repository so commit snapshots
// capture pre-update state.
type fakeCatalog struct {
	categories map[uuid.UUID]models.Category
	items      map[uuid.UUID]models.MenuItem
	sizes      map[uuid.UUID]models.ItemSize
	groups     map[uuid.UUID]models.ModifierGroup
	modifiers  map[uuid.UUID]models.Modifier
	sections   map[uuid.UUID]models.KitchenSection
}

var _ repository.CatalogRepositoryInterface = (*fakeCatalog)(nil)

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		categories: make(map[uuid.UUID]models.Category),
		items:      make(map[uuid.UUID]models.MenuItem),
		sizes:      make(map[uuid.UUID]models.ItemSize),
		groups:     make(map[uuid.UUID]models.ModifierGroup),
		modifiers:  make(map[uuid.UUID]models.Modifier),
		sections:   make(map[uuid.UUID]models.KitchenSection),
	}
}

func (f *fakeCatalog) Transaction(fn func(tx repository.CatalogRepositoryInterface) error) error {
	return fn(f)
}

func (f *fakeCatalog) InvalidateTenant(ctx context.Context, tenantID string) {}

func (f *fakeCatalog) CategoryIDByName(tenantID, name string) (uuid.UUID, bool, error) {
	for id, c := range f.categories {
		if resolver.NormalizeKey(c.Name) == resolver.NormalizeKey(name) {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (f *fakeCatalog) KitchenSectionIDByName(tenantID, name string) (uuid.UUID, bool, error) {
	for id, s := range f.sections {
		if resolver.NormalizeKey(s.Name) == resolver.NormalizeKey(name) {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (f *fakeCatalog) ItemIDByName(tenantID, name string) (uuid.UUID, bool, error) {
	for id, i := range f.items {
		if resolver.NormalizeKey(i.Name) == resolver.NormalizeKey(name) {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (f *fakeCatalog) ItemSizeIDByCode(tenantID, code string) (uuid.UUID, bool, error) {
	for id, s := range f.sizes {
		if resolver.NormalizeKey(s.SizeCode) == resolver.NormalizeKey(code) {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (f *fakeCatalog) ModifierGroupIDByKey(tenantID, key string) (uuid.UUID, bool, error) {
	for id, g := range f.groups {
		if resolver.NormalizeKey(g.GroupKey) == resolver.NormalizeKey(key) {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (f *fakeCatalog) FindCategoryByName(tenantID, name string) (*models.Category, error) {
	id, ok, _ := f.CategoryIDByName(tenantID, name)
	if !ok {
		return nil, nil
	}
	c := f.categories[id]
	return &c, nil
}

func (f *fakeCatalog) CreateCategory(tenantID string, category *models.Category) error {
	category.ID = uuid.New()
	category.TenantID = tenantID
	f.categories[category.ID] = *category
	return nil
}

func (f *fakeCatalog) SaveCategory(tenantID string, category *models.Category) error {
	f.categories[category.ID] = *category
	return nil
}

func (f *fakeCatalog) DeleteCategoryHard(tenantID string, id uuid.UUID) error {
	if _, ok := f.categories[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.categories, id)
	return nil
}

func (f *fakeCatalog) GetCategoryByID(tenantID string, id uuid.UUID) (*models.Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (f *fakeCatalog) FindItemByName(tenantID, name string) (*models.MenuItem, error) {
	id, ok, _ := f.ItemIDByName(tenantID, name)
	if !ok {
		return nil, nil
	}
	i := f.items[id]
	return &i, nil
}

func (f *fakeCatalog) CreateItem(tenantID string, item *models.MenuItem) error {
	item.ID = uuid.New()
	item.TenantID = tenantID
	f.items[item.ID] = *item
	return nil
}

func (f *fakeCatalog) SaveItem(tenantID string, item *models.MenuItem) error {
	f.items[item.ID] = *item
	return nil
}

func (f *fakeCatalog) DeleteItemHard(tenantID string, id uuid.UUID) error {
	if _, ok := f.items[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeCatalog) GetItemByID(tenantID string, id uuid.UUID) (*models.MenuItem, error) {
	i, ok := f.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &i, nil
}

func (f *fakeCatalog) FindSizeByCode(tenantID, code string, itemID *uuid.UUID) (*models.ItemSize, error) {
	for id, s := range f.sizes {
		if resolver.NormalizeKey(s.SizeCode) != resolver.NormalizeKey(code) {
			continue
		}
		if itemID == nil && s.ItemID != nil {
			continue
		}
		if itemID != nil && (s.ItemID == nil || *s.ItemID != *itemID) {
			continue
		}
		found := f.sizes[id]
		return &found, nil
	}
	return nil, nil
}

func (f *fakeCatalog) CreateSize(tenantID string, size *models.ItemSize) error {
	size.ID = uuid.New()
	size.TenantID = tenantID
	f.sizes[size.ID] = *size
	return nil
}

func (f *fakeCatalog) SaveSize(tenantID string, size *models.ItemSize) error {
	f.sizes[size.ID] = *size
	return nil
}

func (f *fakeCatalog) DeleteSizeHard(tenantID string, id uuid.UUID) error {
	if _, ok := f.sizes[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.sizes, id)
	return nil
}

func (f *fakeCatalog) GetSizeByID(tenantID string, id uuid.UUID) (*models.ItemSize, error) {
	s, ok := f.sizes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &s, nil
}

func (f *fakeCatalog) FindModifierGroupByKey(tenantID, key string) (*models.ModifierGroup, error) {
	id, ok, _ := f.ModifierGroupIDByKey(tenantID, key)
	if !ok {
		return nil, nil
	}
	g := f.groups[id]
	return &g, nil
}

func (f *fakeCatalog) CreateModifierGroup(tenantID string, group *models.ModifierGroup) error {
	group.ID = uuid.New()
	group.TenantID = tenantID
	f.groups[group.ID] = *group
	return nil
}

func (f *fakeCatalog) SaveModifierGroup(tenantID string, group *models.ModifierGroup) error {
	f.groups[group.ID] = *group
	return nil
}

func (f *fakeCatalog) DeleteModifierGroupHard(tenantID string, id uuid.UUID) error {
	if _, ok := f.groups[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.groups, id)
	return nil
}

func (f *fakeCatalog) GetModifierGroupByID(tenantID string, id uuid.UUID) (*models.ModifierGroup, error) {
	g, ok := f.groups[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &g, nil
}

func (f *fakeCatalog) FindModifierByKey(tenantID string, groupID uuid.UUID, modifierKey string) (*models.Modifier, error) {
	for id, m := range f.modifiers {
		if m.GroupID == groupID && resolver.NormalizeKey(m.ModifierKey) == resolver.NormalizeKey(modifierKey) {
			found := f.modifiers[id]
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) CreateModifier(tenantID string, modifier *models.Modifier) error {
	modifier.ID = uuid.New()
	modifier.TenantID = tenantID
	f.modifiers[modifier.ID] = *modifier
	return nil
}

func (f *fakeCatalog) SaveModifier(tenantID string, modifier *models.Modifier) error {
	f.modifiers[modifier.ID] = *modifier
	return nil
}

func (f *fakeCatalog) DeleteModifierHard(tenantID string, id uuid.UUID) error {
	if _, ok := f.modifiers[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.modifiers, id)
	return nil
}

func (f *fakeCatalog) GetModifierByID(tenantID string, id uuid.UUID) (*models.Modifier, error) {
	m, ok := f.modifiers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &m, nil
}

func newTestService(sessions repository.SessionRepositoryInterface, catalog repository.CatalogRepositoryInterface) *ImportService {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &ImportService{
		sessions: sessions,
		catalog:  catalog,
		logger:   logger.WithField("component", "import-service"),
	}
}

func stagedSession(status models.SessionStatus, data models.ParsedDataset) *models.ImportSession {
	return &models.ImportSession{
		ID:         uuid.New(),
		TenantID:   "tenant-1",
		CreatedBy:  "user-1",
		Status:     status,
		ParsedData: data,
	}
}

// fullDataset stages one row of every entity kind, internally consistent
func intPtr(n int) *int {
	return &n
}

func fullDataset() models.ParsedDataset {
	return models.ParsedDataset{
		Categories: []models.CategoryRow{
			{File: "categories.csv", Row: 2, Name: "Pizza", SortOrder: 1, IsActive: true},
		},
		ModifierGroups: []models.ModifierGroupRow{
			{File: "modifier_groups.csv", Row: 2, Name: "Toppings", DisplayType: "CHECKBOX", MinSelect: 0, MaxSelect: 5, IsActive: true},
		},
		Modifiers: []models.ModifierRow{
			{File: "modifiers.csv", Row: 2, GroupKey: "toppings", ModifierKey: "extra-cheese", Name: "Extra Cheese", MaxQuantity: intPtr(2), IsActive: true},
		},
		Items: []models.ItemRow{
			{File: "items.csv", Row: 2, Name: "Margherita", CategoryName: "Pizza", IsSizeable: true,
				SizeCodes: nil, ModifierGroups: []string{"toppings"}, IsActive: true},
		},
		ItemSizes: []models.ItemSizeRow{
			{File: "item_sizes.csv", Row: 2, Name: "Medium", SizeCode: "M", ItemName: "Margherita", Price: "12.00", IsActive: true},
		},
	}
}

// ===========================================
// Parse / Append Tests
// ===========================================

func TestParseCreatesSession(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	mockSessions.On("Create", ctx, mock.AnythingOfType("*models.ImportSession")).Return(nil)

	csvData := "name,description\nPizza,Stone-baked\nSides,\n"
	session, err := service.Parse(ctx, "tenant-1", "user-1", "categories.csv", []byte(csvData), "")

	assert.NoError(t, err)
	assert.NotNil(t, session)
	assert.Equal(t, models.SessionStatusParsed, session.Status)
	assert.Len(t, session.ParsedData.Categories, 2)
	assert.Len(t, session.OriginalFiles, 1)
	assert.Empty(t, session.ValidationErrors)
	assert.NotNil(t, session.ValidationWarnings)
	mockSessions.AssertExpectations(t)
}

func TestParseRecordsValidationErrors(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	mockSessions.On("Create", ctx, mock.AnythingOfType("*models.ImportSession")).Return(nil)

	// Items referencing a category that exists neither in the catalog nor in
	// this upload still create a session; the problems become issues.
	csvData := "name,category_name,base_price\nBurger,Mains,\n"
	session, err := service.Parse(ctx, "tenant-1", "user-1", "items.csv", []byte(csvData), "")

	assert.NoError(t, err)
	assert.NotEmpty(t, session.ValidationErrors)
	fields := make(map[string]bool)
	for _, issue := range session.ValidationErrors {
		fields[issue.Field] = true
	}
	assert.True(t, fields["category_name"])
	assert.True(t, fields["base_price"])
}

func TestParseStructuralErrorCreatesNoSession(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	_, err := service.Parse(ctx, "tenant-1", "user-1", "categories.csv", []byte("description\nonly\n"), "")

	assert.Error(t, err)
	mockSessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAppendFileAccumulatesRows(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	session := stagedSession(models.SessionStatusParsed, models.ParsedDataset{
		Categories: []models.CategoryRow{{File: "categories.csv", Row: 2, Name: "Pizza"}},
	})
	session.OriginalFiles = models.FileManifest{{Filename: "categories.csv", Entity: models.EntityCategories, RowCount: 1}}

	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	csvData := "name,category_name,base_price\nMargherita,Pizza,12.00\n"
	updated, err := service.AppendFile(ctx, "tenant-1", session.ID, "items.csv", []byte(csvData), "")

	assert.NoError(t, err)
	assert.Len(t, updated.ParsedData.Categories, 1, "existing rows are kept")
	assert.Len(t, updated.ParsedData.Items, 1)
	assert.Len(t, updated.OriginalFiles, 2)
	assert.Empty(t, updated.ValidationErrors, "item resolves against the staged category")
}

func TestAppendFileRejectsTerminalSession(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	session := stagedSession(models.SessionStatusDiscarded, models.ParsedDataset{})
	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	_, err := service.AppendFile(ctx, "tenant-1", session.ID, "categories.csv", []byte("name\nPizza\n"), "")

	assert.ErrorIs(t, err, ErrSessionNotEditable)
}

// ===========================================
// Draft Edit Tests
// ===========================================

func TestAddRowSetsManualOrigin(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	session := stagedSession(models.SessionStatusParsed, models.ParsedDataset{})
	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	updated, err := service.AddRow(ctx, "tenant-1", session.ID, &models.AddRowRequest{
		Entity: models.EntityCategories,
		Fields: map[string]string{"name": "Drinks", "sort_order": "4"},
	})

	assert.NoError(t, err)
	assert.Len(t, updated.ParsedData.Categories, 1)
	assert.Equal(t, "Drinks", updated.ParsedData.Categories[0].Name)
	assert.Equal(t, 4, updated.ParsedData.Categories[0].SortOrder)
	assert.Equal(t, "manual", updated.ParsedData.Categories[0].File)
	assert.True(t, updated.ParsedData.Categories[0].IsActive)
	assert.Equal(t, models.SessionStatusDraftSaved, updated.Status)
}

func TestUpdateRowRejectsUnknownField(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	session := stagedSession(models.SessionStatusParsed, models.ParsedDataset{
		Categories: []models.CategoryRow{{File: "categories.csv", Row: 2, Name: "Pizza"}},
	})
	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	_, err := service.UpdateRow(ctx, "tenant-1", session.ID, &models.UpdateRowRequest{
		Entity: models.EntityCategories,
		Index:  0,
		Fields: map[string]string{"colour": "red"},
	})

	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestUpdateRowOutOfRange(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	session := stagedSession(models.SessionStatusParsed, models.ParsedDataset{})
	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	_, err := service.UpdateRow(ctx, "tenant-1", session.ID, &models.UpdateRowRequest{
		Entity: models.EntityItems,
		Index:  3,
		Fields: map[string]string{"name": "X"},
	})

	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestRemoveRowRevalidates(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	// Removing the staged category breaks the item's reference
	session := stagedSession(models.SessionStatusParsed, models.ParsedDataset{
		Categories: []models.CategoryRow{{File: "categories.csv", Row: 2, Name: "Pizza"}},
		Items: []models.ItemRow{
			{File: "items.csv", Row: 2, Name: "Margherita", CategoryName: "Pizza", BasePrice: "12.00"},
		},
	})
	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	updated, err := service.RemoveRow(ctx, "tenant-1", session.ID, &models.RemoveRowRequest{
		Entity: models.EntityCategories,
		Index:  0,
	})

	assert.NoError(t, err)
	assert.Empty(t, updated.ParsedData.Categories)
	assert.NotEmpty(t, updated.ValidationErrors)
	assert.Equal(t, "category_name", updated.ValidationErrors[0].Field)
}

// ===========================================
// Commit Tests
// ===========================================

func TestFinalSaveBlockedByValidationErrors(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	catalog := newFakeCatalog()
	service := newTestService(mockSessions, catalog)

	session := stagedSession(models.SessionStatusParsed, models.ParsedDataset{
		Items: []models.ItemRow{
			{File: "items.csv", Row: 2, Name: "Burger", CategoryName: "Nowhere", BasePrice: "9.00"},
		},
	})
	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	_, err := service.FinalSave(ctx, "tenant-1", session.ID)

	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.Empty(t, catalog.items, "nothing is written when validation fails")
}

func TestFinalSaveRejectsEmptySession(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	session := stagedSession(models.SessionStatusParsed, models.ParsedDataset{})
	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	_, err := service.FinalSave(ctx, "tenant-1", session.ID)

	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestFinalSaveCommitsInDependencyOrder(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	catalog := newFakeCatalog()
	service := newTestService(mockSessions, catalog)

	session := stagedSession(models.SessionStatusParsed, fullDataset())
	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	saved, err := service.FinalSave(ctx, "tenant-1", session.ID)

	assert.NoError(t, err)
	assert.Equal(t, models.SessionStatusSaved, saved.Status)
	assert.NotNil(t, saved.SavedAt)

	assert.Len(t, saved.AppliedChangeLog, 5)
	order := make([]models.EntityKind, 0, len(saved.AppliedChangeLog))
	for _, entry := range saved.AppliedChangeLog {
		assert.Equal(t, models.ChangeOpCreated, entry.Operation)
		assert.Empty(t, entry.PreviousSnapshot)
		order = append(order, entry.Entity)
	}
	assert.Equal(t, []models.EntityKind{
		models.EntityCategories,
		models.EntityModifierGroups,
		models.EntityModifiers,
		models.EntityItems,
		models.EntityItemSizes,
	}, order)

	assert.Len(t, catalog.categories, 1)
	assert.Len(t, catalog.groups, 1)
	assert.Len(t, catalog.modifiers, 1)
	assert.Len(t, catalog.items, 1)
	assert.Len(t, catalog.sizes, 1)

	item, _ := catalog.FindItemByName("tenant-1", "Margherita")
	assert.NotNil(t, item)
	assert.True(t, item.IsSizeable)
	assert.Nil(t, item.BasePrice)
	if assert.NotNil(t, item.DefaultSizeCode) {
		assert.Equal(t, "M", *item.DefaultSizeCode, "default falls back to the item's staged size")
	}
	assert.Equal(t, []string{"toppings"}, []string(item.ModifierGroups))

	size, _ := catalog.FindSizeByCode("tenant-1", "M", &item.ID)
	assert.NotNil(t, size, "item-scoped size is linked to the created item")
}

func TestFinalSaveUpdatesExistingWithSnapshot(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	catalog := newFakeCatalog()
	service := newTestService(mockSessions, catalog)

	oldDescription := "Old school pies"
	existing := &models.Category{Name: "Pizza", Slug: "pizza", Description: &oldDescription, SortOrder: 9}
	assert.NoError(t, catalog.CreateCategory("tenant-1", existing))

	session := stagedSession(models.SessionStatusParsed, models.ParsedDataset{
		Categories: []models.CategoryRow{
			{File: "categories.csv", Row: 2, Name: "Pizza", Description: "Stone-baked", SortOrder: 1, IsActive: true},
		},
	})
	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	saved, err := service.FinalSave(ctx, "tenant-1", session.ID)

	assert.NoError(t, err)
	assert.Len(t, saved.AppliedChangeLog, 1)
	entry := saved.AppliedChangeLog[0]
	assert.Equal(t, models.ChangeOpUpdated, entry.Operation)
	assert.Equal(t, existing.ID, entry.ID)
	assert.NotEmpty(t, entry.PreviousSnapshot, "updates capture the pre-commit state")

	updated, _ := catalog.GetCategoryByID("tenant-1", existing.ID)
	assert.Equal(t, 1, updated.SortOrder)
	if assert.NotNil(t, updated.Description) {
		assert.Equal(t, "Stone-baked", *updated.Description)
	}
	assert.Len(t, catalog.categories, 1, "upsert never duplicates")
}

func TestFinalSaveRejectsCommittedSession(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	session := stagedSession(models.SessionStatusSaved, fullDataset())
	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	_, err := service.FinalSave(ctx, "tenant-1", session.ID)

	assert.ErrorIs(t, err, ErrSessionNotEditable)
}

func TestFinalSaveNotFound(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	id := uuid.New()
	mockSessions.On("UpdateLocked", ctx, "tenant-1", id).Return(nil, repository.ErrNotFound)

	_, err := service.FinalSave(ctx, "tenant-1", id)

	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// ===========================================
// Rollback Tests
// ===========================================

func TestRollbackReversesCommit(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	catalog := newFakeCatalog()
	service := newTestService(mockSessions, catalog)

	oldDescription := "Old school pies"
	existing := &models.Category{Name: "Pizza", Slug: "pizza", Description: &oldDescription, SortOrder: 9}
	assert.NoError(t, catalog.CreateCategory("tenant-1", existing))

	data := fullDataset()
	session := stagedSession(models.SessionStatusParsed, data)
	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	saved, err := service.FinalSave(ctx, "tenant-1", session.ID)
	assert.NoError(t, err)
	// One updated (pre-existing category) and four created entries
	assert.Len(t, saved.AppliedChangeLog, 5)

	rolledBack, result, err := service.RollbackSession(ctx, "tenant-1", session.ID)

	assert.NoError(t, err)
	assert.Equal(t, models.SessionStatusRolledBack, rolledBack.Status)
	assert.NotNil(t, rolledBack.RolledBackAt)
	assert.Equal(t, 5, result.Reversed)
	assert.Empty(t, result.Failed)

	// Created rows are gone
	assert.Empty(t, catalog.items)
	assert.Empty(t, catalog.sizes)
	assert.Empty(t, catalog.groups)
	assert.Empty(t, catalog.modifiers)

	// The updated category is restored to its pre-commit state
	restored, _ := catalog.GetCategoryByID("tenant-1", existing.ID)
	assert.NotNil(t, restored)
	assert.Equal(t, 9, restored.SortOrder)
	if assert.NotNil(t, restored.Description) {
		assert.Equal(t, "Old school pies", *restored.Description)
	}
}

func TestRollbackToleratesAlreadyDeletedRows(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	catalog := newFakeCatalog()
	service := newTestService(mockSessions, catalog)

	session := stagedSession(models.SessionStatusParsed, models.ParsedDataset{
		Categories: []models.CategoryRow{
			{File: "categories.csv", Row: 2, Name: "Pizza", IsActive: true},
		},
	})
	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	saved, err := service.FinalSave(ctx, "tenant-1", session.ID)
	assert.NoError(t, err)

	// Someone removed the created category between commit and rollback
	assert.NoError(t, catalog.DeleteCategoryHard("tenant-1", saved.AppliedChangeLog[0].ID))

	_, result, err := service.RollbackSession(ctx, "tenant-1", session.ID)

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Reversed, "an already-gone created row counts as reversed")
	assert.Empty(t, result.Failed)
}

func TestRollbackRequiresCommittedSession(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	session := stagedSession(models.SessionStatusParsed, fullDataset())
	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	_, _, err := service.RollbackSession(ctx, "tenant-1", session.ID)

	assert.ErrorIs(t, err, ErrSessionNotCommitted)
}

// ===========================================
// Lifecycle Tests
// ===========================================

func TestDiscardSession(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	session := stagedSession(models.SessionStatusDraftSaved, fullDataset())
	mockSessions.On("UpdateLocked", ctx, "tenant-1", session.ID).Return(session, nil)

	discarded, err := service.DiscardSession(ctx, "tenant-1", session.ID)

	assert.NoError(t, err)
	assert.Equal(t, models.SessionStatusDiscarded, discarded.Status)
}

func TestDeleteSessionRefusesCommitted(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	session := stagedSession(models.SessionStatusSaved, fullDataset())
	mockSessions.On("GetByID", ctx, "tenant-1", session.ID).Return(session, nil)

	err := service.DeleteSession(ctx, "tenant-1", session.ID)

	assert.ErrorIs(t, err, ErrSessionCommitted)
	mockSessions.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteSessionRemovesDraft(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	session := stagedSession(models.SessionStatusDraftSaved, fullDataset())
	mockSessions.On("GetByID", ctx, "tenant-1", session.ID).Return(session, nil)
	mockSessions.On("Delete", ctx, "tenant-1", session.ID).Return(nil)

	err := service.DeleteSession(ctx, "tenant-1", session.ID)

	assert.NoError(t, err)
	mockSessions.AssertExpectations(t)
}

func TestListSessionsClampsLimit(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	mockSessions.On("List", ctx, "tenant-1", "", 20, 0).Return([]models.ImportSession{}, int64(0), nil)

	_, _, err := service.ListSessions(ctx, "tenant-1", "", 0, -5)

	assert.NoError(t, err)
	mockSessions.AssertExpectations(t)
}

func TestErrorsCSV(t *testing.T) {
	ctx := context.Background()
	mockSessions := new(MockSessionRepository)
	service := newTestService(mockSessions, newFakeCatalog())

	session := stagedSession(models.SessionStatusParsed, models.ParsedDataset{})
	session.ValidationErrors = models.IssueList{
		{File: "items.csv", Entity: models.EntityItems, Row: 3, Field: "base_price",
			Message: "base_price must be greater than 0 for non-sizeable items", Value: "-1"},
	}
	mockSessions.On("GetByID", ctx, "tenant-1", session.ID).Return(session, nil)

	data, err := service.ErrorsCSV(ctx, "tenant-1", session.ID)

	assert.NoError(t, err)
	csv := string(data)
	assert.Contains(t, csv, "file,entity,row,field,message,value")
	assert.Contains(t, csv, "items.csv,items,3,base_price,")
}
