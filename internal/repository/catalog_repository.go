package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/resolver"
)

// Lookup caches are short-lived: a commit invalidates the whole tenant, and
// stale name->id entries between imports are harmless (ids never change).
const LookupCacheTTL = 10 * time.Minute

// CatalogRepositoryInterface defines the live-catalog operations the import
// service depends on. *CatalogRepository implements it over gorm; service
// tests substitute an in-memory fake.
type CatalogRepositoryInterface interface {
	resolver.CatalogLookup

	Transaction(fn func(tx CatalogRepositoryInterface) error) error
	InvalidateTenant(ctx context.Context, tenantID string)

	FindCategoryByName(tenantID, name string) (*models.Category, error)
	CreateCategory(tenantID string, category *models.Category) error
	SaveCategory(tenantID string, category *models.Category) error
	DeleteCategoryHard(tenantID string, id uuid.UUID) error
	GetCategoryByID(tenantID string, id uuid.UUID) (*models.Category, error)

	FindItemByName(tenantID, name string) (*models.MenuItem, error)
	CreateItem(tenantID string, item *models.MenuItem) error
	SaveItem(tenantID string, item *models.MenuItem) error
	DeleteItemHard(tenantID string, id uuid.UUID) error
	GetItemByID(tenantID string, id uuid.UUID) (*models.MenuItem, error)

	FindSizeByCode(tenantID, code string, itemID *uuid.UUID) (*models.ItemSize, error)
	CreateSize(tenantID string, size *models.ItemSize) error
	SaveSize(tenantID string, size *models.ItemSize) error
	DeleteSizeHard(tenantID string, id uuid.UUID) error
	GetSizeByID(tenantID string, id uuid.UUID) (*models.ItemSize, error)

	FindModifierGroupByKey(tenantID, key string) (*models.ModifierGroup, error)
	CreateModifierGroup(tenantID string, group *models.ModifierGroup) error
	SaveModifierGroup(tenantID string, group *models.ModifierGroup) error
	DeleteModifierGroupHard(tenantID string, id uuid.UUID) error
	GetModifierGroupByID(tenantID string, id uuid.UUID) (*models.ModifierGroup, error)

	FindModifierByKey(tenantID string, groupID uuid.UUID, modifierKey string) (*models.Modifier, error)
	CreateModifier(tenantID string, modifier *models.Modifier) error
	SaveModifier(tenantID string, modifier *models.Modifier) error
	DeleteModifierHard(tenantID string, id uuid.UUID) error
	GetModifierByID(tenantID string, id uuid.UUID) (*models.Modifier, error)
}

// CatalogRepository reads and writes the live catalog tables. It backs both
// the name/key resolution used while a session is staged and the entity
// writes performed when a session is committed or rolled back.
type CatalogRepository struct {
	db    *gorm.DB
	redis *redis.Client
	cache *cache.CacheLayer
}

func NewCatalogRepository(db *gorm.DB, redis *redis.Client) *CatalogRepository {
	repo := &CatalogRepository{
		db:    db,
		redis: redis,
	}

	if redis != nil {
		cacheConfig := cache.CacheConfig{
			L1Enabled:  true,
			L1MaxItems: 5000,
			L1TTL:      30 * time.Second,
			DefaultTTL: LookupCacheTTL,
			KeyPrefix:  "tesseract:catalog-import:",
		}
		repo.cache = cache.NewCacheLayerFromClient(redis, cacheConfig)
	}

	return repo
}

// WithTx returns a repository bound to the given transaction. The cache is
// intentionally dropped: reads inside a commit must see the transaction's
// own writes.
func (r *CatalogRepository) WithTx(tx *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: tx, redis: r.redis}
}

// Transaction runs fn against a transaction-bound repository. A non-nil
// error from fn rolls back every write fn performed.
func (r *CatalogRepository) Transaction(fn func(tx CatalogRepositoryInterface) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

// InvalidateTenant drops every cached lookup for a tenant. Called after a
// commit or rollback changes the live catalog.
func (r *CatalogRepository) InvalidateTenant(ctx context.Context, tenantID string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.DeletePattern(ctx, fmt.Sprintf("lookup:*:%s:*", tenantID))
}

// cachedLookup resolves a natural key to an id via the cache layer. Misses
// are not cached so that a row created later in the same session is found.
func (r *CatalogRepository) cachedLookup(kind, tenantID, key string, query func() (uuid.UUID, bool, error)) (uuid.UUID, bool, error) {
	if r.cache == nil {
		return query()
	}

	ctx := context.Background()
	cacheKey := fmt.Sprintf("lookup:%s:%s:%s", kind, tenantID, key)

	var cached uuid.UUID
	if err := r.cache.GetOrSetJSON(ctx, cacheKey, &cached, LookupCacheTTL, func() (any, error) {
		id, found, err := query()
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, gorm.ErrRecordNotFound
		}
		return id, nil
	}); err != nil {
		if err == gorm.ErrRecordNotFound {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	return cached, true, nil
}

// Lookup operations (resolver.CatalogLookup)

func (r *CatalogRepository) CategoryIDByName(tenantID, name string) (uuid.UUID, bool, error) {
	return r.cachedLookup("category", tenantID, name, func() (uuid.UUID, bool, error) {
		var category models.Category
		err := r.db.Where("tenant_id = ? AND LOWER(name) = LOWER(?)", tenantID, name).First(&category).Error
		if err == gorm.ErrRecordNotFound {
			return uuid.Nil, false, nil
		}
		if err != nil {
			return uuid.Nil, false, err
		}
		return category.ID, true, nil
	})
}

func (r *CatalogRepository) KitchenSectionIDByName(tenantID, name string) (uuid.UUID, bool, error) {
	return r.cachedLookup("kitchen_section", tenantID, name, func() (uuid.UUID, bool, error) {
		var section models.KitchenSection
		err := r.db.Where("tenant_id = ? AND LOWER(name) = LOWER(?)", tenantID, name).First(&section).Error
		if err == gorm.ErrRecordNotFound {
			return uuid.Nil, false, nil
		}
		if err != nil {
			return uuid.Nil, false, err
		}
		return section.ID, true, nil
	})
}

func (r *CatalogRepository) ItemIDByName(tenantID, name string) (uuid.UUID, bool, error) {
	return r.cachedLookup("item", tenantID, name, func() (uuid.UUID, bool, error) {
		var item models.MenuItem
		err := r.db.Where("tenant_id = ? AND LOWER(name) = LOWER(?)", tenantID, name).First(&item).Error
		if err == gorm.ErrRecordNotFound {
			return uuid.Nil, false, nil
		}
		if err != nil {
			return uuid.Nil, false, err
		}
		return item.ID, true, nil
	})
}

func (r *CatalogRepository) ItemSizeIDByCode(tenantID, code string) (uuid.UUID, bool, error) {
	return r.cachedLookup("item_size", tenantID, code, func() (uuid.UUID, bool, error) {
		var size models.ItemSize
		err := r.db.Where("tenant_id = ? AND LOWER(size_code) = LOWER(?)", tenantID, code).First(&size).Error
		if err == gorm.ErrRecordNotFound {
			return uuid.Nil, false, nil
		}
		if err != nil {
			return uuid.Nil, false, err
		}
		return size.ID, true, nil
	})
}

func (r *CatalogRepository) ModifierGroupIDByKey(tenantID, key string) (uuid.UUID, bool, error) {
	return r.cachedLookup("modifier_group", tenantID, key, func() (uuid.UUID, bool, error) {
		var group models.ModifierGroup
		err := r.db.Where("tenant_id = ? AND LOWER(group_key) = LOWER(?)", tenantID, key).First(&group).Error
		if err == gorm.ErrRecordNotFound {
			return uuid.Nil, false, nil
		}
		if err != nil {
			return uuid.Nil, false, err
		}
		return group.ID, true, nil
	})
}

// Category operations

// FindCategoryByName fetches the full category row by case-insensitive name
func (r *CatalogRepository) FindCategoryByName(tenantID, name string) (*models.Category, error) {
	var category models.Category
	err := r.db.Where("tenant_id = ? AND LOWER(name) = LOWER(?)", tenantID, name).First(&category).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *CatalogRepository) CreateCategory(tenantID string, category *models.Category) error {
	category.TenantID = tenantID
	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	category.CreatedAt = time.Now()
	category.UpdatedAt = time.Now()
	return r.db.Create(category).Error
}

// SaveCategory writes the full row, restoring any soft delete. Used both for
// commit-time updates and for restoring pre-commit snapshots on rollback.
func (r *CatalogRepository) SaveCategory(tenantID string, category *models.Category) error {
	category.TenantID = tenantID
	category.UpdatedAt = time.Now()
	return r.db.Unscoped().Save(category).Error
}

// DeleteCategoryHard permanently removes a category. Rollback of a created
// row must not leave a soft-deleted tombstone behind.
func (r *CatalogRepository) DeleteCategoryHard(tenantID string, id uuid.UUID) error {
	result := r.db.Unscoped().Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.Category{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *CatalogRepository) GetCategoryByID(tenantID string, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

// Menu item operations

func (r *CatalogRepository) FindItemByName(tenantID, name string) (*models.MenuItem, error) {
	var item models.MenuItem
	err := r.db.Where("tenant_id = ? AND LOWER(name) = LOWER(?)", tenantID, name).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *CatalogRepository) CreateItem(tenantID string, item *models.MenuItem) error {
	item.TenantID = tenantID
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()
	return r.db.Create(item).Error
}

func (r *CatalogRepository) SaveItem(tenantID string, item *models.MenuItem) error {
	item.TenantID = tenantID
	item.UpdatedAt = time.Now()
	return r.db.Unscoped().Save(item).Error
}

func (r *CatalogRepository) DeleteItemHard(tenantID string, id uuid.UUID) error {
	result := r.db.Unscoped().Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.MenuItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *CatalogRepository) GetItemByID(tenantID string, id uuid.UUID) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// Item size operations

// FindSizeByCode fetches a size by code, scoped to an item when itemID is
// non-nil and business-wide otherwise.
func (r *CatalogRepository) FindSizeByCode(tenantID, code string, itemID *uuid.UUID) (*models.ItemSize, error) {
	query := r.db.Where("tenant_id = ? AND LOWER(size_code) = LOWER(?)", tenantID, code)
	if itemID != nil {
		query = query.Where("item_id = ?", *itemID)
	} else {
		query = query.Where("item_id IS NULL")
	}

	var size models.ItemSize
	err := query.First(&size).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &size, nil
}

func (r *CatalogRepository) CreateSize(tenantID string, size *models.ItemSize) error {
	size.TenantID = tenantID
	if size.ID == uuid.Nil {
		size.ID = uuid.New()
	}
	size.CreatedAt = time.Now()
	size.UpdatedAt = time.Now()
	return r.db.Create(size).Error
}

func (r *CatalogRepository) SaveSize(tenantID string, size *models.ItemSize) error {
	size.TenantID = tenantID
	size.UpdatedAt = time.Now()
	return r.db.Unscoped().Save(size).Error
}

func (r *CatalogRepository) DeleteSizeHard(tenantID string, id uuid.UUID) error {
	result := r.db.Unscoped().Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.ItemSize{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *CatalogRepository) GetSizeByID(tenantID string, id uuid.UUID) (*models.ItemSize, error) {
	var size models.ItemSize
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&size).Error; err != nil {
		return nil, err
	}
	return &size, nil
}

// Modifier group operations

func (r *CatalogRepository) FindModifierGroupByKey(tenantID, key string) (*models.ModifierGroup, error) {
	var group models.ModifierGroup
	err := r.db.Where("tenant_id = ? AND LOWER(group_key) = LOWER(?)", tenantID, key).First(&group).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *CatalogRepository) CreateModifierGroup(tenantID string, group *models.ModifierGroup) error {
	group.TenantID = tenantID
	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}
	group.CreatedAt = time.Now()
	group.UpdatedAt = time.Now()
	return r.db.Create(group).Error
}

func (r *CatalogRepository) SaveModifierGroup(tenantID string, group *models.ModifierGroup) error {
	group.TenantID = tenantID
	group.UpdatedAt = time.Now()
	return r.db.Unscoped().Save(group).Error
}

func (r *CatalogRepository) DeleteModifierGroupHard(tenantID string, id uuid.UUID) error {
	result := r.db.Unscoped().Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.ModifierGroup{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *CatalogRepository) GetModifierGroupByID(tenantID string, id uuid.UUID) (*models.ModifierGroup, error) {
	var group models.ModifierGroup
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// Modifier operations

func (r *CatalogRepository) FindModifierByKey(tenantID string, groupID uuid.UUID, modifierKey string) (*models.Modifier, error) {
	var modifier models.Modifier
	err := r.db.Where("tenant_id = ? AND group_id = ? AND LOWER(modifier_key) = LOWER(?)", tenantID, groupID, modifierKey).
		First(&modifier).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &modifier, nil
}

func (r *CatalogRepository) CreateModifier(tenantID string, modifier *models.Modifier) error {
	modifier.TenantID = tenantID
	if modifier.ID == uuid.Nil {
		modifier.ID = uuid.New()
	}
	modifier.CreatedAt = time.Now()
	modifier.UpdatedAt = time.Now()
	return r.db.Create(modifier).Error
}

func (r *CatalogRepository) SaveModifier(tenantID string, modifier *models.Modifier) error {
	modifier.TenantID = tenantID
	modifier.UpdatedAt = time.Now()
	return r.db.Unscoped().Save(modifier).Error
}

func (r *CatalogRepository) DeleteModifierHard(tenantID string, id uuid.UUID) error {
	result := r.db.Unscoped().Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.Modifier{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *CatalogRepository) GetModifierByID(tenantID string, id uuid.UUID) (*models.Modifier, error) {
	var modifier models.Modifier
	if err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&modifier).Error; err != nil {
		return nil, err
	}
	return &modifier, nil
}
