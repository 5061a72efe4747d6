package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// DisplayType controls how a modifier group is rendered on ordering surfaces
type DisplayType string

const (
	DisplayTypeRadio    DisplayType = "RADIO"
	DisplayTypeCheckbox DisplayType = "CHECKBOX"
)

// KitchenSection groups items for kitchen routing (read-mostly for import lookup)
type KitchenSection struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID  string    `json:"tenantId" gorm:"column:tenant_id;not null;index"`
	Name      string    `json:"name" gorm:"not null"`
	SortOrder int       `json:"sortOrder" gorm:"not null;default:0"`
	IsActive  *bool     `json:"isActive" gorm:"column:is_active;default:true"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for KitchenSection
func (KitchenSection) TableName() string {
	return "kitchen_sections"
}

// Category represents a menu category
type Category struct {
	ID               uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID         string          `json:"tenantId" gorm:"column:tenant_id;not null;index;index:idx_categories_tenant_name"`
	Name             string          `json:"name" gorm:"not null;index:idx_categories_tenant_name"`
	Slug             string          `json:"slug" gorm:"not null"`
	Description      *string         `json:"description,omitempty"`
	SortOrder        int             `json:"sortOrder" gorm:"not null;default:0"`
	IsActive         *bool           `json:"isActive" gorm:"column:is_active;default:true"`
	KitchenSectionID *uuid.UUID      `json:"kitchenSectionId,omitempty" gorm:"column:kitchen_section_id;index"`
	CreatedBy        *string         `json:"createdBy,omitempty"`
	UpdatedBy        *string         `json:"updatedBy,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	DeletedAt        *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`
}

// MenuItem represents an orderable item within a category.
// Sizeable items price through their sizes; non-sizeable items carry BasePrice.
type MenuItem struct {
	ID              uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID        string          `json:"tenantId" gorm:"column:tenant_id;not null;index;index:idx_menu_items_tenant_name"`
	CategoryID      uuid.UUID       `json:"categoryId" gorm:"type:uuid;not null;index"`
	Name            string          `json:"name" gorm:"not null;index:idx_menu_items_tenant_name"`
	Slug            string          `json:"slug" gorm:"not null"`
	Description     *string         `json:"description,omitempty"`
	SortOrder       int             `json:"sortOrder" gorm:"not null;default:0"`
	IsActive        *bool           `json:"isActive" gorm:"column:is_active;default:true"`
	IsSizeable      bool            `json:"isSizeable" gorm:"column:is_sizeable;not null;default:false"`
	BasePrice       *string         `json:"basePrice,omitempty" gorm:"column:base_price"`
	DefaultSizeCode *string         `json:"defaultSizeCode,omitempty" gorm:"column:default_size_code"`
	ModifierGroups  pq.StringArray  `json:"modifierGroups,omitempty" gorm:"column:modifier_groups;type:text[]"`
	SearchKeywords  *string         `json:"searchKeywords,omitempty"`
	CreatedBy       *string         `json:"createdBy,omitempty"`
	UpdatedBy       *string         `json:"updatedBy,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	DeletedAt       *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`
}

// TableName specifies the table name for MenuItem
func (MenuItem) TableName() string {
	return "menu_items"
}

// ItemSize represents a size option (e.g. Small/Medium/Large) with an
// optional per-item price override. Sizes without an ItemID are
// business-scoped and shared by all sizeable items.
type ItemSize struct {
	ID           uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID     string          `json:"tenantId" gorm:"column:tenant_id;not null;index;index:idx_item_sizes_tenant_code"`
	ItemID       *uuid.UUID      `json:"itemId,omitempty" gorm:"column:item_id;index"`
	Name         string          `json:"name" gorm:"not null"`
	SizeCode     string          `json:"sizeCode" gorm:"column:size_code;not null;index:idx_item_sizes_tenant_code"`
	Price        *string         `json:"price,omitempty"`
	DisplayOrder int             `json:"displayOrder" gorm:"column:display_order;not null;default:0"`
	IsActive     *bool           `json:"isActive" gorm:"column:is_active;default:true"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	DeletedAt    *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`
}

// TableName specifies the table name for ItemSize
func (ItemSize) TableName() string {
	return "item_sizes"
}

// ModifierGroup represents a selection group (e.g. Toppings) attached to items
type ModifierGroup struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID    string          `json:"tenantId" gorm:"column:tenant_id;not null;index;index:idx_modifier_groups_tenant_key"`
	Name        string          `json:"name" gorm:"not null"`
	GroupKey    string          `json:"groupKey" gorm:"column:group_key;not null;index:idx_modifier_groups_tenant_key"`
	DisplayName *string         `json:"displayName,omitempty"`
	DisplayType DisplayType     `json:"displayType" gorm:"column:display_type;not null;default:'CHECKBOX'"`
	MinSelect   int             `json:"minSelect" gorm:"column:min_select;not null;default:0"`
	MaxSelect   int             `json:"maxSelect" gorm:"column:max_select;not null;default:1"`
	SortOrder   int             `json:"sortOrder" gorm:"not null;default:0"`
	IsActive    *bool           `json:"isActive" gorm:"column:is_active;default:true"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	DeletedAt   *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`
}

// Modifier represents a single selectable option within a modifier group
type Modifier struct {
	ID           uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID     string          `json:"tenantId" gorm:"column:tenant_id;not null;index"`
	GroupID      uuid.UUID       `json:"groupId" gorm:"type:uuid;not null;index"`
	ModifierKey  string          `json:"modifierKey" gorm:"column:modifier_key;not null;index"`
	Name         string          `json:"name" gorm:"not null"`
	MaxQuantity  *int            `json:"maxQuantity,omitempty" gorm:"column:max_quantity"`
	IsDefault    bool            `json:"isDefault" gorm:"column:is_default;not null;default:false"`
	DisplayOrder int             `json:"displayOrder" gorm:"column:display_order;not null;default:0"`
	IsActive     *bool           `json:"isActive" gorm:"column:is_active;default:true"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	DeletedAt    *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`
}
