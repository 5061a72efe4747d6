package models

import (
	"database/sql/driver"
	"encoding/json"
)

// EntityKind discriminates the five importable catalog entity kinds
type EntityKind string

const (
	EntityCategories     EntityKind = "categories"
	EntityItems          EntityKind = "items"
	EntityItemSizes      EntityKind = "itemSizes"
	EntityModifierGroups EntityKind = "modifierGroups"
	EntityModifiers      EntityKind = "modifiers"
)

// EntityKinds lists all importable kinds in commit dependency order
func EntityKinds() []EntityKind {
	return []EntityKind{EntityCategories, EntityModifierGroups, EntityModifiers, EntityItems, EntityItemSizes}
}

// IsValid reports whether k names a known entity kind
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityCategories, EntityItems, EntityItemSizes, EntityModifierGroups, EntityModifiers:
		return true
	}
	return false
}

// CategoryRow is a staged category record.
// File and Row locate the record in its originating upload: Row is the 1-based
// position in the source file counting the header, so the first data row is 2.
type CategoryRow struct {
	File               string `json:"file"`
	Row                int    `json:"row"`
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	SortOrder          int    `json:"sortOrder"`
	IsActive           bool   `json:"isActive"`
	KitchenSectionName string `json:"kitchenSectionName,omitempty"`
}

// ItemRow is a staged menu item record
type ItemRow struct {
	File            string   `json:"file"`
	Row             int      `json:"row"`
	Name            string   `json:"name"`
	CategoryName    string   `json:"categoryName"`
	Description     string   `json:"description,omitempty"`
	SortOrder       int      `json:"sortOrder"`
	IsActive        bool     `json:"isActive"`
	IsSizeable      bool     `json:"isSizeable"`
	BasePrice       string   `json:"basePrice,omitempty"`
	SizeCodes       []string `json:"sizeCodes,omitempty"`
	DefaultSizeCode string   `json:"defaultSizeCode,omitempty"`
	ModifierGroups  []string `json:"modifierGroups,omitempty"`
}

// ItemSizeRow is a staged size record. ItemName is optional; when present the
// size (and its price) is scoped to that item, otherwise it is business-wide.
type ItemSizeRow struct {
	File         string `json:"file"`
	Row          int    `json:"row"`
	Name         string `json:"name"`
	SizeCode     string `json:"sizeCode"`
	ItemName     string `json:"itemName,omitempty"`
	Price        string `json:"price,omitempty"`
	DisplayOrder int    `json:"displayOrder"`
	IsActive     bool   `json:"isActive"`
}

// ModifierGroupRow is a staged modifier group record
type ModifierGroupRow struct {
	File        string `json:"file"`
	Row         int    `json:"row"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	DisplayType string `json:"displayType"`
	MinSelect   int    `json:"minSelect"`
	MaxSelect   int    `json:"maxSelect"`
	SortOrder   int    `json:"sortOrder"`
	IsActive    bool   `json:"isActive"`
}

// ModifierRow is a staged modifier record
type ModifierRow struct {
	File         string `json:"file"`
	Row          int    `json:"row"`
	GroupKey     string `json:"groupKey"`
	ModifierKey  string `json:"modifierKey"`
	Name         string `json:"name"`
	MaxQuantity  *int   `json:"maxQuantity,omitempty"`
	IsDefault    bool   `json:"isDefault"`
	DisplayOrder int    `json:"displayOrder"`
	IsActive     bool   `json:"isActive"`
}

// ParsedDataset is the staged, editable snapshot a session accumulates across
// uploads and draft edits. Stored as a JSONB column on the session.
type ParsedDataset struct {
	Categories     []CategoryRow      `json:"categories"`
	Items          []ItemRow          `json:"items"`
	ItemSizes      []ItemSizeRow      `json:"itemSizes"`
	ModifierGroups []ModifierGroupRow `json:"modifierGroups"`
	Modifiers      []ModifierRow      `json:"modifiers"`
}

func (d ParsedDataset) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *ParsedDataset) Scan(value interface{}) error {
	if value == nil {
		*d = ParsedDataset{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, d)
}

// Merge appends other's rows onto d (uploads accumulate, never replace)
func (d *ParsedDataset) Merge(other *ParsedDataset) {
	if other == nil {
		return
	}
	d.Categories = append(d.Categories, other.Categories...)
	d.Items = append(d.Items, other.Items...)
	d.ItemSizes = append(d.ItemSizes, other.ItemSizes...)
	d.ModifierGroups = append(d.ModifierGroups, other.ModifierGroups...)
	d.Modifiers = append(d.Modifiers, other.Modifiers...)
}

// IsEmpty reports whether the dataset holds no rows of any kind
func (d *ParsedDataset) IsEmpty() bool {
	return len(d.Categories) == 0 && len(d.Items) == 0 && len(d.ItemSizes) == 0 &&
		len(d.ModifierGroups) == 0 && len(d.Modifiers) == 0
}

// RowCount returns the total number of staged rows
func (d *ParsedDataset) RowCount() int {
	return len(d.Categories) + len(d.Items) + len(d.ItemSizes) +
		len(d.ModifierGroups) + len(d.Modifiers)
}

// ValidationIssue ties one error or warning to an exact (file, row, field).
// Row uses the same 1-based source-file convention as the parsed rows so the
// UI can jump straight back to the offending line.
type ValidationIssue struct {
	File    string     `json:"file"`
	Entity  EntityKind `json:"entity"`
	Row     int        `json:"row"`
	Field   string     `json:"field"`
	Message string     `json:"message"`
	Value   string     `json:"value,omitempty"`
}

// IssueList is a JSONB-stored ordered list of validation issues
type IssueList []ValidationIssue

func (l IssueList) Value() (driver.Value, error) {
	if l == nil {
		l = IssueList{}
	}
	return json.Marshal(l)
}

func (l *IssueList) Scan(value interface{}) error {
	if value == nil {
		*l = IssueList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}
