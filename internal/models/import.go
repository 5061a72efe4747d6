package models

import "gorm.io/datatypes"

// ImportFormat represents the file format for import
type ImportFormat string

const (
	ImportFormatCSV     ImportFormat = "csv"
	ImportFormatXLSX    ImportFormat = "xlsx"
	ImportFormatArchive ImportFormat = "zip"
)

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // string, number, boolean, enum
	Example     string `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Entity  EntityKind             `json:"entity"`
	Version string                 `json:"version"`
	Columns []ImportTemplateColumn `json:"columns"`
}

// CategoryImportColumns returns the column definitions for category import
func CategoryImportColumns() []ImportTemplateColumn {
	return []ImportTemplateColumn{
		{Name: "name", Description: "Category name", Required: true, Type: "string", Example: "Appetizers"},
		{Name: "description", Description: "Category description", Required: false, Type: "string", Example: "Small plates and starters"},
		{Name: "sort_order", Description: "Display position (0-based)", Required: false, Type: "number", Example: "0"},
		{Name: "is_active", Description: "Whether the category is visible", Required: false, Type: "boolean", Example: "true"},
		{Name: "kitchen_section_name", Description: "Kitchen section for routing - must exist", Required: false, Type: "string", Example: "Grill"},
	}
}

// ItemImportColumns returns the column definitions for menu item import
func ItemImportColumns() []ImportTemplateColumn {
	return []ImportTemplateColumn{
		{Name: "name", Description: "Item name", Required: true, Type: "string", Example: "Margherita Pizza"},
		{Name: "category_name", Description: "Category name - must exist or appear in this import", Required: true, Type: "string", Example: "Pizza"},
		{Name: "description", Description: "Item description", Required: false, Type: "string", Example: "San Marzano tomatoes, mozzarella, basil"},
		{Name: "sort_order", Description: "Display position", Required: false, Type: "number", Example: "0"},
		{Name: "is_active", Description: "Whether the item is orderable", Required: false, Type: "boolean", Example: "true"},
		{Name: "base_price", Description: "Price for non-sizeable items", Required: false, Type: "number", Example: "12.50"},
		{Name: "is_sizeable", Description: "true if the item prices through sizes", Required: false, Type: "boolean", Example: "false"},
		{Name: "size_codes", Description: "Comma-separated size codes for sizeable items", Required: false, Type: "string", Example: "S,M,L"},
		{Name: "default_size_code", Description: "Default size for sizeable items", Required: false, Type: "string", Example: "M"},
		{Name: "modifier_groups", Description: "Comma-separated modifier group keys", Required: false, Type: "string", Example: "toppings,crust"},
	}
}

// ItemSizeImportColumns returns the column definitions for item size import
func ItemSizeImportColumns() []ImportTemplateColumn {
	return []ImportTemplateColumn{
		{Name: "name", Description: "Size name", Required: true, Type: "string", Example: "Large"},
		{Name: "size_code", Description: "Short unique size code", Required: true, Type: "string", Example: "L"},
		{Name: "item_name", Description: "Item this size price applies to (blank = business-wide size)", Required: false, Type: "string", Example: "Margherita Pizza"},
		{Name: "price", Description: "Price for this item at this size", Required: false, Type: "number", Example: "16.00"},
		{Name: "display_order", Description: "Display position", Required: false, Type: "number", Example: "2"},
		{Name: "is_active", Description: "Whether the size is selectable", Required: false, Type: "boolean", Example: "true"},
	}
}

// ModifierGroupImportColumns returns the column definitions for modifier group import
func ModifierGroupImportColumns() []ImportTemplateColumn {
	return []ImportTemplateColumn{
		{Name: "name", Description: "Group name - its normalized form is the group key modifiers reference", Required: true, Type: "string", Example: "Toppings"},
		{Name: "display_name", Description: "Customer-facing label", Required: false, Type: "string", Example: "Choose your toppings"},
		{Name: "display_type", Description: "RADIO or CHECKBOX", Required: false, Type: "enum", Example: "CHECKBOX"},
		{Name: "min_select", Description: "Minimum selections", Required: false, Type: "number", Example: "0"},
		{Name: "max_select", Description: "Maximum selections", Required: false, Type: "number", Example: "5"},
		{Name: "sort_order", Description: "Display position", Required: false, Type: "number", Example: "0"},
		{Name: "is_active", Description: "Whether the group is shown", Required: false, Type: "boolean", Example: "true"},
	}
}

// ModifierImportColumns returns the column definitions for modifier import
func ModifierImportColumns() []ImportTemplateColumn {
	return []ImportTemplateColumn{
		{Name: "group_key", Description: "Key of the owning modifier group - must exist or appear in this import", Required: true, Type: "string", Example: "toppings"},
		{Name: "modifier_key", Description: "Unique key within the group", Required: true, Type: "string", Example: "extra-cheese"},
		{Name: "name", Description: "Modifier name", Required: true, Type: "string", Example: "Extra Cheese"},
		{Name: "max_quantity", Description: "Maximum quantity per order line (>= 1)", Required: false, Type: "number", Example: "3"},
		{Name: "is_default", Description: "Pre-selected by default", Required: false, Type: "boolean", Example: "false"},
		{Name: "display_order", Description: "Display position", Required: false, Type: "number", Example: "1"},
		{Name: "is_active", Description: "Whether the modifier is selectable", Required: false, Type: "boolean", Example: "true"},
	}
}

// ImportTemplateFor returns the template definition for one entity kind
func ImportTemplateFor(kind EntityKind) (ImportTemplate, bool) {
	var columns []ImportTemplateColumn
	switch kind {
	case EntityCategories:
		columns = CategoryImportColumns()
	case EntityItems:
		columns = ItemImportColumns()
	case EntityItemSizes:
		columns = ItemSizeImportColumns()
	case EntityModifierGroups:
		columns = ModifierGroupImportColumns()
	case EntityModifiers:
		columns = ModifierImportColumns()
	default:
		return ImportTemplate{}, false
	}
	return ImportTemplate{Entity: kind, Version: "1.0", Columns: columns}, true
}

// Error represents a structured API error
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope for failed API calls
type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}

// SessionResponse is the envelope for single-session API responses
type SessionResponse struct {
	Success bool           `json:"success"`
	Data    *ImportSession `json:"data"`
	Message *string        `json:"message,omitempty"`
}

// SessionListResponse is the envelope for session list API responses
type SessionListResponse struct {
	Success bool            `json:"success"`
	Data    []ImportSession `json:"data"`
	Total   int64           `json:"total"`
}

// UpdateSessionRequest carries a full draft replacement (bulk editor save)
type UpdateSessionRequest struct {
	ParsedData *ParsedDataset `json:"parsedData,omitempty"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
}

// AddRowRequest adds one row with entity defaults to a draft collection
type AddRowRequest struct {
	Entity EntityKind        `json:"entity" binding:"required"`
	Fields map[string]string `json:"fields,omitempty"`
}

// UpdateRowRequest patches fields of one staged row
type UpdateRowRequest struct {
	Entity EntityKind        `json:"entity" binding:"required"`
	Index  int               `json:"index"`
	Fields map[string]string `json:"fields" binding:"required"`
}

// RemoveRowRequest removes one staged row
type RemoveRowRequest struct {
	Entity EntityKind `json:"entity" binding:"required"`
	Index  int        `json:"index"`
}
