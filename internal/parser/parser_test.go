package parser

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"catalog-import-service/internal/models"
)

func TestDetectEntity(t *testing.T) {
	tests := []struct {
		filename string
		expected models.EntityKind
	}{
		{"categories.csv", models.EntityCategories},
		{"menu-categories.xlsx", models.EntityCategories},
		{"items.csv", models.EntityItems},
		{"menu_items.csv", models.EntityItems},
		{"products.xlsx", models.EntityItems},
		{"item_sizes.csv", models.EntityItemSizes},
		{"sizes.csv", models.EntityItemSizes},
		{"modifier_groups.csv", models.EntityModifierGroups},
		{"modifier-groups.xlsx", models.EntityModifierGroups},
		{"modifiers.csv", models.EntityModifiers},
		{"exports/2026/modifiers.csv", models.EntityModifiers},
		{"random.csv", models.EntityKind("")},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, DetectEntity(tt.filename), tt.filename)
	}
}

func TestParseUploadCSVCategories(t *testing.T) {
	csvData := "name,description,sort_order,is_active,kitchen_section_name\n" +
		"Appetizers,Small plates,0,true,Grill\n" +
		"Desserts,,3,false,\n"

	result, err := ParseUpload("categories.csv", []byte(csvData), "")
	assert.NoError(t, err)
	if err != nil {
		return
	}

	assert.Len(t, result.Data.Categories, 2)

	first := result.Data.Categories[0]
	assert.Equal(t, "Appetizers", first.Name)
	assert.Equal(t, "Small plates", first.Description)
	assert.Equal(t, 0, first.SortOrder)
	assert.True(t, first.IsActive)
	assert.Equal(t, "Grill", first.KitchenSectionName)
	assert.Equal(t, "categories.csv", first.File)
	// Row numbers count the header, so the first data row is 2
	assert.Equal(t, 2, first.Row)

	second := result.Data.Categories[1]
	assert.Equal(t, "Desserts", second.Name)
	assert.False(t, second.IsActive)
	assert.Equal(t, 3, second.Row)

	assert.Len(t, result.Manifest, 1)
	assert.Equal(t, models.EntityCategories, result.Manifest[0].Entity)
	assert.Equal(t, 2, result.Manifest[0].RowCount)
}

func TestParseUploadItemCoercions(t *testing.T) {
	csvData := "name,category_name,base_price,is_sizeable,size_codes,modifier_groups,is_active\n" +
		"Margherita Pizza,Pizza,,TRUE,\"S, M, L\",\"toppings, crust\",1\n" +
		"Garlic Bread,Sides,4.50,,,,\n"

	result, err := ParseUpload("items.csv", []byte(csvData), "")
	assert.NoError(t, err)
	if err != nil {
		return
	}

	assert.Len(t, result.Data.Items, 2)

	pizza := result.Data.Items[0]
	assert.True(t, pizza.IsSizeable)
	assert.Equal(t, []string{"S", "M", "L"}, pizza.SizeCodes)
	assert.Equal(t, []string{"toppings", "crust"}, pizza.ModifierGroups)
	assert.True(t, pizza.IsActive)

	bread := result.Data.Items[1]
	assert.False(t, bread.IsSizeable)
	assert.Equal(t, "4.50", bread.BasePrice)
	assert.True(t, bread.IsActive, "blank is_active defaults to true")
	assert.Empty(t, bread.SizeCodes)
}

func TestParseUploadHeaderNormalization(t *testing.T) {
	// Headers from generated templates carry a " *" required marker and may
	// vary in case
	csvData := "Name *,SIZE_CODE *,price\nLarge,L,16.00\n"

	result, err := ParseUpload("item_sizes.csv", []byte(csvData), "")
	assert.NoError(t, err)
	if err != nil {
		return
	}

	assert.Len(t, result.Data.ItemSizes, 1)
	assert.Equal(t, "Large", result.Data.ItemSizes[0].Name)
	assert.Equal(t, "L", result.Data.ItemSizes[0].SizeCode)
	assert.Equal(t, "16.00", result.Data.ItemSizes[0].Price)
}

func TestParseUploadMissingRequiredColumns(t *testing.T) {
	csvData := "description,sort_order\nNo name here,0\n"

	_, err := ParseUpload("categories.csv", []byte(csvData), "")
	assert.Error(t, err)

	var structural *StructuralError
	assert.ErrorAs(t, err, &structural)
	assert.Equal(t, "categories.csv", structural.File)
	assert.Contains(t, structural.Message, "missing required columns: name")
}

func TestParseUploadHintOverridesFilename(t *testing.T) {
	csvData := "name,category_name,base_price\nHouse Salad,Salads,9.00\n"

	result, err := ParseUpload("upload.csv", []byte(csvData), models.EntityItems)
	assert.NoError(t, err)
	if err != nil {
		return
	}
	assert.Len(t, result.Data.Items, 1)
	assert.Equal(t, "House Salad", result.Data.Items[0].Name)
}

func TestParseUploadUnknownEntity(t *testing.T) {
	_, err := ParseUpload("mystery.csv", []byte("name\nA\n"), "")
	assert.Error(t, err)

	var structural *StructuralError
	assert.ErrorAs(t, err, &structural)
	assert.Contains(t, structural.Message, "unable to determine entity type")
}

func TestParseUploadZipArchive(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	addMember := func(name, content string) {
		f, err := w.Create(name)
		assert.NoError(t, err)
		_, err = f.Write([]byte(content))
		assert.NoError(t, err)
	}

	addMember("catalog/categories.csv", "name\nPizza\nSides\n")
	addMember("catalog/modifier_groups.csv", "name,display_type,max_select\nToppings,CHECKBOX,5\n")
	addMember("catalog/modifiers.csv", "group_key,modifier_key,name\ntoppings,extra-cheese,Extra Cheese\n")
	addMember("readme.txt", "not a table")
	assert.NoError(t, w.Close())

	result, err := ParseUpload("catalog.zip", buf.Bytes(), "")
	assert.NoError(t, err)
	if err != nil {
		return
	}

	assert.Len(t, result.Data.Categories, 2)
	assert.Len(t, result.Data.ModifierGroups, 1)
	assert.Len(t, result.Data.Modifiers, 1)
	assert.Len(t, result.Manifest, 3, "non-tabular members are skipped")

	// Members are recorded by base name, not archive path
	assert.Equal(t, "categories.csv", result.Manifest[0].Filename)
}

func TestParseUploadZipWithoutTables(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("notes.txt")
	assert.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())

	_, err = ParseUpload("catalog.zip", buf.Bytes(), "")
	var structural *StructuralError
	assert.ErrorAs(t, err, &structural)
	assert.Contains(t, structural.Message, "no CSV or XLSX files")
}

func TestParseUploadCorruptZip(t *testing.T) {
	_, err := ParseUpload("catalog.zip", []byte("definitely not a zip"), "")
	var structural *StructuralError
	assert.ErrorAs(t, err, &structural)
	assert.Contains(t, structural.Message, "unreadable zip archive")
}

func TestModifierGroupDefaults(t *testing.T) {
	csvData := "name,display_type\nToppings,\nCrust,radio\n"

	result, err := ParseUpload("modifier_groups.csv", []byte(csvData), "")
	assert.NoError(t, err)
	if err != nil {
		return
	}

	assert.Len(t, result.Data.ModifierGroups, 2)
	assert.Equal(t, "CHECKBOX", result.Data.ModifierGroups[0].DisplayType, "blank display_type defaults to CHECKBOX")
	assert.Equal(t, "RADIO", result.Data.ModifierGroups[1].DisplayType, "display_type is upcased")
	assert.Equal(t, 1, result.Data.ModifierGroups[0].MaxSelect)
}

func TestModifierMaxQuantityPresence(t *testing.T) {
	csvData := "group_key,modifier_key,name,max_quantity\n" +
		"toppings,olives,Olives,\n" +
		"toppings,onions,Onions,0\n" +
		"toppings,ham,Ham,3\n"

	result, err := ParseUpload("modifiers.csv", []byte(csvData), "")
	assert.NoError(t, err)
	if err != nil {
		return
	}

	mods := result.Data.Modifiers
	assert.Len(t, mods, 3)
	assert.Nil(t, mods[0].MaxQuantity, "blank means unlimited")
	if assert.NotNil(t, mods[1].MaxQuantity) {
		assert.Equal(t, 0, *mods[1].MaxQuantity, "an explicit zero survives parsing for the validator to reject")
	}
	if assert.NotNil(t, mods[2].MaxQuantity) {
		assert.Equal(t, 3, *mods[2].MaxQuantity)
	}
}
