// Package validator applies per-field and cross-entity rules to a staged
// import dataset, producing error and warning lists tied to exact
// (file, row, field) locations.
package validator

import (
	"fmt"
	"strconv"
	"strings"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/resolver"
)

// Validate runs every rule against the dataset. It is pure: re-running it on
// an unchanged dataset reproduces identical error and warning lists, in the
// same order. The returned error reports catalog lookup failures only.
func Validate(data *models.ParsedDataset, res *resolver.Resolver) (models.IssueList, models.IssueList, error) {
	v := &run{data: data, res: res}

	if err := v.categories(); err != nil {
		return nil, nil, err
	}
	if err := v.items(); err != nil {
		return nil, nil, err
	}
	if err := v.itemSizes(); err != nil {
		return nil, nil, err
	}
	v.modifierGroups()
	if err := v.modifiers(); err != nil {
		return nil, nil, err
	}

	if v.errors == nil {
		v.errors = models.IssueList{}
	}
	if v.warnings == nil {
		v.warnings = models.IssueList{}
	}
	return v.errors, v.warnings, nil
}

type run struct {
	data     *models.ParsedDataset
	res      *resolver.Resolver
	errors   models.IssueList
	warnings models.IssueList
}

func (v *run) addError(file string, entity models.EntityKind, row int, field, message, value string) {
	v.errors = append(v.errors, models.ValidationIssue{
		File: file, Entity: entity, Row: row, Field: field, Message: message, Value: value,
	})
}

func (v *run) addWarning(file string, entity models.EntityKind, row int, field, message, value string) {
	v.warnings = append(v.warnings, models.ValidationIssue{
		File: file, Entity: entity, Row: row, Field: field, Message: message, Value: value,
	})
}

func (v *run) categories() error {
	for _, row := range v.data.Categories {
		if strings.TrimSpace(row.Name) == "" {
			v.addError(row.File, models.EntityCategories, row.Row, "name", "name is required", row.Name)
		}
		if row.SortOrder < 0 {
			v.addError(row.File, models.EntityCategories, row.Row, "sort_order", "sort_order must be 0 or greater", strconv.Itoa(row.SortOrder))
		}
		// Kitchen sections are optional plumbing; an unresolved reference is
		// soft by product decision, unlike every other foreign key here.
		if strings.TrimSpace(row.KitchenSectionName) != "" {
			resolution, err := v.res.KitchenSection(row.KitchenSectionName)
			if err != nil {
				return err
			}
			if !resolution.Found {
				v.addWarning(row.File, models.EntityCategories, row.Row, "kitchen_section_name",
					fmt.Sprintf("kitchen section '%s' not found", row.KitchenSectionName), row.KitchenSectionName)
			}
		}
	}
	return nil
}

func (v *run) items() error {
	for _, row := range v.data.Items {
		if strings.TrimSpace(row.Name) == "" {
			v.addError(row.File, models.EntityItems, row.Row, "name", "name is required", row.Name)
		}

		if strings.TrimSpace(row.CategoryName) == "" {
			v.addError(row.File, models.EntityItems, row.Row, "category_name", "category_name is required", row.CategoryName)
		} else {
			resolution, err := v.res.Category(row.CategoryName)
			if err != nil {
				return err
			}
			if !resolution.Found {
				v.addError(row.File, models.EntityItems, row.Row, "category_name",
					fmt.Sprintf("category '%s' not found", row.CategoryName), row.CategoryName)
			}
		}

		if err := v.itemPricing(row); err != nil {
			return err
		}

		for _, key := range row.ModifierGroups {
			resolution, err := v.res.ModifierGroup(key)
			if err != nil {
				return err
			}
			if !resolution.Found {
				v.addError(row.File, models.EntityItems, row.Row, "modifier_groups",
					fmt.Sprintf("modifier group '%s' not found", key), key)
			}
		}
	}
	return nil
}

// itemPricing enforces exactly one pricing mode: a positive base_price for
// plain items, or resolvable sizes plus a default size for sizeable ones
func (v *run) itemPricing(row models.ItemRow) error {
	if !row.IsSizeable {
		price, err := strconv.ParseFloat(strings.TrimSpace(row.BasePrice), 64)
		if strings.TrimSpace(row.BasePrice) == "" || err != nil || price <= 0 {
			v.addError(row.File, models.EntityItems, row.Row, "base_price",
				"base_price must be greater than 0 for non-sizeable items", row.BasePrice)
		}
		return nil
	}

	if strings.TrimSpace(row.BasePrice) != "" {
		v.addError(row.File, models.EntityItems, row.Row, "base_price",
			"sizeable items must not set base_price", row.BasePrice)
	}

	var candidates []string
	for _, code := range row.SizeCodes {
		resolution, err := v.res.Size(code)
		if err != nil {
			return err
		}
		if !resolution.Found {
			v.addError(row.File, models.EntityItems, row.Row, "size_codes",
				fmt.Sprintf("size code '%s' not found", code), code)
			continue
		}
		candidates = append(candidates, code)
	}
	for _, size := range v.data.ItemSizes {
		if resolver.NormalizeKey(size.ItemName) == resolver.NormalizeKey(row.Name) && size.ItemName != "" {
			candidates = append(candidates, size.SizeCode)
		}
	}

	if len(candidates) == 0 {
		v.addError(row.File, models.EntityItems, row.Row, "size_codes",
			"at least one size is required for sizeable items", strings.Join(row.SizeCodes, ","))
	}

	defaultCode := strings.TrimSpace(row.DefaultSizeCode)
	if defaultCode == "" && len(candidates) > 0 {
		defaultCode = candidates[0]
	}
	if defaultCode == "" {
		v.addError(row.File, models.EntityItems, row.Row, "default_size_code",
			"default size required", row.DefaultSizeCode)
		return nil
	}
	resolution, err := v.res.Size(defaultCode)
	if err != nil {
		return err
	}
	if !resolution.Found {
		v.addError(row.File, models.EntityItems, row.Row, "default_size_code",
			"default size required", row.DefaultSizeCode)
	}
	return nil
}

func (v *run) itemSizes() error {
	seen := make(map[string]bool)
	for _, row := range v.data.ItemSizes {
		if strings.TrimSpace(row.Name) == "" {
			v.addError(row.File, models.EntityItemSizes, row.Row, "name", "name is required", row.Name)
		}
		if strings.TrimSpace(row.SizeCode) == "" {
			v.addError(row.File, models.EntityItemSizes, row.Row, "size_code", "size_code is required", row.SizeCode)
		} else {
			// Unique within the item scope (or business scope for global sizes)
			scopeKey := resolver.NormalizeKey(row.ItemName) + "|" + resolver.NormalizeKey(row.SizeCode)
			if seen[scopeKey] {
				v.addError(row.File, models.EntityItemSizes, row.Row, "size_code",
					fmt.Sprintf("duplicate size_code '%s'", row.SizeCode), row.SizeCode)
			}
			seen[scopeKey] = true
		}

		if strings.TrimSpace(row.ItemName) != "" {
			resolution, err := v.res.Item(row.ItemName)
			if err != nil {
				return err
			}
			if !resolution.Found {
				v.addError(row.File, models.EntityItemSizes, row.Row, "item_name",
					fmt.Sprintf("item '%s' not found", row.ItemName), row.ItemName)
			}
		}

		if strings.TrimSpace(row.Price) != "" {
			if price, err := strconv.ParseFloat(strings.TrimSpace(row.Price), 64); err != nil || price < 0 {
				v.addError(row.File, models.EntityItemSizes, row.Row, "price", "price must be a valid number", row.Price)
			}
		}
		if row.DisplayOrder < 0 {
			v.addError(row.File, models.EntityItemSizes, row.Row, "display_order", "display_order must be 0 or greater", strconv.Itoa(row.DisplayOrder))
		}
	}
	return nil
}

func (v *run) modifierGroups() {
	for _, row := range v.data.ModifierGroups {
		if strings.TrimSpace(row.Name) == "" {
			v.addError(row.File, models.EntityModifierGroups, row.Row, "name", "name is required", row.Name)
		}
		if row.DisplayType != string(models.DisplayTypeRadio) && row.DisplayType != string(models.DisplayTypeCheckbox) {
			v.addError(row.File, models.EntityModifierGroups, row.Row, "display_type",
				"display_type must be RADIO or CHECKBOX", row.DisplayType)
		}
		if row.MinSelect < 0 {
			v.addError(row.File, models.EntityModifierGroups, row.Row, "min_select", "min_select must be 0 or greater", strconv.Itoa(row.MinSelect))
		}
		if row.MinSelect > row.MaxSelect {
			v.addError(row.File, models.EntityModifierGroups, row.Row, "min_select",
				"min_select must not exceed max_select", strconv.Itoa(row.MinSelect))
		}
		if row.DisplayType == string(models.DisplayTypeRadio) && row.MaxSelect > 1 {
			v.addWarning(row.File, models.EntityModifierGroups, row.Row, "max_select",
				"RADIO groups usually allow a single selection; max_select greater than 1 will be ignored by most clients", strconv.Itoa(row.MaxSelect))
		}
	}
}

func (v *run) modifiers() error {
	for _, row := range v.data.Modifiers {
		if strings.TrimSpace(row.GroupKey) == "" {
			v.addError(row.File, models.EntityModifiers, row.Row, "group_key", "group_key is required", row.GroupKey)
		} else {
			resolution, err := v.res.ModifierGroup(row.GroupKey)
			if err != nil {
				return err
			}
			if !resolution.Found {
				v.addError(row.File, models.EntityModifiers, row.Row, "group_key",
					fmt.Sprintf("modifier group '%s' not found", row.GroupKey), row.GroupKey)
			}
		}
		if strings.TrimSpace(row.ModifierKey) == "" {
			v.addError(row.File, models.EntityModifiers, row.Row, "modifier_key", "modifier_key is required", row.ModifierKey)
		}
		if strings.TrimSpace(row.Name) == "" {
			v.addError(row.File, models.EntityModifiers, row.Row, "name", "name is required", row.Name)
		}
		if row.MaxQuantity != nil && *row.MaxQuantity < 1 {
			v.addError(row.File, models.EntityModifiers, row.Row, "max_quantity", "max_quantity must be 1 or greater", strconv.Itoa(*row.MaxQuantity))
		}
	}
	return nil
}
