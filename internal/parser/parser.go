// Package parser turns uploaded CSV/XLSX files and zip archives into typed
// row records grouped by catalog entity kind.
package parser

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"catalog-import-service/internal/models"
)

// StructuralError aborts a whole file upload: the file could not be read or
// is missing required columns. Row-level problems are validator territory.
type StructuralError struct {
	File    string
	Message string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result holds the rows parsed from one upload (file or archive)
type Result struct {
	Data     models.ParsedDataset
	Manifest []models.FileManifestEntry
}

// ParseUpload parses a single CSV/XLSX file or a zip archive of them.
// hint forces the entity kind for single-file uploads; archive members are
// routed by filename convention.
func ParseUpload(filename string, data []byte, hint models.EntityKind) (*Result, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".zip") {
		return parseArchive(filename, data, hint)
	}

	kind := hint
	if !kind.IsValid() {
		kind = DetectEntity(filename)
	}
	if !kind.IsValid() {
		return nil, &StructuralError{File: filename, Message: "unable to determine entity type from filename; pass an explicit entity_type"}
	}

	result := &Result{}
	if err := parseInto(result, filename, data, kind); err != nil {
		return nil, err
	}
	return result, nil
}

// parseArchive extracts every CSV/XLSX member and routes each to its entity
// collection. A hint only disambiguates single-member archives.
func parseArchive(filename string, data []byte, hint models.EntityKind) (*Result, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &StructuralError{File: filename, Message: "unreadable zip archive"}
	}

	var members []*zip.File
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.ToLower(f.Name)
		if strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".xlsx") {
			members = append(members, f)
		}
	}
	if len(members) == 0 {
		return nil, &StructuralError{File: filename, Message: "archive contains no CSV or XLSX files"}
	}

	result := &Result{}
	for _, member := range members {
		memberName := path.Base(member.Name)

		kind := DetectEntity(memberName)
		if !kind.IsValid() && len(members) == 1 && hint.IsValid() {
			kind = hint
		}
		if !kind.IsValid() {
			return nil, &StructuralError{File: memberName, Message: "unable to determine entity type from filename"}
		}

		rc, err := member.Open()
		if err != nil {
			return nil, &StructuralError{File: memberName, Message: "unreadable archive member"}
		}
		memberData, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, &StructuralError{File: memberName, Message: "unreadable archive member"}
		}

		if err := parseInto(result, memberName, memberData, kind); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// DetectEntity maps a filename to an entity kind by naming convention.
// Order matters: "item_sizes.csv" must not match items, "modifier_groups.csv"
// must not match modifiers.
func DetectEntity(filename string) models.EntityKind {
	name := strings.ToLower(path.Base(filename))
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")

	switch {
	case strings.Contains(name, "categor"):
		return models.EntityCategories
	case strings.Contains(name, "size"):
		return models.EntityItemSizes
	case strings.Contains(name, "modifier_group") || strings.Contains(name, "modifiergroup") || strings.Contains(name, "group"):
		return models.EntityModifierGroups
	case strings.Contains(name, "modifier"):
		return models.EntityModifiers
	case strings.Contains(name, "item") || strings.Contains(name, "product") || strings.Contains(name, "menu"):
		return models.EntityItems
	}
	return ""
}

// parseInto reads one tabular file and appends its typed rows to result
func parseInto(result *Result, filename string, data []byte, kind models.EntityKind) error {
	rows, err := readTable(filename, data)
	if err != nil {
		return err
	}

	if err := checkRequiredColumns(filename, kind, rows.headers); err != nil {
		return err
	}

	count := len(rows.records)
	switch kind {
	case models.EntityCategories:
		for _, row := range rows.records {
			result.Data.Categories = append(result.Data.Categories, categoryRow(filename, row))
		}
	case models.EntityItems:
		for _, row := range rows.records {
			result.Data.Items = append(result.Data.Items, itemRow(filename, row))
		}
	case models.EntityItemSizes:
		for _, row := range rows.records {
			result.Data.ItemSizes = append(result.Data.ItemSizes, itemSizeRow(filename, row))
		}
	case models.EntityModifierGroups:
		for _, row := range rows.records {
			result.Data.ModifierGroups = append(result.Data.ModifierGroups, modifierGroupRow(filename, row))
		}
	case models.EntityModifiers:
		for _, row := range rows.records {
			result.Data.Modifiers = append(result.Data.Modifiers, modifierRow(filename, row))
		}
	}

	result.Manifest = append(result.Manifest, models.FileManifestEntry{
		Filename:   filename,
		Entity:     kind,
		RowCount:   count,
		UploadedAt: time.Now().UTC(),
	})
	return nil
}

// table holds header-normalized raw records. Each record carries "_row", the
// 1-based source file position counting the header (first data row is 2).
type table struct {
	headers []string
	records []map[string]string
}

func readTable(filename string, data []byte) (*table, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		return readXLSX(filename, data)
	}
	return readCSV(filename, data)
}

func readCSV(filename string, data []byte) (*table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, &StructuralError{File: filename, Message: "failed to read CSV header"}
	}
	for i := range headers {
		headers[i] = normalizeHeader(headers[i])
	}

	t := &table{headers: headers}
	lineNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &StructuralError{File: filename, Message: fmt.Sprintf("error reading line %d", lineNum+1)}
		}

		row := make(map[string]string)
		for i, value := range record {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		row["_row"] = strconv.Itoa(lineNum + 1)
		t.records = append(t.records, row)
		lineNum++
	}
	return t, nil
}

func readXLSX(filename string, data []byte) (*table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &StructuralError{File: filename, Message: "failed to open Excel file"}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &StructuralError{File: filename, Message: "no sheets found in Excel file"}
	}

	excelRows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &StructuralError{File: filename, Message: "failed to read sheet"}
	}
	if len(excelRows) == 0 {
		return nil, &StructuralError{File: filename, Message: "file has no header row"}
	}

	headers := excelRows[0]
	for i := range headers {
		headers[i] = normalizeHeader(headers[i])
	}

	t := &table{headers: headers}
	for rowIdx, excelRow := range excelRows[1:] {
		row := make(map[string]string)
		for i, value := range excelRow {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		row["_row"] = strconv.Itoa(rowIdx + 2)
		t.records = append(t.records, row)
	}
	return t, nil
}

func normalizeHeader(h string) string {
	h = strings.TrimSpace(strings.ToLower(h))
	h = strings.TrimSuffix(h, " *")
	return h
}

// requiredColumns is the minimum header set per entity kind
var requiredColumns = map[models.EntityKind][]string{
	models.EntityCategories:     {"name"},
	models.EntityItems:          {"name", "category_name"},
	models.EntityItemSizes:      {"name", "size_code"},
	models.EntityModifierGroups: {"name"},
	models.EntityModifiers:      {"group_key", "modifier_key", "name"},
}

func checkRequiredColumns(filename string, kind models.EntityKind, headers []string) error {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}

	var missing []string
	for _, col := range requiredColumns[kind] {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &StructuralError{
			File:    filename,
			Message: fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}

// Typed row conversion. Values are coerced here; semantic rules (enum
// membership, references, ranges) are the validator's job so issues stay
// attached to precise rows.

func categoryRow(file string, row map[string]string) models.CategoryRow {
	return models.CategoryRow{
		File:               file,
		Row:                rowNumber(row),
		Name:               row["name"],
		Description:        row["description"],
		SortOrder:          parseIntDefault(row["sort_order"], 0),
		IsActive:           parseBoolDefault(row["is_active"], true),
		KitchenSectionName: row["kitchen_section_name"],
	}
}

func itemRow(file string, row map[string]string) models.ItemRow {
	return models.ItemRow{
		File:            file,
		Row:             rowNumber(row),
		Name:            row["name"],
		CategoryName:    row["category_name"],
		Description:     row["description"],
		SortOrder:       parseIntDefault(row["sort_order"], 0),
		IsActive:        parseBoolDefault(row["is_active"], true),
		IsSizeable:      parseBoolDefault(row["is_sizeable"], false),
		BasePrice:       row["base_price"],
		SizeCodes:       splitList(row["size_codes"]),
		DefaultSizeCode: row["default_size_code"],
		ModifierGroups:  splitList(row["modifier_groups"]),
	}
}

func itemSizeRow(file string, row map[string]string) models.ItemSizeRow {
	return models.ItemSizeRow{
		File:         file,
		Row:          rowNumber(row),
		Name:         row["name"],
		SizeCode:     row["size_code"],
		ItemName:     row["item_name"],
		Price:        row["price"],
		DisplayOrder: parseIntDefault(row["display_order"], 0),
		IsActive:     parseBoolDefault(row["is_active"], true),
	}
}

func modifierGroupRow(file string, row map[string]string) models.ModifierGroupRow {
	displayType := strings.ToUpper(strings.TrimSpace(row["display_type"]))
	if displayType == "" {
		displayType = string(models.DisplayTypeCheckbox)
	}
	return models.ModifierGroupRow{
		File:        file,
		Row:         rowNumber(row),
		Name:        row["name"],
		DisplayName: row["display_name"],
		DisplayType: displayType,
		MinSelect:   parseIntDefault(row["min_select"], 0),
		MaxSelect:   parseIntDefault(row["max_select"], 1),
		SortOrder:   parseIntDefault(row["sort_order"], 0),
		IsActive:    parseBoolDefault(row["is_active"], true),
	}
}

func modifierRow(file string, row map[string]string) models.ModifierRow {
	return models.ModifierRow{
		File:         file,
		Row:          rowNumber(row),
		GroupKey:     row["group_key"],
		ModifierKey:  row["modifier_key"],
		Name:         row["name"],
		MaxQuantity:  parseIntPtr(row["max_quantity"]),
		IsDefault:    parseBoolDefault(row["is_default"], false),
		DisplayOrder: parseIntDefault(row["display_order"], 0),
		IsActive:     parseBoolDefault(row["is_active"], true),
	}
}

func rowNumber(row map[string]string) int {
	n, _ := strconv.Atoi(row["_row"])
	return n
}

// parseBoolDefault accepts true/false/1/0 in any case, falling back on blank
// or unparseable input
func parseBoolDefault(value string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return def
	}
}

func parseIntDefault(value string, def int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return def
}

// parseIntPtr distinguishes an absent value from an explicit one: blank or
// unparseable cells stay nil
func parseIntPtr(value string) *int {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		return &n
	}
	return nil
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
