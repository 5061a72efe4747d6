package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/parser"
	"catalog-import-service/internal/services"
)

// MaxUploadBytes caps a single uploaded file (CSV, XLSX, or archive)
const MaxUploadBytes = 20 << 20

// ImportHandler serves uploads and template downloads
type ImportHandler struct {
	service *services.ImportService
}

func NewImportHandler(service *services.ImportService) *ImportHandler {
	return &ImportHandler{service: service}
}

// GetImportTemplate returns the import template definition or file for one entity kind
// @Summary Download an import template
// @Tags import
// @Param entity path string true "Entity kind (categories, items, itemSizes, modifierGroups, modifiers)"
// @Param format query string false "Template format: json, csv, or xlsx" default(json)
// @Success 200 {object} models.ImportTemplate
// @Failure 400 {object} models.ErrorResponse
// @Router /catalog/import/templates/{entity} [get]
func (h *ImportHandler) GetImportTemplate(c *gin.Context) {
	entity := models.EntityKind(c.Param("entity"))
	template, ok := models.ImportTemplateFor(entity)
	if !ok {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "UNKNOWN_ENTITY",
				Message: fmt.Sprintf("'%s' is not an importable entity kind", entity),
			},
		})
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "csv":
		h.generateCSVTemplate(c, template)
	case "xlsx":
		h.generateXLSXTemplate(c, template)
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"template": template,
		})
	}
}

// generateCSVTemplate generates and downloads a CSV template (headers only)
func (h *ImportHandler) generateCSVTemplate(c *gin.Context, template models.ImportTemplate) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_import_template.csv", template.Entity))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	writer.Write(headers)
}

// generateXLSXTemplate generates and downloads an Excel template
func (h *ImportHandler) generateXLSXTemplate(c *gin.Context, template models.ImportTemplate) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := strings.Title(string(template.Entity))
	f.SetSheetName("Sheet1", sheetName)

	// Style for header row
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	// Style for required columns
	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		if col.Required {
			headerText = col.Name + " *"
		}
		f.SetCellValue(sheetName, cell, headerText)

		if col.Required {
			f.SetCellStyle(sheetName, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(sheetName, cell, cell, headerStyle)
		}

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 20)
	}

	// Add Instructions sheet
	f.NewSheet("Instructions")
	f.SetCellValue("Instructions", "A1", fmt.Sprintf("%s Import Instructions", sheetName))

	f.SetCellValue("Instructions", "A3", "IMPORT SESSIONS:")
	f.SetCellValue("Instructions", "A4", "Uploading this file creates a staged import session. Nothing touches the live menu")
	f.SetCellValue("Instructions", "A5", "until you review the parsed rows, fix any validation errors, and save the session.")
	f.SetCellValue("Instructions", "A6", "You can upload several files (or a zip) into one session; rows accumulate.")

	f.SetCellValue("Instructions", "A8", "REFERENCES BY NAME:")
	f.SetCellValue("Instructions", "A9", "Rows reference other records by name or code, never by UUID. References resolve")
	f.SetCellValue("Instructions", "A10", "against both the live catalog and the rows staged in the same session, so a new")
	f.SetCellValue("Instructions", "A11", "category and its items can arrive in one upload.")

	f.SetCellValue("Instructions", "A13", "Column Definitions:")
	f.SetCellValue("Instructions", "A14", "Column")
	f.SetCellValue("Instructions", "B14", "Description")
	f.SetCellValue("Instructions", "C14", "Required")
	f.SetCellValue("Instructions", "D14", "Type")
	f.SetCellValue("Instructions", "E14", "Example")

	for i, col := range template.Columns {
		row := i + 15
		f.SetCellValue("Instructions", fmt.Sprintf("A%d", row), col.Name)
		f.SetCellValue("Instructions", fmt.Sprintf("B%d", row), col.Description)
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		f.SetCellValue("Instructions", fmt.Sprintf("C%d", row), required)
		f.SetCellValue("Instructions", fmt.Sprintf("D%d", row), col.Type)
		f.SetCellValue("Instructions", fmt.Sprintf("E%d", row), col.Example)
	}

	f.SetColWidth("Instructions", "A", "A", 25)
	f.SetColWidth("Instructions", "B", "B", 60)
	f.SetColWidth("Instructions", "C", "C", 15)
	f.SetColWidth("Instructions", "D", "D", 15)
	f.SetColWidth("Instructions", "E", "E", 40)

	sheetIdx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(sheetIdx)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_import_template.xlsx", template.Entity))

	f.Write(c.Writer)
}

// UploadImport creates a new import session from an uploaded file
// @Summary Upload a catalog import file
// @Tags import
// @Accept multipart/form-data
// @Param file formData file true "CSV, XLSX, or zip archive"
// @Param entity formData string false "Entity kind hint for files whose name does not identify one"
// @Success 201 {object} models.SessionResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /catalog/import/sessions [post]
func (h *ImportHandler) UploadImport(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	userID := c.GetString("user_id")

	filename, data, ok := h.readUpload(c)
	if !ok {
		return
	}
	hint := models.EntityKind(c.DefaultPostForm("entity", ""))

	session, err := h.service.Parse(c.Request.Context(), tenantID, userID, filename, data, hint)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.SessionResponse{Success: true, Data: session})
}

// AppendImportFile parses another file into an existing session
// @Summary Append a file to an import session
// @Tags import
// @Accept multipart/form-data
// @Param id path string true "Session ID"
// @Param file formData file true "CSV, XLSX, or zip archive"
// @Param entity formData string false "Entity kind hint"
// @Success 200 {object} models.SessionResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /catalog/import/sessions/{id}/files [post]
func (h *ImportHandler) AppendImportFile(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	filename, data, ok := h.readUpload(c)
	if !ok {
		return
	}
	hint := models.EntityKind(c.DefaultPostForm("entity", ""))

	session, err := h.service.AppendFile(c.Request.Context(), tenantID, sessionID, filename, data, hint)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SessionResponse{Success: true, Data: session})
}

// readUpload extracts and size-checks the multipart "file" field
func (h *ImportHandler) readUpload(c *gin.Context) (string, []byte, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "FILE_REQUIRED",
				Message: "Please upload a CSV, XLSX, or zip file",
			},
		})
		return "", nil, false
	}
	defer file.Close()

	if header.Size > MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "FILE_TOO_LARGE",
				Message: fmt.Sprintf("File exceeds the %d MB upload limit", MaxUploadBytes>>20),
			},
		})
		return "", nil, false
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "READ_FAILED",
				Message: "Failed to read uploaded file",
			},
		})
		return "", nil, false
	}

	return header.Filename, data, true
}

// respondServiceError maps service and parser errors onto HTTP responses
func respondServiceError(c *gin.Context, err error) {
	var structural *parser.StructuralError
	if errors.As(err, &structural) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "STRUCTURAL_ERROR",
				Message: structural.Error(),
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "SESSION_NOT_FOUND", Message: "Import session not found"},
		})
	case errors.Is(err, services.ErrSessionNotEditable):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "SESSION_NOT_EDITABLE", Message: "Import session is no longer editable"},
		})
	case errors.Is(err, services.ErrSessionNotCommitted):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "SESSION_NOT_COMMITTED", Message: "Only committed sessions can be rolled back"},
		})
	case errors.Is(err, services.ErrSessionCommitted):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "SESSION_COMMITTED", Message: "Committed sessions must be rolled back before deletion"},
		})
	case errors.Is(err, services.ErrValidationFailed):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "VALIDATION_FAILED", Message: "The session has validation errors; fix them before saving"},
		})
	case errors.Is(err, services.ErrEmptyDataset):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "EMPTY_SESSION", Message: "The session has no staged rows to save"},
		})
	case errors.Is(err, services.ErrUnknownEntity):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "UNKNOWN_ENTITY", Message: "Unknown entity kind"},
		})
	case errors.Is(err, services.ErrUnknownField):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "UNKNOWN_FIELD", Message: err.Error()},
		})
	case errors.Is(err, services.ErrRowNotFound):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "ROW_NOT_FOUND", Message: "Row index out of range"},
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "INTERNAL_ERROR", Message: err.Error()},
		})
	}
}
