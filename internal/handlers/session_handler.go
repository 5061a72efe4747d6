package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/services"
)

// SessionHandler serves the import session lifecycle endpoints
type SessionHandler struct {
	service *services.ImportService
}

func NewSessionHandler(service *services.ImportService) *SessionHandler {
	return &SessionHandler{service: service}
}

// GetSession returns one session with its staged data and validation state
// @Summary Get an import session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /catalog/import/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	session, err := h.service.GetSession(c.Request.Context(), tenantID, sessionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SessionResponse{Success: true, Data: session})
}

// ListSessions lists the tenant's sessions newest first
// @Summary List import sessions
// @Tags sessions
// @Param status query string false "Filter by session status"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} models.SessionListResponse
// @Router /catalog/import/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	status := c.DefaultQuery("status", "")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	sessions, total, err := h.service.ListSessions(c.Request.Context(), tenantID, status, limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SessionListResponse{Success: true, Data: sessions, Total: total})
}

// UpdateSession replaces the staged dataset wholesale
// @Summary Update an import session's staged data
// @Tags sessions
// @Param id path string true "Session ID"
// @Param request body models.UpdateSessionRequest true "Replacement dataset"
// @Success 200 {object} models.SessionResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /catalog/import/sessions/{id} [put]
func (h *SessionHandler) UpdateSession(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	var req models.UpdateSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.service.UpdateSession(c.Request.Context(), tenantID, sessionID, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SessionResponse{Success: true, Data: session})
}

// AddRow appends a manually entered row
// @Summary Add a row to an import session
// @Tags sessions
// @Param id path string true "Session ID"
// @Param request body models.AddRowRequest true "Entity kind and field values"
// @Success 200 {object} models.SessionResponse
// @Router /catalog/import/sessions/{id}/rows [post]
func (h *SessionHandler) AddRow(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	var req models.AddRowRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.service.AddRow(c.Request.Context(), tenantID, sessionID, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SessionResponse{Success: true, Data: session})
}

// UpdateRow applies field edits to one staged row
// @Summary Edit a staged row
// @Tags sessions
// @Param id path string true "Session ID"
// @Param request body models.UpdateRowRequest true "Entity kind, row index, and field edits"
// @Success 200 {object} models.SessionResponse
// @Router /catalog/import/sessions/{id}/rows [patch]
func (h *SessionHandler) UpdateRow(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	var req models.UpdateRowRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.service.UpdateRow(c.Request.Context(), tenantID, sessionID, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SessionResponse{Success: true, Data: session})
}

// RemoveRow deletes one staged row
// @Summary Remove a staged row
// @Tags sessions
// @Param id path string true "Session ID"
// @Param request body models.RemoveRowRequest true "Entity kind and row index"
// @Success 200 {object} models.SessionResponse
// @Router /catalog/import/sessions/{id}/rows/delete [post]
func (h *SessionHandler) RemoveRow(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	var req models.RemoveRowRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.service.RemoveRow(c.Request.Context(), tenantID, sessionID, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SessionResponse{Success: true, Data: session})
}

// SaveSession commits the session's staged rows to the live catalog
// @Summary Commit an import session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /catalog/import/sessions/{id}/save [post]
func (h *SessionHandler) SaveSession(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	session, err := h.service.FinalSave(c.Request.Context(), tenantID, sessionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SessionResponse{Success: true, Data: session})
}

// RollbackSession reverses a committed session's catalog changes
// @Summary Roll back a committed import session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /catalog/import/sessions/{id}/rollback [post]
func (h *SessionHandler) RollbackSession(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	session, result, err := h.service.RollbackSession(c.Request.Context(), tenantID, sessionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"data":     session,
		"rollback": result,
	})
}

// DiscardSession abandons a staged session
// @Summary Discard an import session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /catalog/import/sessions/{id}/discard [post]
func (h *SessionHandler) DiscardSession(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	session, err := h.service.DiscardSession(c.Request.Context(), tenantID, sessionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SessionResponse{Success: true, Data: session})
}

// DeleteSession permanently removes a session record
// @Summary Delete an import session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /catalog/import/sessions/{id} [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteSession(c.Request.Context(), tenantID, sessionID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ClearHistory deletes every finished session for the tenant
// @Summary Clear import session history
// @Tags sessions
// @Success 200 {object} map[string]interface{}
// @Router /catalog/import/sessions/history [delete]
func (h *SessionHandler) ClearHistory(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	deleted, err := h.service.ClearHistory(c.Request.Context(), tenantID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": deleted})
}

// DownloadErrors returns the session's validation errors as a CSV file
// @Summary Download validation errors as CSV
// @Tags sessions
// @Param id path string true "Session ID"
// @Produce text/csv
// @Success 200
// @Failure 404 {object} models.ErrorResponse
// @Router /catalog/import/sessions/{id}/errors.csv [get]
func (h *SessionHandler) DownloadErrors(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	data, err := h.service.ErrorsCSV(c.Request.Context(), tenantID, sessionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("import_errors_%s_%s.csv", sessionID, time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "text/csv", data)
}

// parseSessionID reads and validates the :id path parameter
func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INVALID_SESSION_ID",
				Message: "Session ID must be a valid UUID",
			},
		})
		return uuid.Nil, false
	}
	return sessionID, true
}

// bindJSON binds the request body and writes a 400 on failure
func bindJSON(c *gin.Context, target interface{}) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return false
	}
	return true
}
