// Package handler exposes the report wizard over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reportflow_backend/internal/reports/agent"
	"reportflow_backend/internal/reports/publish"
	"reportflow_backend/internal/reports/transport"
	"reportflow_backend/internal/reports/wizard"
	"reportflow_backend/platform/httpkit"
	"reportflow_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for the report wizard.
type Handler struct {
	wizard    *wizard.Service
	generator *agent.SectionGenerator
	pipeline  *publish.Pipeline
	val       *validator.Validator
}

// New creates the reports handler.
func New(wizardSvc *wizard.Service, generator *agent.SectionGenerator, pipeline *publish.Pipeline, val *validator.Validator) *Handler {
	return &Handler{
		wizard:    wizardSvc,
		generator: generator,
		pipeline:  pipeline,
		val:       val,
	}
}

// RegisterRoutes registers the report routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/types", h.ListTypes)

	rg.POST("/wizard", h.CreateSession)
	rg.GET("/wizard/:id", h.GetSession)
	rg.DELETE("/wizard/:id", h.DeleteSession)

	rg.GET("/wizard/:id/leads", h.SearchLeads)
	rg.POST("/wizard/:id/leads/refresh", h.RefreshLeads)
	rg.PUT("/wizard/:id/lead", h.SelectLead)

	rg.POST("/wizard/:id/next", h.Next)
	rg.POST("/wizard/:id/back", h.Back)
	rg.PUT("/wizard/:id/type", h.ChooseType)
	rg.PATCH("/wizard/:id/config", h.UpdateConfig)

	rg.POST("/wizard/:id/sections/:sectionId/generate", h.GenerateSection)
	rg.GET("/wizard/:id/preview", h.Preview)
	rg.POST("/wizard/:id/save", h.Save)
	rg.POST("/wizard/:id/send", h.Send)
}

// sessionScope extracts the session ID from the path and the user from the
// auth context.
func sessionScope(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.UUID{}, uuid.UUID{}, false
	}
	userID, ok := httpkit.UserID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "authentication required", nil)
		return uuid.UUID{}, uuid.UUID{}, false
	}
	return sessionID, userID, true
}

// ListTypes handles GET /api/v1/reports/types
func (h *Handler) ListTypes(c *gin.Context) {
	httpkit.OK(c, transport.NewReportTypeResponses())
}

// CreateSession handles POST /api/v1/reports/wizard
func (h *Handler) CreateSession(c *gin.Context) {
	var req transport.CreateWizardRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
	}

	userID, ok := httpkit.UserID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	session, err := h.wizard.Create(c.Request.Context(), userID, req.LeadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, transport.NewSessionResponse(session))
}

// GetSession handles GET /api/v1/reports/wizard/:id
func (h *Handler) GetSession(c *gin.Context) {
	sessionID, userID, ok := sessionScope(c)
	if !ok {
		return
	}

	session, err := h.wizard.Get(sessionID, userID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewSessionResponse(session))
}

// DeleteSession handles DELETE /api/v1/reports/wizard/:id
func (h *Handler) DeleteSession(c *gin.Context) {
	sessionID, userID, ok := sessionScope(c)
	if !ok {
		return
	}

	if err := h.wizard.Delete(sessionID, userID); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// SearchLeads handles GET /api/v1/reports/wizard/:id/leads?q=
func (h *Handler) SearchLeads(c *gin.Context) {
	sessionID, userID, ok := sessionScope(c)
	if !ok {
		return
	}

	candidates, err := h.wizard.Leads(sessionID, userID, c.Query("q"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewCandidateResponses(candidates))
}

// RefreshLeads handles POST /api/v1/reports/wizard/:id/leads/refresh
func (h *Handler) RefreshLeads(c *gin.Context) {
	sessionID, userID, ok := sessionScope(c)
	if !ok {
		return
	}

	if err := h.wizard.RefreshLeads(c.Request.Context(), sessionID, userID); httpkit.HandleError(c, err) {
		return
	}
	candidates, err := h.wizard.Leads(sessionID, userID, "")
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewCandidateResponses(candidates))
}

// SelectLead handles PUT /api/v1/reports/wizard/:id/lead
func (h *Handler) SelectLead(c *gin.Context) {
	var req transport.SelectLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	sessionID, userID, ok := sessionScope(c)
	if !ok {
		return
	}

	if err := h.wizard.SelectLead(c.Request.Context(), sessionID, userID, req.LeadID); httpkit.HandleError(c, err) {
		return
	}
	session, err := h.wizard.Get(sessionID, userID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewSessionResponse(session))
}

// Next handles POST /api/v1/reports/wizard/:id/next
func (h *Handler) Next(c *gin.Context) {
	sessionID, userID, ok := sessionScope(c)
	if !ok {
		return
	}

	session, err := h.wizard.Next(sessionID, userID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewSessionResponse(session))
}

// Back handles POST /api/v1/reports/wizard/:id/back
func (h *Handler) Back(c *gin.Context) {
	sessionID, userID, ok := sessionScope(c)
	if !ok {
		return
	}

	session, err := h.wizard.Back(sessionID, userID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewSessionResponse(session))
}

// ChooseType handles PUT /api/v1/reports/wizard/:id/type
func (h *Handler) ChooseType(c *gin.Context) {
	var req transport.ChooseTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	sessionID, userID, ok := sessionScope(c)
	if !ok {
		return
	}

	session, err := h.wizard.ChooseType(sessionID, userID, req.Type)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewSessionResponse(session))
}

// UpdateConfig handles PATCH /api/v1/reports/wizard/:id/config
func (h *Handler) UpdateConfig(c *gin.Context) {
	var req transport.UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	sessionID, userID, ok := sessionScope(c)
	if !ok {
		return
	}

	session, err := h.wizard.UpdateConfig(sessionID, userID, req.ToPatch())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewSessionResponse(session))
}

// GenerateSection handles POST /api/v1/reports/wizard/:id/sections/:sectionId/generate
func (h *Handler) GenerateSection(c *gin.Context) {
	var req transport.GenerateSectionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
	}

	sessionID, userID, ok := sessionScope(c)
	if !ok {
		return
	}

	session, err := h.wizard.Get(sessionID, userID)
	if httpkit.HandleError(c, err) {
		return
	}

	entry, err := h.generator.Generate(c.Request.Context(), session, c.Param("sectionId"), req.Prompt)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, entry)
}

// Preview handles GET /api/v1/reports/wizard/:id/preview
func (h *Handler) Preview(c *gin.Context) {
	sessionID, userID, ok := sessionScope(c)
	if !ok {
		return
	}

	doc, err := h.wizard.Preview(sessionID, userID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, doc)
}

// Save handles POST /api/v1/reports/wizard/:id/save
func (h *Handler) Save(c *gin.Context) {
	sessionID, userID, ok := sessionScope(c)
	if !ok {
		return
	}

	session, err := h.wizard.Get(sessionID, userID)
	if httpkit.HandleError(c, err) {
		return
	}

	report, err := h.pipeline.Save(c.Request.Context(), session)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// Send handles POST /api/v1/reports/wizard/:id/send
func (h *Handler) Send(c *gin.Context) {
	var req transport.SendReportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
	}

	sessionID, userID, ok := sessionScope(c)
	if !ok {
		return
	}

	session, err := h.wizard.Get(sessionID, userID)
	if httpkit.HandleError(c, err) {
		return
	}

	result, err := h.pipeline.Send(c.Request.Context(), session, req.Method, req.Recipient)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
