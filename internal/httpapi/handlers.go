package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"outreach-platform/internal/auth"
	"outreach-platform/internal/dialer"
	"outreach-platform/internal/history"
	"outreach-platform/internal/journey"
	"outreach-platform/internal/rbac"
	"outreach-platform/internal/tenants"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Journeys *journey.Service
	Enroller *journey.Enroller
	Dialer   *dialer.Service
	Tenants  *tenants.Service
	History  *history.Service
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: credential validation is delegated to the identity provider in
// front of this API; this endpoint only mints tokens for trusted callers.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.TenantID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, tenant_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.TenantID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Journeys ---

func (h Handlers) CreateJourney(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	var in journey.Journey
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	j, err := h.Journeys.CreateJourney(c.Request.Context(), tenantID, in)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, j)
}

func (h Handlers) GetJourney(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	j, err := h.Journeys.GetJourney(c.Request.Context(), tenantID, c.Param("journey_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (h Handlers) ListJourneys(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	js, err := h.Journeys.ListJourneys(c.Request.Context(), tenantID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"journeys": js})
}

type setActiveRequest struct {
	IsActive bool `json:"is_active"`
}

func (h Handlers) SetJourneyActive(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Journeys.SetJourneyActive(c.Request.Context(), tenantID, c.Param("journey_id"), req.IsActive); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) DeleteJourney(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	if err := h.Journeys.DeleteJourney(c.Request.Context(), tenantID, c.Param("journey_id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// --- Enrollment / lead journeys ---

type enrollRequest struct {
	LeadID string `json:"lead_id"`
}

// EnrollLead enrolls a single lead into a journey, bypassing trigger
// criteria. Used for manual pushes from the UI.
func (h Handlers) EnrollLead(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.LeadID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "lead_id required"})
		return
	}
	lj, err := h.Enroller.EnrollLead(c.Request.Context(), tenantID, c.Param("journey_id"), req.LeadID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lj)
}

func (h Handlers) ListLeadJourneys(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	status := journey.LeadJourneyStatus(c.Query("status"))
	ljs, err := h.Journeys.ListLeadJourneys(c.Request.Context(), tenantID, c.Query("journey_id"), status)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lead_journeys": ljs})
}

func (h Handlers) GetLeadJourney(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	lj, err := h.Journeys.GetLeadJourney(c.Request.Context(), tenantID, c.Param("lead_journey_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, lj)
}

func (h Handlers) PauseLeadJourney(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	if err := h.Journeys.PauseLeadJourney(c.Request.Context(), tenantID, c.Param("lead_journey_id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (h Handlers) ResumeLeadJourney(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	if err := h.Journeys.ResumeLeadJourney(c.Request.Context(), tenantID, c.Param("lead_journey_id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

func (h Handlers) ListLeadJourneyHistory(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	events, err := h.History.ListByLeadJourney(c.Request.Context(), tenantID, c.Param("lead_journey_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// --- DIDs ---

type createDIDRequest struct {
	Phone string `json:"phone"`
	State string `json:"state"`
}

func (h Handlers) CreateDID(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	var req createDIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	d, err := h.Dialer.CreateDID(c.Request.Context(), tenantID, req.Phone, req.State)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h Handlers) ListDIDs(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	dids, err := h.Dialer.ListDIDs(c.Request.Context(), tenantID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dids": dids})
}

func (h Handlers) SetDIDActive(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Dialer.SetDIDActive(c.Request.Context(), tenantID, c.Param("did_id"), req.IsActive); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Call attempts ---

func (h Handlers) ListLeadCallAttempts(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	attempts, err := h.Dialer.ListAttemptsByLead(c.Request.Context(), tenantID, c.Param("lead_id"), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

// --- Tenant dial settings ---

func (h Handlers) GetDialSettings(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	set, err := h.Tenants.Get(c.Request.Context(), tenantID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func (h Handlers) UpsertDialSettings(c *gin.Context) {
	tenantID, ok := tenantID(c)
	if !ok {
		return
	}
	var set tenants.Settings
	if err := c.ShouldBindJSON(&set); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	set.TenantID = tenantID
	if err := h.Tenants.Upsert(c.Request.Context(), set); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- PBX webhooks ---

type callEventRequest struct {
	TenantID       string `json:"tenant_id"`
	ProviderCallID string `json:"provider_call_id"`
	Outcome        string `json:"outcome"`
}

// CallEvent ingests terminal call events pushed by the PBX.
//
// NOTE: the route should sit behind PBX signature validation in production.
func (h Handlers) CallEvent(c *gin.Context) {
	var req callEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if _, err := h.Dialer.RecordCallEvent(c.Request.Context(), req.TenantID, req.ProviderCallID, req.Outcome); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Helpers ---

func tenantID(c *gin.Context) (string, bool) {
	tid, err := auth.TenantID(c.Request.Context())
	if err != nil || tid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return "", false
	}
	return tid, true
}

// abortWithError maps service sentinel errors onto HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, journey.ErrNotFound),
		errors.Is(err, dialer.ErrNotFound),
		errors.Is(err, tenants.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, journey.ErrAlreadyEnrolled):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "lead already enrolled"})
	case errors.Is(err, journey.ErrInvalidTransition):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "invalid state transition"})
	case errors.Is(err, journey.ErrInvalidArgument),
		errors.Is(err, dialer.ErrInvalidArgument),
		errors.Is(err, tenants.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Convenience middleware bundles.

func RequireTenantAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireTenant(), rbac.RequireAnyRole(roles...)}
}
