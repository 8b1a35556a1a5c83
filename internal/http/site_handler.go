package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitekit/internal/apiclient"
	"sitekit/internal/domain"
	"sitekit/internal/service"
	"sitekit/internal/validation"
)

// SiteHandler agrupa los endpoints publicos y de panel del sitio.
type SiteHandler struct {
	logger     *zap.Logger
	calculator *service.CostCalculator
}

func NewSiteHandler(logger *zap.Logger, calculator *service.CostCalculator) *SiteHandler {
	if calculator == nil {
		calculator = service.NewCostCalculator()
	}
	return &SiteHandler{logger: logger, calculator: calculator}
}

// ValidateContact maneja POST /validate/contact.
func (h *SiteHandler) ValidateContact(c *gin.Context) {
	var req validation.ContactInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if errs := validation.ValidateContact(req); !errs.OK() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"valid": false, "errors": errs})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// CostEstimate maneja POST /cost-estimates: calcula y guarda (o encola) la estimacion.
func (h *SiteHandler) CostEstimate(c *gin.Context) {
	origin, ok := mustOrigin(c)
	if !ok {
		return
	}
	var req service.EstimateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	estimate, errs := h.calculator.Calculate(req)
	if !errs.OK() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": errs})
		return
	}

	source, err := origin.Client(c.Request.Context()).SaveCostEstimate(c.Request.Context(), estimate)
	if err != nil {
		origin.Logger.Warn("save cost estimate failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"estimate": estimate, "saved": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"estimate": estimate, "saved": true, "source": source})
}

// Projects maneja GET /projects.
func (h *SiteHandler) Projects(c *gin.Context) {
	origin, ok := mustOrigin(c)
	if !ok {
		return
	}
	projects, source, err := origin.Client(c.Request.Context()).Projects(c.Request.Context())
	if err != nil {
		h.writeAPIError(c, origin, "list projects", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects, "source": source})
}

// ClientProjects maneja GET /client/projects. Clientes ven solo sus proyectos.
func (h *SiteHandler) ClientProjects(c *gin.Context) {
	origin, ok := mustOrigin(c)
	if !ok {
		return
	}
	user, _ := GetCurrentUser(c)
	ctx := c.Request.Context()
	api := origin.Client(ctx)

	var (
		projects []domain.Project
		source   apiclient.Source
		err      error
	)
	if user.Role == domain.RoleClient {
		projects, source, err = api.ClientProjects(ctx, user)
	} else {
		projects, source, err = api.Projects(ctx)
	}
	if err != nil {
		h.writeAPIError(c, origin, "list client projects", err)
		return
	}

	visible := projects[:0:0]
	for _, p := range projects {
		if canSeeProject(user, p) {
			visible = append(visible, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{"projects": visible, "source": source})
}

// ClientProject maneja GET /client/projects/:id.
func (h *SiteHandler) ClientProject(c *gin.Context) {
	origin, ok := mustOrigin(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	user, _ := GetCurrentUser(c)

	projects, _, err := origin.Client(ctx).Projects(ctx)
	if err != nil {
		h.writeAPIError(c, origin, "get project", err)
		return
	}
	for _, p := range projects {
		if p.ID != id {
			continue
		}
		if !origin.Auth.CanAccessProject(ctx, id) && p.ClientID != user.ID {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"project": p})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
}

// SubmitQuote maneja POST /quotes.
func (h *SiteHandler) SubmitQuote(c *gin.Context) {
	origin, ok := mustOrigin(c)
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		Phone       string `json:"phone"`
		ProjectType string `json:"project_type"`
		ZipCode     string `json:"zip_code"`
		Message     string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	errs := validation.ValidateContact(validation.ContactInput{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		ZipCode: req.ZipCode,
		Message: req.Message,
	})
	if !errs.OK() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": errs})
		return
	}

	quote := domain.QuoteRequest{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.TrimSpace(req.Email),
		Phone:       strings.TrimSpace(req.Phone),
		ProjectType: strings.TrimSpace(req.ProjectType),
		ZipCode:     strings.TrimSpace(req.ZipCode),
		Message:     strings.TrimSpace(req.Message),
		CreatedAt:   time.Now().UTC(),
	}
	source, err := origin.Client(c.Request.Context()).SubmitQuote(c.Request.Context(), quote)
	if err != nil {
		h.writeAPIError(c, origin, "submit quote", err)
		return
	}
	c.JSON(writeStatus(source), gin.H{"quote": quote, "source": source})
}

// Subscribe maneja POST /newsletter.
func (h *SiteHandler) Subscribe(c *gin.Context) {
	origin, ok := mustOrigin(c)
	if !ok {
		return
	}
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	errs := validation.NewForm().
		Field("email", req.Email, validation.RequiredRule("email"), validation.Check(validation.Email, "email is not valid")).
		Field("name", req.Name, validation.Optional(validation.Check(validation.Name, "name contains invalid characters"))).
		Validate()
	if !errs.OK() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": errs})
		return
	}

	signup := domain.NewsletterSignup{
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: time.Now().UTC(),
	}
	source, err := origin.Client(c.Request.Context()).SubscribeNewsletter(c.Request.Context(), signup)
	if err != nil {
		h.writeAPIError(c, origin, "newsletter signup", err)
		return
	}
	c.JSON(writeStatus(source), gin.H{"status": "subscribed", "source": source})
}

// Sync maneja POST /sync: reenvia las colas offline del origen.
func (h *SiteHandler) Sync(c *gin.Context) {
	origin, ok := mustOrigin(c)
	if !ok {
		return
	}
	sent, err := origin.Client(c.Request.Context()).FlushPending(c.Request.Context())
	if err != nil {
		if apiclient.IsUnavailable(err) {
			c.JSON(http.StatusAccepted, gin.H{"sent": sent, "pending": true})
			return
		}
		h.writeAPIError(c, origin, "flush pending", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent, "pending": false})
}

// AdminDashboard maneja GET /admin/dashboard.
func (h *SiteHandler) AdminDashboard(c *gin.Context) {
	origin, ok := mustOrigin(c)
	if !ok {
		return
	}
	user, _ := GetCurrentUser(c)
	ctx := c.Request.Context()

	var errorsLog []domain.ErrorEntry
	if _, err := origin.Store.Get(ctx, domain.KeyErrorLog, &errorsLog); err != nil {
		origin.Logger.Warn("read error log failed", zap.Error(err))
	}
	pending := gin.H{}
	for _, key := range []string{domain.KeyPendingQuotes, domain.KeyPendingNewsletter, domain.KeyPendingCostEstimates} {
		var items []any
		_, _ = origin.Store.Get(ctx, key, &items)
		pending[key] = len(items)
	}
	summary, err := origin.Perf.Summary(ctx)
	if err != nil {
		origin.Logger.Warn("metrics summary failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"user":    user,
		"pending": pending,
		"errors":  errorsLog,
		"metrics": summary,
	})
}

// MetricsSummary maneja GET /metrics/summary.
func (h *SiteHandler) MetricsSummary(c *gin.Context) {
	origin, ok := mustOrigin(c)
	if !ok {
		return
	}
	summary, err := origin.Perf.Summary(c.Request.Context())
	if err != nil {
		origin.Logger.Error("metrics summary failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read metrics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": summary})
}

func (h *SiteHandler) writeAPIError(c *gin.Context, origin *service.Origin, op string, err error) {
	if apiclient.IsUnavailable(err) {
		origin.Logger.Warn(op+" unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backend unavailable"})
		return
	}
	if status := apiclient.StatusCode(err); status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "rejected by backend"})
		return
	}
	origin.Logger.Error(op+" failed", zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "backend error"})
}

func canSeeProject(user domain.User, p domain.Project) bool {
	switch user.Role {
	case domain.RoleAdmin, domain.RoleStaff:
		return true
	}
	return p.ClientID == user.ID || user.HasProject(p.ID)
}

func writeStatus(source apiclient.Source) int {
	if source == apiclient.SourceQueued {
		return http.StatusAccepted
	}
	return http.StatusCreated
}
