package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"referrski/internal/delivery/http/helpers"
	"referrski/internal/delivery/http/middleware"
	"referrski/internal/domain"
)

// Metrics period bounds, in days.
const (
	DefaultMetricsPeriod = 30
	MaxMetricsPeriod     = 365
)

// CreateAppRequest is the request body for POST /apps.
type CreateAppRequest struct {
	Name          string  `json:"name" validate:"required"`
	WebhookURL    *string `json:"webhookUrl"`
	AuthHeader    *string `json:"authHeader"`
	IOSAppURL     *string `json:"iosAppUrl"`
	AndroidAppURL *string `json:"androidAppUrl"`
}

// UpdateAppRequest is the request body for PATCH /apps/{id}. Omitted fields are unchanged; an empty string clears an optional field.
type UpdateAppRequest struct {
	Name          *string `json:"name"`
	WebhookURL    *string `json:"webhookUrl"`
	AuthHeader    *string `json:"authHeader"`
	IOSAppURL     *string `json:"iosAppUrl"`
	AndroidAppURL *string `json:"androidAppUrl"`
}

// TestWebhookRequest is the request body for POST /apps/{id}/webhooks/test.
type TestWebhookRequest struct {
	Type              string          `json:"type" validate:"required,oneof=create verify"`
	InviterID         string          `json:"inviterId"`
	InviteeIdentifier string          `json:"inviteeIdentifier" validate:"required"`
	InvitationID      string          `json:"invitationId"`
	Metadata          domain.Metadata `json:"metadata"`
}

// AppSuccessResponse is the success envelope for single-app endpoints.
type AppSuccessResponse struct {
	Data  *domain.App       `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// AppListSuccessResponse is the success envelope for GET /apps.
type AppListSuccessResponse struct {
	Data  []*domain.App     `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// AppMetricsSuccessResponse is the success envelope for GET /apps/{id}/metrics.
type AppMetricsSuccessResponse struct {
	Data  *domain.AppMetrics `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

// AppStatsSuccessResponse is the success envelope for GET /apps/{id}/stats.
type AppStatsSuccessResponse struct {
	Data  *domain.AppStats  `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// TestWebhookSuccessResponse is the envelope for POST /apps/{id}/webhooks/test. On 502 error is set and data still carries the payload.
type TestWebhookSuccessResponse struct {
	Data  *domain.TestWebhookResult `json:"data"`
	Error *helpers.APIError         `json:"error"`
}

type AppController struct {
	Logger  *slog.Logger
	Apps    domain.AppService
	Metrics domain.MetricsService
}

func NewAppController(logger *slog.Logger, apps domain.AppService, metrics domain.MetricsService) *AppController {
	return &AppController{Logger: logger, Apps: apps, Metrics: metrics}
}

// requireUser returns the dashboard user ID or writes 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok || userID == "" {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}

// CreateApp godoc
// @Summary Register a tenant app
// @Description Creates an app owned by the caller. authHeader is both the SDK secret and the Authorization value sent with webhooks.
// @Tags apps
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param app body CreateAppRequest true "App settings"
// @Success 201 {object} controllers.AppSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /apps [post]
func (c *AppController) CreateApp(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req CreateAppRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	app, err := c.Apps.Create(r.Context(), userID, domain.AppInput{
		Name:          req.Name,
		WebhookURL:    req.WebhookURL,
		AuthHeader:    req.AuthHeader,
		IOSAppURL:     req.IOSAppURL,
		AndroidAppURL: req.AndroidAppURL,
	})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, app)
}

// ListApps godoc
// @Summary List my apps
// @Tags apps
// @Produce json
// @Security BearerAuth
// @Success 200 {object} controllers.AppListSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /apps [get]
func (c *AppController) ListApps(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	apps, err := c.Apps.List(r.Context(), userID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, apps)
}

// GetApp godoc
// @Summary Get an app
// @Tags apps
// @Produce json
// @Security BearerAuth
// @Param id path string true "App ID"
// @Success 200 {object} controllers.AppSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /apps/{id} [get]
func (c *AppController) GetApp(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	app, err := c.Apps.Get(r.Context(), domain.UserScope(userID), r.PathValue("id"))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, app)
}

// UpdateApp godoc
// @Summary Update an app
// @Tags apps
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "App ID"
// @Param app body UpdateAppRequest true "Fields to change"
// @Success 200 {object} controllers.AppSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /apps/{id} [patch]
func (c *AppController) UpdateApp(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req UpdateAppRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	in := domain.AppInput{
		WebhookURL:    req.WebhookURL,
		AuthHeader:    req.AuthHeader,
		IOSAppURL:     req.IOSAppURL,
		AndroidAppURL: req.AndroidAppURL,
	}
	if req.Name != nil {
		if *req.Name == "" {
			helpers.WriteValidationError(w, domain.NewValidationError("name", "app name is required"))
			return
		}
		in.Name = *req.Name
	}
	app, err := c.Apps.Update(r.Context(), userID, r.PathValue("id"), in)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, app)
}

// DeleteApp godoc
// @Summary Delete an app and all of its invitations
// @Tags apps
// @Security BearerAuth
// @Param id path string true "App ID"
// @Success 204
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /apps/{id} [delete]
func (c *AppController) DeleteApp(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := c.Apps.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAppStats godoc
// @Summary Invitation totals for an app
// @Tags apps
// @Produce json
// @Security BearerAuth
// @Param id path string true "App ID"
// @Success 200 {object} controllers.AppStatsSuccessResponse
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /apps/{id}/stats [get]
func (c *AppController) GetAppStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	stats, err := c.Metrics.AppStats(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, stats)
}

// GetAppMetrics godoc
// @Summary Referral funnel for an app
// @Description Overall counts, the trailing window and a per-day breakdown. Rates are percentages with two decimals.
// @Tags apps
// @Produce json
// @Security BearerAuth
// @Param id path string true "App ID"
// @Param period query int false "Window in days (1-365, default 30)"
// @Success 200 {object} controllers.AppMetricsSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /apps/{id}/metrics [get]
func (c *AppController) GetAppMetrics(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	period := DefaultMetricsPeriod
	if s := r.URL.Query().Get("period"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > MaxMetricsPeriod {
			helpers.WriteValidationError(w, domain.NewValidationError("period", "must be a whole number of days between 1 and 365"))
			return
		}
		period = v
	}
	m, err := c.Metrics.AppMetrics(r.Context(), userID, r.PathValue("id"), period)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, m)
}

// TestWebhook godoc
// @Summary Send a test webhook
// @Description Posts a synthetic invitation.created or invitation.completed event to the app's webhook URL and reports the answer. A non-2xx answer is still 200; transport failures are 502 with the payload.
// @Tags apps
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "App ID"
// @Param body body TestWebhookRequest true "Synthetic event"
// @Success 200 {object} controllers.TestWebhookSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 502 {object} controllers.TestWebhookSuccessResponse "error.code: bad_gateway"
// @Router /apps/{id}/webhooks/test [post]
func (c *AppController) TestWebhook(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req TestWebhookRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	result, err := c.Apps.SendTestWebhook(r.Context(), userID, r.PathValue("id"), domain.TestWebhookInput{
		Type:              req.Type,
		InviterID:         req.InviterID,
		InviteeIdentifier: req.InviteeIdentifier,
		InvitationID:      req.InvitationID,
		Metadata:          req.Metadata,
	})
	if err != nil {
		if result != nil && !errors.Is(err, domain.ErrInvalidInput) {
			c.Logger.WarnContext(r.Context(), "test webhook delivery failed", "app_id", r.PathValue("id"), "err", err)
			helpers.WriteJSONErrorWithData(w, http.StatusBadGateway, helpers.ErrCodeBadGateway, "webhook delivery failed", result)
			return
		}
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, result)
}
