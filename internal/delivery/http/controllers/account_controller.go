package controllers

import (
	"log/slog"
	"net/http"

	"referrski/internal/delivery/http/helpers"
	"referrski/internal/domain"
)

// UsageSuccessResponse is the success envelope for GET /invite-usage.
type UsageSuccessResponse struct {
	Data  *domain.UsageSummary `json:"data"`
	Error *helpers.APIError    `json:"error"`
}

// PlansSuccessResponse is the success envelope for GET /plans.
type PlansSuccessResponse struct {
	Data  []*domain.Plan    `json:"data"`
	Error *helpers.APIError `json:"error"`
}

type AccountController struct {
	Logger        *slog.Logger
	Usage         domain.UsageService
	Subscriptions domain.SubscriptionService
}

func NewAccountController(logger *slog.Logger, usage domain.UsageService, subscriptions domain.SubscriptionService) *AccountController {
	return &AccountController{Logger: logger, Usage: usage, Subscriptions: subscriptions}
}

// GetInviteUsage godoc
// @Summary My invitation quota
// @Description Lifetime invitations created across the caller's apps against the resolved plan's limit.
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} controllers.UsageSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 503 {object} helpers.APIResponse "error.code: service_unavailable"
// @Router /invite-usage [get]
func (c *AccountController) GetInviteUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	summary, err := c.Usage.Summary(r.Context(), userID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, summary)
}

// ListPlans godoc
// @Summary Active subscription plans
// @Tags account
// @Produce json
// @Success 200 {object} controllers.PlansSuccessResponse
// @Router /plans [get]
func (c *AccountController) ListPlans(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSONSuccess(w, http.StatusOK, c.Subscriptions.Plans())
}
