package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"referrski/internal/delivery/http/helpers"
	"referrski/internal/delivery/http/middleware"
	"referrski/internal/domain"
)

// EmailRequest asks for the invitee to be emailed on create.
type EmailRequest struct {
	FromName string `json:"fromName" validate:"required"`
	Subject  string `json:"subject" validate:"required"`
	Content  string `json:"content" validate:"required"`
	ReplyTo  string `json:"replyTo" validate:"omitempty,email"`
}

// CreateInvitationRequest is the request body for POST /apps/{id}/invitations.
type CreateInvitationRequest struct {
	InviterID         string          `json:"inviterId" validate:"required"`
	InviteeIdentifier string          `json:"inviteeIdentifier" validate:"required"`
	Metadata          domain.Metadata `json:"metadata"`
	Email             *EmailRequest   `json:"email"`
}

// Validate implements helpers.Validator.
func (c CreateInvitationRequest) Validate() []domain.FieldError {
	if err := c.Metadata.Validate(); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return verr.Fields
		}
	}
	return nil
}

// VerifyInvitationRequest is the request body for POST /apps/{id}/invitations/verify.
type VerifyInvitationRequest struct {
	InviteeIdentifier string `json:"inviteeIdentifier" validate:"required"`
	InvitationID      string `json:"invitationId"`
}

// ValidateSignupRequest is the request body for POST /apps/{id}/invitations/validate-signup.
type ValidateSignupRequest struct {
	UserThatSignedUpID string `json:"userThatSignedUpId" validate:"required"`
}

// VerifyResult reports whether a pending invitation was completed.
type VerifyResult struct {
	Verified   bool               `json:"verified"`
	Invitation *domain.Invitation `json:"invitation,omitempty"`
}

// ValidateSignupResult reports whether a completed invitation was stamped with the signup.
type ValidateSignupResult struct {
	Validated  bool               `json:"validated"`
	Invitation *domain.Invitation `json:"invitation,omitempty"`
}

// DeleteResult reports how many invitations were removed.
type DeleteResult struct {
	Deleted int64 `json:"deleted"`
}

// InvitationListResponse is the data of GET /apps/{id}/invitations.
type InvitationListResponse struct {
	Invitations []*domain.Invitation   `json:"invitations"`
	Meta        helpers.PaginationMeta `json:"meta"`
}

// InvitationSuccessResponse is the success envelope for endpoints returning one invitation.
type InvitationSuccessResponse struct {
	Data  *domain.Invitation `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

// InvitationListSuccessResponse is the success envelope for GET /apps/{id}/invitations.
type InvitationListSuccessResponse struct {
	Data  InvitationListResponse `json:"data"`
	Error *helpers.APIError      `json:"error"`
}

// VerifySuccessResponse is the envelope for verify endpoints. On 404 error is set and data.verified is false.
type VerifySuccessResponse struct {
	Data  VerifyResult      `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// ValidateSignupSuccessResponse is the envelope for POST /apps/{id}/invitations/validate-signup.
type ValidateSignupSuccessResponse struct {
	Data  ValidateSignupResult `json:"data"`
	Error *helpers.APIError    `json:"error"`
}

// DeleteSuccessResponse is the envelope for bulk deletes.
type DeleteSuccessResponse struct {
	Data  DeleteResult      `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// PublicInvitationSuccessResponse is the envelope for GET /invitations/{id}.
type PublicInvitationSuccessResponse struct {
	Data  *domain.PublicInvitation `json:"data"`
	Error *helpers.APIError        `json:"error"`
}

type InvitationController struct {
	Logger  *slog.Logger
	Service domain.InvitationService
}

func NewInvitationController(logger *slog.Logger, svc domain.InvitationService) *InvitationController {
	return &InvitationController{Logger: logger, Service: svc}
}

func requireScope(w http.ResponseWriter, r *http.Request) (domain.Scope, bool) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok || (scope.UserID == "" && scope.AppID == "") {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return domain.Scope{}, false
	}
	return scope, true
}

// CreateInvitation godoc
// @Summary Create an invitation
// @Description Records a pending invitation, counts it against the owner's plan and, best effort, emails the invitee and fires invitation.created. Accepts a dashboard token or the app secret.
// @Tags invitations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "App ID"
// @Param invitation body CreateInvitationRequest true "Invitation"
// @Success 201 {object} controllers.InvitationSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: quota_exceeded"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /apps/{id}/invitations [post]
func (c *InvitationController) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	var req CreateInvitationRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	in := domain.CreateInvitationInput{
		InviterID:         req.InviterID,
		InviteeIdentifier: req.InviteeIdentifier,
		Metadata:          req.Metadata,
	}
	if req.Email != nil {
		in.Email = &domain.EmailSpec{
			FromName: req.Email.FromName,
			Subject:  req.Email.Subject,
			Content:  req.Email.Content,
			ReplyTo:  req.Email.ReplyTo,
		}
	}
	inv, err := c.Service.Create(r.Context(), scope, r.PathValue("id"), in)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, inv)
}

// ListInvitations godoc
// @Summary List an app's invitations
// @Description Newest first, paginated.
// @Tags invitations
// @Produce json
// @Security BearerAuth
// @Param id path string true "App ID"
// @Param page query int false "Page (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} controllers.InvitationListSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /apps/{id}/invitations [get]
func (c *InvitationController) ListInvitations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	params, err := helpers.ParsePagination(r)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	list, total, err := c.Service.List(r.Context(), domain.UserScope(userID), r.PathValue("id"), params)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if list == nil {
		list = []*domain.Invitation{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, InvitationListResponse{
		Invitations: list,
		Meta:        helpers.NewPaginationMeta(params, total),
	})
}

// VerifyInvitation godoc
// @Summary Complete a pending invitation
// @Description Moves the oldest pending invitation for the invitee (or the given invitationId) to completed and fires invitation.completed. No match is 404 with data.verified false.
// @Tags invitations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "App ID"
// @Param body body VerifyInvitationRequest true "Invitee"
// @Success 200 {object} controllers.VerifySuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} controllers.VerifySuccessResponse "error.code: not_found"
// @Router /apps/{id}/invitations/verify [post]
func (c *InvitationController) VerifyInvitation(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	var req VerifyInvitationRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	inv, err := c.Service.Verify(r.Context(), scope, r.PathValue("id"), domain.VerifyInvitationInput{
		InviteeIdentifier: req.InviteeIdentifier,
		InvitationID:      req.InvitationID,
	})
	c.writeVerify(w, r, inv, err)
}

func (c *InvitationController) writeVerify(w http.ResponseWriter, r *http.Request, inv *domain.Invitation, err error) {
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			helpers.WriteJSONErrorWithData(w, http.StatusNotFound, helpers.ErrCodeNotFound, "no valid invitation found", VerifyResult{Verified: false})
			return
		}
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, VerifyResult{Verified: true, Invitation: inv})
}

// ValidateSignup godoc
// @Summary Record that an invitee signed up
// @Description Stamps the completed, not yet signed up invitation whose invitee identifier equals userThatSignedUpId and fires invitation.signup_completed. Always 200; data.validated says whether one matched.
// @Tags invitations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "App ID"
// @Param body body ValidateSignupRequest true "Signed up user"
// @Success 200 {object} controllers.ValidateSignupSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /apps/{id}/invitations/validate-signup [post]
func (c *InvitationController) ValidateSignup(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	var req ValidateSignupRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	inv, validated, err := c.Service.ValidateSignup(r.Context(), scope, r.PathValue("id"), req.UserThatSignedUpID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, ValidateSignupResult{Validated: validated, Invitation: inv})
}

// DeleteInvitation godoc
// @Summary Delete one invitation
// @Tags invitations
// @Security BearerAuth
// @Param id path string true "App ID"
// @Param invitationId path string true "Invitation ID"
// @Success 204
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /apps/{id}/invitations/{invitationId} [delete]
func (c *InvitationController) DeleteInvitation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	err := c.Service.Delete(r.Context(), domain.UserScope(userID), r.PathValue("id"), r.PathValue("invitationId"))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteInviterInvitations godoc
// @Summary Erase an inviter's invitations in one app
// @Description Privacy erasure. Deletes every invitation the inviter sent from this app; zero is a valid count. No webhooks fire.
// @Tags invitations
// @Produce json
// @Security BearerAuth
// @Param id path string true "App ID"
// @Param inviterId path string true "Inviter ID"
// @Success 200 {object} controllers.DeleteSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /apps/{id}/inviters/{inviterId} [delete]
func (c *InvitationController) DeleteInviterInvitations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	n, err := c.Service.DeleteByInviter(r.Context(), domain.UserScope(userID), r.PathValue("id"), r.PathValue("inviterId"))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, DeleteResult{Deleted: n})
}

// EraseInviter godoc
// @Summary Erase an inviter across all of my apps
// @Description Deletes the inviter's invitations in every app the caller owns and writes an audit entry. 403 when none of them belong to the caller's apps. Rate limited per user.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param inviterId path string true "Inviter ID"
// @Success 200 {object} controllers.DeleteSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 429 {object} helpers.APIResponse "error.code: rate_limited"
// @Router /admin/inviters/{inviterId} [delete]
func (c *InvitationController) EraseInviter(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	n, err := c.Service.EraseInviter(r.Context(), userID, r.PathValue("inviterId"))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, DeleteResult{Deleted: n})
}

// GetPublicInvitation godoc
// @Summary Show a pending invitation
// @Description Public lookup for the accept page. Completed or unknown invitations are 404.
// @Tags public
// @Produce json
// @Param invitationId path string true "Invitation ID"
// @Success 200 {object} controllers.PublicInvitationSuccessResponse
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /invitations/{invitationId} [get]
func (c *InvitationController) GetPublicInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := c.Service.GetPublic(r.Context(), r.PathValue("invitationId"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "invitation not found or already used")
			return
		}
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, inv)
}

// AcceptInvitation godoc
// @Summary Accept an invitation by id
// @Description Public accept link. Completes the pending invitation and fires invitation.completed.
// @Tags public
// @Produce json
// @Param invitationId path string true "Invitation ID"
// @Success 200 {object} controllers.VerifySuccessResponse
// @Failure 404 {object} controllers.VerifySuccessResponse "error.code: not_found"
// @Router /invitations/{invitationId}/verify [post]
func (c *InvitationController) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := c.Service.VerifyByID(r.Context(), r.PathValue("invitationId"))
	c.writeVerify(w, r, inv, err)
}
