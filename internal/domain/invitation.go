package domain

import (
	"context"
	"time"
)

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationCompleted InvitationStatus = "completed"
	// InvitationExpired is reserved; nothing transitions into it yet.
	InvitationExpired InvitationStatus = "expired"
)

// Invitation is one referral attempt from an inviter to an invitee.
// swagger:model Invitation
type Invitation struct {
	ID                string           `json:"id"`
	AppID             string           `json:"appId"`
	InviterID         string           `json:"inviterId"`
	InviteeIdentifier string           `json:"inviteeIdentifier"`
	Status            InvitationStatus `json:"status"`
	Metadata          Metadata         `json:"metadata"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
	CompletedAt       *time.Time       `json:"completedAt"`
	SignedUpAt        *time.Time       `json:"signedUpAt"`
	SignedUpUserID    *string          `json:"signedUpUserId"`
}

// NewInvitation returns a pending invitation. ID and timestamps are set by the repository on create.
func NewInvitation(appID, inviterID, inviteeIdentifier string, metadata Metadata) *Invitation {
	if metadata == nil {
		metadata = Metadata{}
	}
	return &Invitation{
		AppID:             appID,
		InviterID:         inviterID,
		InviteeIdentifier: inviteeIdentifier,
		Status:            InvitationPending,
		Metadata:          metadata,
	}
}

// PublicInvitation is a pending invitation as shown on the public accept page.
// swagger:model PublicInvitation
type PublicInvitation struct {
	Invitation
	AppName       string  `json:"appName"`
	IOSAppURL     *string `json:"iosAppUrl"`
	AndroidAppURL *string `json:"androidAppUrl"`
}

// EmailSpec asks the engine to email the invitee on create.
type EmailSpec struct {
	FromName string
	Subject  string
	Content  string
	ReplyTo  string
}

// CreateInvitationInput holds the fields of a create request.
type CreateInvitationInput struct {
	InviterID         string
	InviteeIdentifier string
	Metadata          Metadata
	Email             *EmailSpec
}

// VerifyInvitationInput holds the fields of a verify request. InvitationID is optional.
type VerifyInvitationInput struct {
	InviteeIdentifier string
	InvitationID      string
}

// InvitationRepository defines storage operations for invitations.
// Single-row lookups return ErrNotFound when nothing matches.
type InvitationRepository interface {
	Create(ctx context.Context, inv *Invitation) error
	GetByID(ctx context.Context, id string) (*Invitation, error)
	ListByAppID(ctx context.Context, appID string, params PaginationParams) ([]*Invitation, int, error)
	ListCreatedSince(ctx context.Context, appID string, since time.Time) ([]*Invitation, error)
	FindPending(ctx context.Context, appID, inviteeIdentifier, invitationID string) (*Invitation, error)
	FindCompletedNotSignedUp(ctx context.Context, appID, inviteeIdentifier string) (*Invitation, error)
	MarkCompleted(ctx context.Context, id string, at time.Time) (*Invitation, error)
	MarkSignedUp(ctx context.Context, id, signedUpUserID string, at time.Time) (*Invitation, error)
	Delete(ctx context.Context, appID, id string) error
	DeleteByInviter(ctx context.Context, appID, inviterID string) (int64, error)
	DeleteByInviterInApps(ctx context.Context, appIDs []string, inviterID string) (int64, error)
	ExistsForInviterInApps(ctx context.Context, appIDs []string, inviterID string) (bool, error)
	CountFunnel(ctx context.Context, appID string) (FunnelCounts, error)
	CountByOwnerID(ctx context.Context, ownerID string) (int64, error)
}

// InvitationService is the invitation lifecycle engine.
type InvitationService interface {
	Create(ctx context.Context, scope Scope, appID string, in CreateInvitationInput) (*Invitation, error)
	Verify(ctx context.Context, scope Scope, appID string, in VerifyInvitationInput) (*Invitation, error)
	VerifyByID(ctx context.Context, invitationID string) (*Invitation, error)
	GetPublic(ctx context.Context, invitationID string) (*PublicInvitation, error)
	ValidateSignup(ctx context.Context, scope Scope, appID, userThatSignedUpID string) (inv *Invitation, validated bool, err error)
	List(ctx context.Context, scope Scope, appID string, params PaginationParams) ([]*Invitation, int, error)
	Delete(ctx context.Context, scope Scope, appID, invitationID string) error
	DeleteByInviter(ctx context.Context, scope Scope, appID, inviterID string) (int64, error)
	EraseInviter(ctx context.Context, ownerID, inviterID string) (int64, error)
}
