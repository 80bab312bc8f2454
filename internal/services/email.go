package services

import (
	"context"
	"fmt"
	"log/slog"

	"referrski/internal/domain"
)

type emailService struct {
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
	logger   *slog.Logger
}

// NewEmailService returns an EmailService that uses the given Mailer and template renderer.
func NewEmailService(mailer domain.Mailer, renderer domain.EmailTemplateRenderer, logger *slog.Logger) domain.EmailService {
	return &emailService{mailer: mailer, renderer: renderer, logger: logger}
}

// SendInvitation renders the "invitation" template and sends it to data.To.
// The caller's subject replaces the template subject when set.
func (s *emailService) SendInvitation(ctx context.Context, data *domain.InvitationEmailData, spec domain.EmailSpec) error {
	if data == nil {
		return fmt.Errorf("invitation email data is nil")
	}
	if data.Content == "" {
		data.Content = fmt.Sprintf("You've been invited by %s to join %s!", data.InviterName, data.AppName)
	}
	subject, htmlBody, textBody, err := s.renderer.Render("invitation", data)
	if err != nil {
		return fmt.Errorf("failed to render invitation template: %w", err)
	}
	if spec.Subject != "" {
		subject = spec.Subject
	}
	msg := domain.Message{
		To:       data.To,
		FromName: spec.FromName,
		Subject:  subject,
		HTML:     htmlBody,
		Text:     textBody,
		ReplyTo:  spec.ReplyTo,
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send invitation email: %w", err)
	}
	s.logger.InfoContext(ctx, "invitation email sent", "app", data.AppName)
	return nil
}
