package domain

import "context"

// Message is one outbound email.
type Message struct {
	To       string
	FromName string
	Subject  string
	HTML     string
	Text     string
	ReplyTo  string
}

// Mailer defines the contract for sending emails (infrastructure port).
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// InvitationEmailData holds data for the invitation email.
type InvitationEmailData struct {
	To            string
	AppName       string
	InviterName   string
	Content       string
	AcceptURL     string
	IOSAppURL     string
	AndroidAppURL string
}

// EmailService defines the contract for sending domain-level emails.
type EmailService interface {
	SendInvitation(ctx context.Context, data *InvitationEmailData, spec EmailSpec) error
}
