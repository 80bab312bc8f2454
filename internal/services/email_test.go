package services

import (
	"context"
	"errors"
	"testing"

	"referrski/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureMailer struct {
	sent []domain.Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg domain.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type stubRenderer struct {
	data any
	err  error
}

func (r *stubRenderer) Render(name string, data any) (string, string, string, error) {
	if r.err != nil {
		return "", "", "", r.err
	}
	r.data = data
	return "template subject", "<p>" + name + "</p>", name, nil
}

func TestEmailService_SendInvitation(t *testing.T) {
	ctx := context.Background()
	mailer := &captureMailer{}
	renderer := &stubRenderer{}
	svc := NewEmailService(mailer, renderer, testLogger)

	data := &domain.InvitationEmailData{To: "bob@y.com", AppName: "Acme", InviterName: "alice"}
	err := svc.SendInvitation(ctx, data, domain.EmailSpec{FromName: "Alice", Subject: "Join Acme", ReplyTo: "alice@x.com"})
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "bob@y.com", msg.To)
	assert.Equal(t, "Alice", msg.FromName)
	assert.Equal(t, "Join Acme", msg.Subject)
	assert.Equal(t, "alice@x.com", msg.ReplyTo)
	assert.Equal(t, "<p>invitation</p>", msg.HTML)
	assert.Equal(t, "You've been invited by alice to join Acme!", data.Content)

	err = svc.SendInvitation(ctx, &domain.InvitationEmailData{To: "c@y.com", Content: "hi"}, domain.EmailSpec{})
	require.NoError(t, err)
	assert.Equal(t, "template subject", mailer.sent[1].Subject)
}

func TestEmailService_SendInvitation_Errors(t *testing.T) {
	ctx := context.Background()

	svc := NewEmailService(&captureMailer{}, &stubRenderer{err: errors.New("missing template")}, testLogger)
	require.Error(t, svc.SendInvitation(ctx, &domain.InvitationEmailData{To: "b@y.com"}, domain.EmailSpec{}))

	svc = NewEmailService(&captureMailer{err: errors.New("throttled")}, &stubRenderer{}, testLogger)
	require.Error(t, svc.SendInvitation(ctx, &domain.InvitationEmailData{To: "b@y.com"}, domain.EmailSpec{}))

	require.Error(t, svc.SendInvitation(ctx, nil, domain.EmailSpec{}))
}
