package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referrski/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESMailer_Send(t *testing.T) {
	client := &fakeSES{}
	m := newSESMailer(client, "invites@referrski.test", "Referrski", testLogger)

	err := m.Send(context.Background(), domain.Message{
		To: "bob@y.com", FromName: "Alice", Subject: "Join", HTML: "<p>hi</p>", Text: "hi", ReplyTo: "alice@x.com",
	})
	require.NoError(t, err)
	in := client.input
	require.NotNil(t, in)
	assert.Equal(t, `"Alice" <invites@referrski.test>`, aws.ToString(in.Source))
	assert.Equal(t, []string{"bob@y.com"}, in.Destination.ToAddresses)
	assert.Equal(t, []string{"alice@x.com"}, in.ReplyToAddresses)
	assert.Equal(t, "Join", aws.ToString(in.Message.Subject.Data))
	assert.Equal(t, "<p>hi</p>", aws.ToString(in.Message.Body.Html.Data))
	assert.Equal(t, "hi", aws.ToString(in.Message.Body.Text.Data))
}

func TestSESMailer_Source(t *testing.T) {
	m := newSESMailer(&fakeSES{}, "invites@referrski.test", "Referrski", testLogger)
	assert.Equal(t, `"Referrski" <invites@referrski.test>`, m.source(""))
	assert.Equal(t, `"EvilBcc: x" <invites@referrski.test>`, m.source("Evil\r\nBcc: x"))

	bare := newSESMailer(&fakeSES{}, "invites@referrski.test", "", testLogger)
	assert.Equal(t, "invites@referrski.test", bare.source(""))
}

func TestSESMailer_SendError(t *testing.T) {
	m := newSESMailer(&fakeSES{err: errors.New("throttled")}, "invites@referrski.test", "", testLogger)
	err := m.Send(context.Background(), domain.Message{To: "bob@y.com", Subject: "x", Text: "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestNewMailer(t *testing.T) {
	m, err := NewMailer(MailerConfig{Provider: "noop"}, testLogger)
	require.NoError(t, err)
	require.NoError(t, m.Send(context.Background(), domain.Message{To: "a@b.c"}))

	m, err = NewMailer(MailerConfig{Provider: "carrier-pigeon"}, testLogger)
	require.NoError(t, err)
	assert.IsType(t, &noopMailer{}, m)

	_, err = NewMailer(MailerConfig{Provider: "ses"}, testLogger)
	require.Error(t, err)

	m, err = NewMailer(MailerConfig{Provider: "ses", FromAddress: "a@b.c", SES: SESConfig{Region: "eu-west-1"}}, testLogger)
	require.NoError(t, err)
	assert.IsType(t, &sesMailer{}, m)
}

func TestTemplateRenderer_Invitation(t *testing.T) {
	r := NewTemplateRenderer()
	data := &domain.InvitationEmailData{
		To:          "bob@y.com",
		AppName:     "Acme",
		InviterName: "alice",
		Content:     "Come <build> with us",
		AcceptURL:   "https://referrski.test/invitations/inv-1/accept",
		IOSAppURL:   "https://apps.apple.com/acme",
	}
	subject, html, text, err := r.Render("invitation", data)
	require.NoError(t, err)
	assert.Equal(t, "alice invited you to join Acme", subject)
	assert.Contains(t, html, `href="https://referrski.test/invitations/inv-1/accept"`)
	assert.Contains(t, html, "Come &lt;build&gt; with us")
	assert.Contains(t, html, "Download for iOS")
	assert.NotContains(t, html, "Download for Android")
	assert.Contains(t, text, "Come <build> with us")
	assert.Contains(t, text, "Get the iOS app: https://apps.apple.com/acme")
	assert.NotContains(t, text, "Android")
}

func TestTemplateRenderer_UnknownTemplate(t *testing.T) {
	_, _, _, err := NewTemplateRenderer().Render("welcome", nil)
	require.ErrorContains(t, err, `unknown email template "welcome"`)
}

func TestTemplateRenderer_SubjectIsSingleLine(t *testing.T) {
	data := &domain.InvitationEmailData{AppName: "Acme\r\nBcc: evil@x.com", InviterName: "alice"}
	subject, _, _, err := NewTemplateRenderer().Render("invitation", data)
	require.NoError(t, err)
	assert.Equal(t, "alice invited you to join Acme Bcc: evil@x.com", subject)
	assert.NotContains(t, subject, "\n")
}
