package core

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailMessage_Render(t *testing.T) {
	require.NoError(t, ParseEmailTemplates(true))

	type tokenData struct {
		Name  string
		Token string
	}

	tests := []struct {
		name       string
		msg        EmailMessage
		wantErr    error
		wantText   []string
		wantHTML   []string
		wantNoHTML bool
	}{
		{
			name:       "plain body",
			msg:        EmailMessage{BodyStr: "hello"},
			wantText:   []string{"hello"},
			wantNoHTML: true,
		},
		{
			name:    "unknown template",
			msg:     EmailMessage{TemplateName: "lol"},
			wantErr: ErrTemplateNotFound,
		},
		{
			name: "verify email",
			msg: EmailMessage{
				TemplateName: "verify_email",
				TemplateData: tokenData{Name: "Alice", Token: "abc123"},
			},
			wantText: []string{"Hello Alice", "http://front.test/verify-email/abc123", "The ProofMate Team"},
			wantHTML: []string{`href="http://front.test/verify-email/abc123"`, "<!DOCTYPE html>"},
		},
		{
			name: "password reset",
			msg: EmailMessage{
				TemplateName: "password_reset",
				TemplateData: tokenData{Name: "Bob", Token: "t0k3n"},
			},
			wantText: []string{"Hello Bob", "http://front.test/reset-password/t0k3n", "10 minutes"},
			wantHTML: []string{`href="http://front.test/reset-password/t0k3n"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			err := msg.Render("http://front.test")
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			for _, s := range tt.wantText {
				assert.Contains(t, msg.TextContent, s)
			}
			for _, s := range tt.wantHTML {
				assert.Contains(t, msg.HTMLContent, s)
			}
			if tt.wantNoHTML {
				assert.Empty(t, msg.HTMLContent)
			}
			assert.True(t, msg.HasContent())
		})
	}
}

func TestEmailMessage_Attach(t *testing.T) {
	msg := EmailMessage{To: []mail.Address{{Address: "a@b.cd"}}, Subject: "Report"}
	require.NoError(t, msg.Attach(strings.NewReader("id,title\n1,lol\n"), "report.csv", "text/csv"))
	require.NoError(t, msg.Attach(bytes.NewReader([]byte("plain")), "notes.txt"))

	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "text/csv", msg.Attachments[0].ContentType)
	assert.Equal(t, "aWQsdGl0bGUKMSxsb2wK", msg.Attachments[0].Content.String())
	assert.True(t, strings.HasPrefix(msg.Attachments[1].ContentType, "text/plain"))
	assert.True(t, msg.HasAttachments())
	assert.True(t, msg.HasRecipients())
	assert.Equal(t, `"Report" to <a@b.cd>`, msg.String())
}
