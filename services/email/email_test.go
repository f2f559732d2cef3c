package emailsvc

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/proofmate/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func verifyMsg() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Alice", Address: "alice@test.cd"}},
		Subject:      "Email Verification",
		TemplateName: "verify_email",
		TemplateData: map[string]string{"Name": "Alice", "Token": "tok"},
	}
}

func TestConsoleService_Send(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewConsoleServiceMock(conf)
	before := SentMessagesCount()

	tests := []struct {
		name    string
		msg     *core.EmailMessage
		wantErr error
	}{
		{name: "no recipients", msg: &core.EmailMessage{Subject: "Hi", BodyStr: "hello"}, wantErr: ErrNoRecipients},
		{name: "no content", msg: &core.EmailMessage{To: []mail.Address{{Address: "a@b.cd"}}, Subject: "Hi"}, wantErr: ErrNoContent},
		{name: "plain body", msg: &core.EmailMessage{To: []mail.Address{{Address: "a@b.cd"}}, Subject: "Hi", BodyStr: "hello"}},
		{name: "template", msg: verifyMsg()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Send(tt.msg)
			assert.Equal(t, tt.wantErr, err)
		})
	}

	assert.Equal(t, before+2, SentMessagesCount())
	last, ok := LastSentMessage()
	require.True(t, ok)
	assert.Contains(t, last.TextContent, "http://frontend.test/verify-email/tok")
	assert.Contains(t, last.HTMLContent, "http://frontend.test/verify-email/tok")
}

func TestConsoleService_build(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewConsoleServiceMock(conf).(*consoleService)

	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: "Bob", Address: "bob@test.cd"}},
		Cc:      []mail.Address{{Address: "cc@test.cd"}},
		Subject: "Export",
		BodyStr: "see attachment",
	}
	require.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "export.csv", "text/csv"))
	require.NoError(t, msg.Render(conf.FrontendBaseURL))

	body, err := svc.build(*msg)
	require.NoError(t, err)
	assert.Contains(t, body, "Subject: [ProofMate] Export")
	assert.Contains(t, body, `To: "Bob" <bob@test.cd>`)
	assert.Contains(t, body, "CC: <cc@test.cd>")
	assert.Contains(t, body, "multipart/mixed")
	assert.Contains(t, body, "attachment; filename=export.csv")
	assert.Contains(t, body, "see attachment")
}

func TestSendgridService_Send(t *testing.T) {
	var (
		gotAuth string
		gotBody map[string]interface{}
		status  = http.StatusAccepted
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	conf := core.NewTestConfig()
	conf.SendgridApiKey = "sg-key"
	svc := newSendgridService(conf, nopLogger{}, srv.URL)

	require.NoError(t, svc.Send(verifyMsg()))
	assert.Equal(t, "Bearer sg-key", gotAuth)

	personalizations := gotBody["personalizations"].([]interface{})
	require.Len(t, personalizations, 1)
	assert.Equal(t, "[ProofMate] Email Verification", personalizations[0].(map[string]interface{})["subject"])
	assert.Len(t, gotBody["content"], 2)

	status = http.StatusUnauthorized
	err := svc.Send(verifyMsg())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sendgrid status: 401")

	assert.Equal(t, ErrNoRecipients, svc.Send(&core.EmailMessage{BodyStr: "hello"}))
}
