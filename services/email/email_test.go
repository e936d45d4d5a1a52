package emailsvc

import (
	"encoding/json"
	"net/mail"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trezcool/flowboard/core"
	logsvc "github.com/trezcool/flowboard/services/logger"
)

func testConfig() *core.Config {
	return &core.Config{
		AppName: "Flowboard",
		Mail: core.MailConfig{
			SendgridApiKey:   "SG.test",
			DefaultFromEmail: mail.Address{Name: "Flowboard", Address: "noreply@example.com"},
		},
	}
}

var registrar = []mail.Address{{Name: "Registrar", Address: "registrar@example.com"}}

func TestConsoleService(t *testing.T) {
	svc := NewConsoleServiceMock(testConfig(), logsvc.WrapZap(zap.NewNop()))

	svc.SendMessages(
		&core.EmailMessage{To: registrar, Subject: "Hello", BodyStr: "Fees are due."},
		&core.EmailMessage{Subject: "No recipient", BodyStr: "dropped"},
		&core.EmailMessage{To: registrar, Subject: "No content"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hello", sent[0].Subject)
	assert.Equal(t, "Fees are due.", sent[0].TextContent)

	body, err := svc.format(sent[0])
	require.NoError(t, err)
	assert.Contains(t, body, "From: \"Flowboard\" <noreply@example.com>\r\n")
	assert.Contains(t, body, "Subject: [Flowboard] Hello\r\n")
	assert.Contains(t, body, "To: \"Registrar\" <registrar@example.com>\r\n")
	assert.NotContains(t, body, "CC:")
	assert.NotContains(t, body, "text/html")
}

func TestSendgridService_send(t *testing.T) {
	var requests []rest.Request
	svc := NewSendgridService(testConfig(), logsvc.WrapZap(zap.NewNop()))
	svc.api = func(req rest.Request) (*rest.Response, error) {
		requests = append(requests, req)
		return &rest.Response{StatusCode: 202}, nil
	}

	svc.sendMessage(&core.EmailMessage{
		To:          registrar,
		Cc:          []mail.Address{{Address: "dean@example.com"}},
		Subject:     "Digest",
		TextContent: "plain",
		HTMLContent: "<p>html</p>",
	})
	svc.sendMessage(&core.EmailMessage{Subject: "nobody", BodyStr: "x"})

	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, "https://api.sendgrid.com/v3/mail/send", req.BaseURL)
	assert.Equal(t, "Bearer SG.test", req.Headers["Authorization"])

	var payload struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Personalizations []struct {
			Subject string `json:"subject"`
			To      []struct {
				Email string `json:"email"`
			} `json:"to"`
			Cc []struct {
				Email string `json:"email"`
			} `json:"cc"`
		} `json:"personalizations"`
		Content []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, "noreply@example.com", payload.From.Email)
	require.Len(t, payload.Personalizations, 1)
	assert.Equal(t, "[Flowboard] Digest", payload.Personalizations[0].Subject)
	assert.Equal(t, "registrar@example.com", payload.Personalizations[0].To[0].Email)
	assert.Equal(t, "dean@example.com", payload.Personalizations[0].Cc[0].Email)
	require.Len(t, payload.Content, 2)
	assert.Equal(t, "text/plain", payload.Content[0].Type)
	assert.Equal(t, "text/html", payload.Content[1].Type)
}

func TestNewService(t *testing.T) {
	conf := testConfig()
	logger := logsvc.WrapZap(zap.NewNop())
	assert.IsType(t, &SendgridService{}, NewService(conf, logger))

	conf.Mail.SendgridApiKey = ""
	assert.IsType(t, &ConsoleService{}, NewService(conf, logger))
}

func TestNewSyncService(t *testing.T) {
	conf := testConfig()
	logger := logsvc.WrapZap(zap.NewNop())

	sg, ok := NewSyncService(conf, logger).(*SendgridService)
	require.True(t, ok)
	assert.True(t, sg.sync)

	conf.Mail.SendgridApiKey = ""
	console, ok := NewSyncService(conf, logger).(*ConsoleService)
	require.True(t, ok)
	assert.True(t, console.sync)
	assert.False(t, console.disableOutput)
}
