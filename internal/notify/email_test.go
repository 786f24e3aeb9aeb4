package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{FromEmail: "safety@example.com"}, nil)
	assert.Nil(t, sender)
}

func TestNewSendGridSender_FromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "safety@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, DefaultFromName, sender.fromName)

	sender = NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "safety@example.com", FromName: "EAP Desk"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "EAP Desk", sender.fromName)
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	err := sender.Send(context.Background(), EmailMessage{To: "eap@example.com", Subject: "Test", Body: "Test body"})
	assert.Error(t, err)
}

func TestSendGridSender_MessageIsPlainTextAndUntracked(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "safety@example.com"}, nil)
	require.NotNil(t, sender)

	m := sender.message(EmailMessage{To: "eap@example.com", ToName: "EAP", Subject: "Escalation", Body: "plain", Category: "high_risk"})
	assert.Equal(t, "Escalation", m.Subject)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, []string{EscalationCategory, "high_risk"}, m.Categories)
	require.NotNil(t, m.TrackingSettings)
	assert.False(t, *m.TrackingSettings.ClickTracking.Enable)
	assert.False(t, *m.TrackingSettings.OpenTracking.Enable)
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "eap@example.com", m.Personalizations[0].To[0].Address)
}

func TestSendGridSender_SendStatuses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantErr  bool
		rejected bool
	}{
		{"accepted", http.StatusAccepted, false, false},
		{"bad request", http.StatusBadRequest, true, true},
		{"throttled", http.StatusTooManyRequests, true, false},
		{"server error", http.StatusBadGateway, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "safety@example.com"}, nil)
			sender.client.BaseURL = srv.URL + "/v3/mail/send"

			err := sender.Send(context.Background(), EmailMessage{To: "eap@example.com", Subject: "Escalation", Body: "plain", Category: "moderate_concern"})
			if !tt.wantErr {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.rejected, errors.Is(err, ErrRejected))
			}
			assert.Equal(t, "Escalation", body["subject"])
		})
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	sender := NewStubEmailSender(nil)
	assert.NoError(t, sender.Send(context.Background(), EmailMessage{To: "eap@example.com", Subject: "Test"}))
}

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	client := &fakeSES{}
	sender := NewSESSender(client, SESConfig{FromEmail: "safety@example.com"}, nil)
	require.NotNil(t, sender)

	err := sender.Send(context.Background(), EmailMessage{To: "hr@example.com", Subject: "Escalation", Body: "plain"})
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "Wellbeing Safety <safety@example.com>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"hr@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "plain", aws.ToString(in.Content.Simple.Body.Text.Data))
	assert.Nil(t, in.Content.Simple.Body.Html)
	require.Len(t, in.EmailTags, 1)
	assert.Equal(t, EscalationCategory, aws.ToString(in.EmailTags[0].Value))
}

func TestSESSender_SendError(t *testing.T) {
	sender := NewSESSender(&fakeSES{err: errors.New("quota exceeded")}, SESConfig{FromEmail: "safety@example.com"}, nil)
	err := sender.Send(context.Background(), EmailMessage{To: "hr@example.com", Subject: "x", Body: "y"})
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestNewSESSender_NilClient(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))
}
