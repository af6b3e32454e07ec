// Package notify sends operator-facing failure alerts by email.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// AlertSender emails a short operator notification when an invocation
// fails outright (as opposed to a single retried-and-recovered node
// error). There is exactly one alert audience, so the sender is bound
// to one fixed from/to pair at construction.
type AlertSender struct {
	client *sendgrid.Client
	from   string
	to     string
}

// NewAlertSender builds a sender bound to one from/to address pair, as
// configured by AlertConfig.
func NewAlertSender(apiKey, from, to string) *AlertSender {
	return &AlertSender{client: sendgrid.NewSendClient(apiKey), from: from, to: to}
}

// ExecutionFailed sends an alert for a failed invocation.
func (s *AlertSender) ExecutionFailed(ctx context.Context, executionID, workflowID string, errCode, errMessage string) error {
	message := buildAlertMail(s.from, s.to, executionID, workflowID, errCode, errMessage, time.Now().UTC())

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send execution-failure alert: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d sending execution-failure alert", resp.StatusCode)
	}
	return nil
}

// buildAlertMail constructs the SendGrid v3 message for a failed invocation,
// split out from ExecutionFailed so the construction can be tested without
// a network round trip.
func buildAlertMail(from, to, executionID, workflowID, errCode, errMessage string, at time.Time) *mail.SGMailV3 {
	subject := fmt.Sprintf("Workflow execution failed: %s", workflowID)
	body := fmt.Sprintf(
		"Execution %s of workflow %s failed at %s.\n\nError code: %s\nMessage: %s\n",
		executionID, workflowID, at.Format(time.RFC3339), errCode, errMessage,
	)

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail("", from))
	message.Subject = subject

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail("", to))
	message.AddPersonalizations(personalization)
	message.AddContent(mail.NewContent("text/plain", body))

	return message
}
