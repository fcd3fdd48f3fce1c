package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"caseflow-pipeline/internal/config"
	"caseflow-pipeline/internal/models"
	"caseflow-pipeline/internal/pkg/logger"
)

// NotificationAgent prepares delivery instructions for a verified resolution.
// It is a pure templating step: no network calls, no side effects. Dispatch is
// the orchestrator's job.
type NotificationAgent interface {
	Prepare(ctx context.Context, kase *models.Case, finalText string) (*models.DeliveryInstructions, error)
}

type TemplateNotificationAgent struct {
	config config.DeliveryConfig
	logger *logger.Logger
}

func NewTemplateNotificationAgent(cfg config.DeliveryConfig, log *logger.Logger) *TemplateNotificationAgent {
	return &TemplateNotificationAgent{config: cfg, logger: log}
}

func (agent *TemplateNotificationAgent) Prepare(ctx context.Context, kase *models.Case, finalText string) (*models.DeliveryInstructions, error) {
	if strings.TrimSpace(finalText) == "" {
		return nil, fmt.Errorf("cannot prepare delivery for an empty resolution")
	}

	customerName := kase.Fields.CustomerName
	if customerName == "" {
		customerName = "valued customer"
	}

	recipient := kase.Recipient
	if recipient == "" {
		recipient = agent.config.DefaultRecipient
	}

	instructions := &models.DeliveryInstructions{
		Video: models.VideoScript{
			JobID:           fmt.Sprintf("%s-r%d", kase.ID, kase.Revision),
			Script:          agent.buildVideoScript(customerName, finalText),
			AvatarCharacter: agent.config.AvatarCharacter,
			CustomerName:    customerName,
		},
		Email: models.EmailMessage{
			Recipient: recipient,
			Subject:   fmt.Sprintf("Resolution for your support case %s", kase.ID),
			PlainBody: agent.buildPlainEmail(customerName, kase, finalText),
			HTMLBody:  agent.buildHTMLEmail(customerName, kase, finalText),
		},
		PreparedAt: time.Now().UTC(),
	}

	agent.logger.LogCase(kase.ID, "notification-agent", "delivery_prepared", 0, nil)
	return instructions, nil
}

func (agent *TemplateNotificationAgent) buildVideoScript(customerName, finalText string) string {
	return fmt.Sprintf(
		"Hello %s! Thank you for reaching out to our support team. %s If anything is still unclear, just reply to our email and we will take another look. Have a great day!",
		customerName, finalText)
}

func (agent *TemplateNotificationAgent) buildPlainEmail(customerName string, kase *models.Case, finalText string) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Dear %s,\n\n", customerName)
	builder.WriteString("Thank you for contacting our support team. Your case has been resolved.\n\n")
	fmt.Fprintf(&builder, "Case ID: %s\n", kase.ID)
	if kase.Fields.Category != "" {
		fmt.Fprintf(&builder, "Category: %s\n", kase.Fields.Category)
	}
	builder.WriteString("\nResolution:\n")
	builder.WriteString(finalText)
	builder.WriteString("\n\nIf you have any further questions, simply reply to this email.\n\nBest regards,\nThe Support Team\n")
	return builder.String()
}

func (agent *TemplateNotificationAgent) buildHTMLEmail(customerName string, kase *models.Case, finalText string) string {
	escapedText := strings.ReplaceAll(html.EscapeString(finalText), "\n", "<br>")
	return fmt.Sprintf(`<html><body style="font-family: Arial, sans-serif; color: #333;">
<p>Dear %s,</p>
<p>Thank you for contacting our support team. Your case has been resolved.</p>
<p><strong>Case ID:</strong> %s</p>
<div style="background: #f5f5f5; padding: 16px; border-radius: 6px;">%s</div>
<p>If you have any further questions, simply reply to this email.</p>
<p>Best regards,<br>The Support Team</p>
</body></html>`, html.EscapeString(customerName), kase.ID, escapedText)
}
