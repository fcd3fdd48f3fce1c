package services_test

import (
	"context"
	"strings"
	"testing"

	"caseflow-pipeline/internal/config"
	"caseflow-pipeline/internal/models"
	"caseflow-pipeline/internal/services"
)

func notificationFixture(t *testing.T) *services.TemplateNotificationAgent {
	t.Helper()
	return services.NewTemplateNotificationAgent(config.DeliveryConfig{
		DefaultRecipient: "support@example.com",
		AvatarCharacter:  "ava",
	}, testLogger(t))
}

func TestPrepareBuildsVideoAndEmail(t *testing.T) {
	agent := notificationFixture(t)

	kase := models.NewCase("case-9", "transcript", models.CaseFields{CustomerName: "Sam Rivera"}, 2)
	kase.Recipient = "sam@example.com"
	kase.Revision = 1

	instructions, err := agent.Prepare(context.Background(), kase, "Your refund was processed.")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if instructions.Video.JobID != "case-9-r1" {
		t.Errorf("Expected job id case-9-r1, got %s", instructions.Video.JobID)
	}
	if instructions.Video.AvatarCharacter != "ava" {
		t.Errorf("Expected avatar ava, got %s", instructions.Video.AvatarCharacter)
	}
	if !strings.Contains(instructions.Video.Script, "Sam Rivera") {
		t.Error("Expected customer name in the video script")
	}
	if !strings.Contains(instructions.Video.Script, "Your refund was processed.") {
		t.Error("Expected resolution text in the video script")
	}

	if instructions.Email.Recipient != "sam@example.com" {
		t.Errorf("Expected case recipient, got %s", instructions.Email.Recipient)
	}
	if !strings.Contains(instructions.Email.PlainBody, "case-9") {
		t.Error("Expected case id in the plain email body")
	}
	if !strings.Contains(instructions.Email.HTMLBody, "Your refund was processed.") {
		t.Error("Expected resolution text in the HTML body")
	}
	if instructions.PreparedAt.IsZero() {
		t.Error("Expected prepared timestamp")
	}
}

func TestPrepareFallsBackToDefaultRecipient(t *testing.T) {
	agent := notificationFixture(t)

	kase := models.NewCase("case-9", "transcript", models.CaseFields{}, 2)

	instructions, err := agent.Prepare(context.Background(), kase, "Done.")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if instructions.Email.Recipient != "support@example.com" {
		t.Errorf("Expected default recipient, got %s", instructions.Email.Recipient)
	}
	if !strings.Contains(instructions.Video.Script, "valued customer") {
		t.Error("Expected anonymous greeting without a customer name")
	}
}

func TestPrepareEscapesHTML(t *testing.T) {
	agent := notificationFixture(t)

	kase := models.NewCase("case-9", "transcript", models.CaseFields{CustomerName: "<b>Sam</b>"}, 2)

	instructions, err := agent.Prepare(context.Background(), kase, "Use <tag> carefully.")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if strings.Contains(instructions.Email.HTMLBody, "<tag>") {
		t.Error("Expected resolution text HTML-escaped")
	}
	if strings.Contains(instructions.Email.HTMLBody, "<b>Sam</b>") {
		t.Error("Expected customer name HTML-escaped")
	}
}

func TestPrepareRejectsEmptyResolution(t *testing.T) {
	agent := notificationFixture(t)

	kase := models.NewCase("case-9", "transcript", models.CaseFields{}, 2)

	if _, err := agent.Prepare(context.Background(), kase, "   "); err == nil {
		t.Error("Expected error for empty resolution text")
	}
}
