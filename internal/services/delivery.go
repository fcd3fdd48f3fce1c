package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"caseflow-pipeline/internal/config"
	"caseflow-pipeline/internal/models"
	"caseflow-pipeline/internal/pkg/logger"
)

// VideoRenderer submits an avatar video job. Rendering is asynchronous on the
// collaborator side; a successful submit is all the pipeline needs.
type VideoRenderer interface {
	Render(ctx context.Context, script *models.VideoScript) error
}

// EmailSender delivers the resolution email.
type EmailSender interface {
	Send(ctx context.Context, message *models.EmailMessage) error
}

type HTTPVideoRenderer struct {
	httpClient *http.Client
	baseURL    string
	logger     *logger.Logger
}

func NewHTTPVideoRenderer(cfg config.DeliveryConfig, log *logger.Logger) *HTTPVideoRenderer {
	return &HTTPVideoRenderer{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.VideoServiceURL,
		logger:     log,
	}
}

func (renderer *HTTPVideoRenderer) Render(ctx context.Context, script *models.VideoScript) error {
	startTime := time.Now()
	err := postJSON(ctx, renderer.httpClient, renderer.baseURL+"/render", script)
	renderer.logger.LogService("video_renderer", "render", time.Since(startTime), map[string]interface{}{
		"job_id": script.JobID,
	}, err)
	if err != nil {
		return models.NewDeliveryFault(err)
	}
	return nil
}

type HTTPEmailSender struct {
	httpClient *http.Client
	baseURL    string
	logger     *logger.Logger
}

func NewHTTPEmailSender(cfg config.DeliveryConfig, log *logger.Logger) *HTTPEmailSender {
	return &HTTPEmailSender{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.EmailServiceURL,
		logger:     log,
	}
}

func (sender *HTTPEmailSender) Send(ctx context.Context, message *models.EmailMessage) error {
	startTime := time.Now()
	err := postJSON(ctx, sender.httpClient, sender.baseURL+"/send", message)
	sender.logger.LogService("email_sender", "send", time.Since(startTime), map[string]interface{}{
		"recipient": message.Recipient,
	}, err)
	if err != nil {
		return models.NewDeliveryFault(err)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, string(respBody))
	}
	return nil
}

// NoopVideoRenderer and NoopEmailSender stand in when delivery endpoints are
// not configured, so local development does not require the collaborators.
type NoopVideoRenderer struct{}

func (NoopVideoRenderer) Render(ctx context.Context, script *models.VideoScript) error {
	return nil
}

type NoopEmailSender struct{}

func (NoopEmailSender) Send(ctx context.Context, message *models.EmailMessage) error {
	return nil
}
