package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"caseflow-pipeline/internal/config"
	"caseflow-pipeline/internal/models"
	"caseflow-pipeline/internal/pkg/logger"
)

const orchestratorActor = "orchestrator"

// Orchestrator owns the case state machine. It is the only component that
// mutates case state, appends audit entries, or invokes agents; agents never
// talk to each other directly.
type Orchestrator struct {
	caseStore    CaseStore
	auditLog     AuditLog
	updates      UpdatePublisher
	retriever    KnowledgeRetriever
	lookup       DocsLookup
	generation   GenerationClient
	analysis     AnalysisAgent
	executor     ExecutorAgent
	notification NotificationAgent
	video        VideoRenderer
	email        EmailSender

	config *config.Config
	logger *logger.Logger

	activeCases sync.Map // case_id -> *activeCase
	workers     *semaphore.Weighted

	startTime time.Time
}

// activeCase tracks an in-flight pipeline run so status queries can report
// progress and cancellation can reach the running goroutine.
type activeCase struct {
	kase   *models.Case
	cancel context.CancelFunc
}

// caseExecutor drives one case through the pipeline on its own goroutine.
type caseExecutor struct {
	orchestrator *Orchestrator
	kase         *models.Case
	logger       *logger.Logger
}

func NewOrchestrator(
	caseStore CaseStore,
	auditLog AuditLog,
	updates UpdatePublisher,
	retriever KnowledgeRetriever,
	lookup DocsLookup,
	generation GenerationClient,
	analysis AnalysisAgent,
	executor ExecutorAgent,
	notification NotificationAgent,
	video VideoRenderer,
	email EmailSender,
	cfg *config.Config,
	log *logger.Logger) *Orchestrator {

	orchestrator := &Orchestrator{
		caseStore:    caseStore,
		auditLog:     auditLog,
		updates:      updates,
		retriever:    retriever,
		lookup:       lookup,
		generation:   generation,
		analysis:     analysis,
		executor:     executor,
		notification: notification,
		video:        video,
		email:        email,
		config:       cfg,
		logger:       log,
		workers:      semaphore.NewWeighted(cfg.Pipeline.MaxWorkers),
		startTime:    time.Now(),
	}

	log.Info("Orchestrator initialized",
		"max_workers", cfg.Pipeline.MaxWorkers,
		"retry_budget", cfg.Pipeline.RetryBudget,
		"agent_timeout", cfg.Pipeline.AgentTimeout.String())

	return orchestrator
}

// SubmitCase accepts a case for processing and returns immediately; the
// pipeline runs on its own goroutine. Resubmitting a known case id returns
// the existing case without appending anything.
func (orchestrator *Orchestrator) SubmitCase(ctx context.Context, req *models.SubmitCaseRequest) (*models.SubmitCaseResponse, error) {
	startTime := time.Now()

	if strings.TrimSpace(req.RawTranscript) == "" {
		return nil, models.NewValidationError("EMPTY_TRANSCRIPT", "raw transcript is required")
	}

	if req.CaseID != "" {
		if existing, err := orchestrator.caseStore.LoadCase(ctx, req.CaseID); err == nil {
			orchestrator.logger.LogCase(existing.ID, orchestratorActor, "case_resubmitted", time.Since(startTime), nil)
			return models.NewSubmitCaseResponse(existing.ID, string(existing.State), "case already submitted"), nil
		}
	}

	fields, extracted, err := orchestrator.resolveFields(ctx, req)
	if err != nil {
		return nil, err
	}

	kase := models.NewCase(req.CaseID, req.RawTranscript, fields, orchestrator.config.Pipeline.RetryBudget)
	kase.Recipient = req.Recipient

	entry := models.NewAuditEntry(kase.ID, orchestratorActor, models.ActionCaseSubmitted,
		summarize(req.RawTranscript, 200),
		fmt.Sprintf("case ingested, risk tier %s", kase.Fields.RiskTier))
	if _, err := orchestrator.auditLog.Append(ctx, entry); err != nil {
		return nil, models.NewPersistenceFault(err)
	}

	if extracted {
		extractionEntry := models.NewAuditEntry(kase.ID, orchestratorActor, models.ActionFieldsExtracted,
			summarize(req.RawTranscript, 200),
			fmt.Sprintf("customer=%s category=%s risk_tier=%s", fields.CustomerName, fields.Category, fields.RiskTier))
		if _, err := orchestrator.auditLog.Append(ctx, extractionEntry); err != nil {
			return nil, models.NewPersistenceFault(err)
		}
	}

	if err := orchestrator.caseStore.SaveCase(ctx, kase); err != nil {
		return nil, err
	}

	orchestrator.logger.LogCase(kase.ID, orchestratorActor, "case_submitted", time.Since(startTime), nil)
	orchestrator.publishUpdate(kase, "case accepted for processing", "")

	go orchestrator.processCase(kase)

	return models.NewSubmitCaseResponse(kase.ID, "accepted", "case accepted for processing"), nil
}

// resolveFields uses caller-provided structured fields when present and falls
// back to model extraction from the transcript. Extraction failure is not
/// fatal: the case proceeds in the general tier.
func (orchestrator *Orchestrator) resolveFields(ctx context.Context, req *models.SubmitCaseRequest) (models.CaseFields, bool, error) {
	if req.Fields != nil {
		return *req.Fields, false, nil
	}

	fields, err := ExtractCaseFields(ctx, orchestrator.generation, req.RawTranscript)
	if err != nil {
		orchestrator.logger.WithError(err).Warn("Field extraction failed, defaulting to general tier")
		return models.CaseFields{RiskTier: models.RiskTierGeneral}, false, nil
	}
	return fields, true, nil
}

func (orchestrator *Orchestrator) processCase(kase *models.Case) {
	caseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orchestrator.activeCases.Store(kase.ID, &activeCase{kase: kase, cancel: cancel})
	defer orchestrator.activeCases.Delete(kase.ID)

	if err := orchestrator.workers.Acquire(caseCtx, 1); err != nil {
		orchestrator.logger.LogCase(kase.ID, orchestratorActor, "worker_acquire", 0, err)
		return
	}
	defer orchestrator.workers.Release(1)

	executor := &caseExecutor{
		orchestrator: orchestrator,
		kase:         kase,
		logger:       orchestrator.logger,
	}

	startTime := time.Now()
	err := executor.run(caseCtx)
	duration := time.Since(startTime)

	switch {
	case caseCtx.Err() != nil:
		executor.handleCancel()
		orchestrator.logger.LogCase(kase.ID, orchestratorActor, "case_cancelled", duration, nil)
	case err != nil:
		orchestrator.logger.LogCase(kase.ID, orchestratorActor, "case_failed", duration, err)
	default:
		orchestrator.logger.LogCase(kase.ID, orchestratorActor, "case_finished", duration, nil)
	}
}

// run drives the case to a terminal state. A returned error means the pipeline
// could not even record its own outcome (persistence is down); every domain
// failure resolves to ESCALATED instead.
func (executor *caseExecutor) run(ctx context.Context) error {
	if err := executor.transition(ctx, models.CaseStateAnalyzing, "starting analysis"); err != nil {
		return err
	}

	rejectionRationale := ""

	for {
		draft, err := executor.analyze(ctx, rejectionRationale)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if models.HasCode(err, models.CodePersistenceFault) {
				return err
			}
			failureEntry := models.NewAuditEntry(executor.kase.ID, "analysis-agent", models.ActionFailure,
				fmt.Sprintf("revision %d, %d retries left", executor.kase.Revision, executor.kase.RetryBudget),
				fmt.Sprintf("analysis failed: %s", err.Error()))
			if _, appendErr := executor.orchestrator.auditLog.Append(ctx, failureEntry); appendErr != nil {
				return models.NewPersistenceFault(appendErr)
			}
			if executor.kase.RetryBudget <= 0 {
				return executor.escalate(ctx, fmt.Sprintf("analysis failed with retry budget exhausted: %s", err.Error()), nil)
			}
			executor.kase.RetryBudget--
			if saveErr := executor.orchestrator.caseStore.SaveCase(ctx, executor.kase); saveErr != nil {
				return saveErr
			}
			executor.logger.Warn("Analysis attempt failed, retrying",
				"case_id", executor.kase.ID, "retries_left", executor.kase.RetryBudget, "error", err)
			continue
		}

		if executor.kase.State != models.CaseStateVerifying {
			if err := executor.transition(ctx, models.CaseStateVerifying, "draft ready for verification"); err != nil {
				return err
			}
		}

		verdict, err := executor.orchestrator.executor.Verify(ctx, draft, executor.kase)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			// A scorer that cannot run means the gate cannot be trusted.
			return executor.escalate(ctx, fmt.Sprintf("trust scoring failed: %s", err.Error()), nil)
		}

		verdictEntry := models.NewAuditEntry(executor.kase.ID, "executor-agent", models.ActionVerdictScored,
			fmt.Sprintf("draft %s revision %d", draft.ID, draft.Revision),
			fmt.Sprintf("%s score=%.2f pass=%.2f block=%.2f: %s",
				verdict.Decision, verdict.Score, verdict.PassThreshold, verdict.BlockThreshold, verdict.Rationale))
		if _, err := executor.orchestrator.auditLog.Append(ctx, verdictEntry); err != nil {
			return models.NewPersistenceFault(err)
		}

		switch verdict.Decision {
		case models.DecisionPass:
			return executor.notify(ctx, draft, verdict)

		case models.DecisionFlag:
			if executor.kase.RetryBudget <= 0 {
				return executor.escalate(ctx, "flagged with retry budget exhausted", verdict)
			}
			executor.kase.RetryBudget--
			executor.kase.Revision++
			rejectionRationale = verdict.Rationale
			if err := executor.transition(ctx, models.CaseStateVerifying,
				fmt.Sprintf("flagged, re-analyzing (revision %d, %d retries left)", executor.kase.Revision, executor.kase.RetryBudget)); err != nil {
				return err
			}

		case models.DecisionBlock:
			return executor.escalate(ctx, "blocked by trust scorer", verdict)

		default:
			return executor.escalate(ctx, fmt.Sprintf("unknown verdict decision %q", verdict.Decision), verdict)
		}
	}
}

// analyze runs retrieval, optional documentation lookup, and the analysis
// agent. Retrieval being down degrades to an unsupported draft rather than
// failing the case.
func (executor *caseExecutor) analyze(ctx context.Context, rejectionRationale string) (*models.Draft, error) {
	orchestrator := executor.orchestrator
	kase := executor.kase

	query := retrievalQuery(kase, rejectionRationale)

	agentCtx, cancel := context.WithTimeout(ctx, orchestrator.config.Pipeline.AgentTimeout)
	fragments, err := orchestrator.retriever.Retrieve(agentCtx, query, 0)
	cancel()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		executor.logger.Warn("Knowledge retrieval unavailable, analyzing without fragments",
			"case_id", kase.ID, "error", err)
		fragments = nil
	}

	retrievalEntry := models.NewAuditEntry(kase.ID, "knowledge-retriever", models.ActionKnowledgeRetrieved,
		summarize(query, 200), fragmentSummary(fragments, err))
	if _, appendErr := orchestrator.auditLog.Append(ctx, retrievalEntry); appendErr != nil {
		return nil, models.NewPersistenceFault(appendErr)
	}

	var lookupResults []models.LookupResult
	agentCtx, cancel = context.WithTimeout(ctx, orchestrator.config.Pipeline.AgentTimeout)
	lookupResults, lookupErr := orchestrator.lookup.Lookup(agentCtx, query)
	cancel()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if lookupErr != nil {
		executor.logger.Warn("Documentation lookup failed, proceeding without it",
			"case_id", kase.ID, "error", lookupErr)
		lookupResults = nil
	}
	if lookupErr == nil && len(lookupResults) > 0 {
		lookupEntry := models.NewAuditEntry(kase.ID, "docs-lookup", models.ActionDocsLookup,
			summarize(query, 200), fmt.Sprintf("%d documentation results", len(lookupResults)))
		if _, appendErr := orchestrator.auditLog.Append(ctx, lookupEntry); appendErr != nil {
			return nil, models.NewPersistenceFault(appendErr)
		}
	}

	agentCtx, cancel = context.WithTimeout(ctx, orchestrator.config.Pipeline.AgentTimeout)
	defer cancel()
	draft, err := orchestrator.analysis.Analyze(agentCtx, &AnalysisRequest{
		Case:               kase,
		Fragments:          fragments,
		LookupResults:      lookupResults,
		RejectionRationale: rejectionRationale,
	})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	draftEntry := models.NewAuditEntry(kase.ID, "analysis-agent", models.ActionDraftProduced,
		summarize(draft.InputSummary, 400),
		fmt.Sprintf("draft %s revision %d, confidence %.2f, %d citations",
			draft.ID, draft.Revision, draft.ModelConfidence, len(draft.CitedFragmentIDs)))
	if _, appendErr := orchestrator.auditLog.Append(ctx, draftEntry); appendErr != nil {
		return nil, models.NewPersistenceFault(appendErr)
	}

	return draft, nil
}

// notify prepares and dispatches delivery for a passed draft. A notification
// failure never reopens verification: the case closes with delivery pending
// and a background loop retries dispatch.
func (executor *caseExecutor) notify(ctx context.Context, draft *models.Draft, verdict *models.TrustVerdict) error {
	orchestrator := executor.orchestrator
	kase := executor.kase

	if err := executor.transition(ctx, models.CaseStateNotifying, "resolution verified, preparing delivery"); err != nil {
		return err
	}

	resolution := &models.Resolution{
		CaseID:    kase.ID,
		FinalText: draft.Text,
		Verdict:   *verdict,
	}

	instructions, err := orchestrator.notification.Prepare(ctx, kase, draft.Text)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		executor.logger.Warn("Delivery preparation failed, closing with delivery pending",
			"case_id", kase.ID, "error", err)
		failureEntry := models.NewAuditEntry(kase.ID, "notification-agent", models.ActionDeliveryFailed,
			summarize(draft.Text, 200), fmt.Sprintf("preparation failed: %s", err.Error()))
		if _, appendErr := orchestrator.auditLog.Append(ctx, failureEntry); appendErr != nil {
			return models.NewPersistenceFault(appendErr)
		}
		kase.DeliveryPending = true
		if err := executor.close(ctx, resolution); err != nil {
			return err
		}
		go orchestrator.retryNotification(kase.ID)
		return nil
	}

	resolution.Instructions = instructions
	preparedEntry := models.NewAuditEntry(kase.ID, "notification-agent", models.ActionDeliveryPrepared,
		summarize(draft.Text, 200),
		fmt.Sprintf("video job %s, email to %s", instructions.Video.JobID, instructions.Email.Recipient))
	if _, appendErr := orchestrator.auditLog.Append(ctx, preparedEntry); appendErr != nil {
		return models.NewPersistenceFault(appendErr)
	}

	if err := orchestrator.dispatchDelivery(ctx, instructions); err != nil {
		executor.logger.Warn("Delivery dispatch failed, closing with delivery pending",
			"case_id", kase.ID, "error", err)
		failureEntry := models.NewAuditEntry(kase.ID, orchestratorActor, models.ActionDeliveryFailed,
			fmt.Sprintf("video job %s", instructions.Video.JobID),
			fmt.Sprintf("dispatch failed: %s", err.Error()))
		if _, appendErr := orchestrator.auditLog.Append(ctx, failureEntry); appendErr != nil {
			return models.NewPersistenceFault(appendErr)
		}
		kase.DeliveryPending = true
		if err := executor.close(ctx, resolution); err != nil {
			return err
		}
		go orchestrator.retryDelivery(kase.ID, instructions)
		return nil
	}

	dispatchedEntry := models.NewAuditEntry(kase.ID, orchestratorActor, models.ActionDeliveryDispatched,
		fmt.Sprintf("video job %s", instructions.Video.JobID),
		fmt.Sprintf("delivered to %s", instructions.Email.Recipient))
	if _, appendErr := orchestrator.auditLog.Append(ctx, dispatchedEntry); appendErr != nil {
		return models.NewPersistenceFault(appendErr)
	}

	return executor.close(ctx, resolution)
}

func (executor *caseExecutor) close(ctx context.Context, resolution *models.Resolution) error {
	kase := executor.kase

	entry := models.NewAuditEntry(kase.ID, orchestratorActor, models.ActionTransition,
		fmt.Sprintf("%s -> %s", kase.State, models.CaseStateClosed),
		fmt.Sprintf("case closed, delivery_pending=%t", kase.DeliveryPending))
	if _, err := executor.orchestrator.auditLog.Append(ctx, entry); err != nil {
		return models.NewPersistenceFault(err)
	}

	kase.MarkClosed(resolution)
	if err := executor.orchestrator.caseStore.SaveCase(ctx, kase); err != nil {
		return err
	}

	executor.orchestrator.publishUpdate(kase, "case closed", "")
	return nil
}

func (executor *caseExecutor) escalate(ctx context.Context, reason string, verdict *models.TrustVerdict) error {
	kase := executor.kase

	record := &models.EscalationRecord{
		CaseID:    kase.ID,
		Reason:    reason,
		Verdict:   verdict,
		Revision:  kase.Revision,
		CreatedAt: time.Now().UTC(),
	}

	entry := models.NewAuditEntry(kase.ID, orchestratorActor, models.ActionEscalated,
		fmt.Sprintf("%s -> %s", kase.State, models.CaseStateEscalated), reason)
	if _, err := executor.orchestrator.auditLog.Append(ctx, entry); err != nil {
		return models.NewPersistenceFault(err)
	}

	kase.MarkEscalated()
	if err := executor.orchestrator.caseStore.SaveCase(ctx, kase); err != nil {
		return err
	}

	executor.logger.LogCase(kase.ID, orchestratorActor, "case_escalated", 0, nil)
	executor.orchestrator.publishUpdate(kase, fmt.Sprintf("escalated for human review: %s", record.Reason), "")
	return nil
}

// handleCancel records cancellation outside the cancelled context. In-flight
// agent results for the case were already discarded by the ctx checks in run.
func (executor *caseExecutor) handleCancel() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kase := executor.kase
	if kase.IsTerminal() {
		return
	}

	entry := models.NewAuditEntry(kase.ID, orchestratorActor, models.ActionCancelled,
		string(kase.State), "cancelled by operator request")
	if _, err := executor.orchestrator.auditLog.Append(ctx, entry); err != nil {
		executor.logger.Error("Failed to record cancellation", "case_id", kase.ID, "error", err)
	}

	kase.MarkCancelled()
	if err := executor.orchestrator.caseStore.SaveCase(ctx, kase); err != nil {
		executor.logger.Error("Failed to persist cancellation", "case_id", kase.ID, "error", err)
	}

	executor.orchestrator.publishUpdate(kase, "case cancelled", "")
}

// transition appends the state-change audit entry, applies the new state, and
// persists the snapshot. Any persistence failure aborts the advance.
func (executor *caseExecutor) transition(ctx context.Context, to models.CaseState, message string) error {
	kase := executor.kase

	entry := models.NewAuditEntry(kase.ID, orchestratorActor, models.ActionTransition,
		fmt.Sprintf("%s -> %s", kase.State, to), message)
	if _, err := executor.orchestrator.auditLog.Append(ctx, entry); err != nil {
		return models.NewPersistenceFault(err)
	}

	kase.SetState(to)
	if err := executor.orchestrator.caseStore.SaveCase(ctx, kase); err != nil {
		return err
	}

	executor.orchestrator.publishUpdate(kase, message, "")
	return nil
}

func (orchestrator *Orchestrator) dispatchDelivery(ctx context.Context, instructions *models.DeliveryInstructions) error {
	if err := orchestrator.video.Render(ctx, &instructions.Video); err != nil {
		return fmt.Errorf("video render submit failed: %w", err)
	}
	if err := orchestrator.email.Send(ctx, &instructions.Email); err != nil {
		return fmt.Errorf("email send failed: %w", err)
	}
	return nil
}

// retryDelivery re-attempts dispatch for a case that closed with delivery
// pending. It runs detached from the case goroutine and gives up after the
// configured attempt cap.
func (orchestrator *Orchestrator) retryDelivery(caseID string, instructions *models.DeliveryInstructions) {
	interval := orchestrator.config.Pipeline.DeliveryRetryInterval

	for attempt := 1; attempt <= orchestrator.config.Pipeline.DeliveryRetryMax; attempt++ {
		time.Sleep(interval)
		interval *= 2

		ctx, cancel := context.WithTimeout(context.Background(), orchestrator.config.Pipeline.AgentTimeout)
		err := orchestrator.dispatchDelivery(ctx, instructions)
		if err == nil {
			kase, loadErr := orchestrator.caseStore.LoadCase(ctx, caseID)
			if loadErr != nil {
				orchestrator.logger.Error("Delivery retried but case load failed", "case_id", caseID, "error", loadErr)
				cancel()
				return
			}
			kase.DeliveryPending = false
			entry := models.NewAuditEntry(caseID, orchestratorActor, models.ActionDeliveryDispatched,
				fmt.Sprintf("retry attempt %d", attempt),
				fmt.Sprintf("delivered to %s", instructions.Email.Recipient))
			if _, appendErr := orchestrator.auditLog.Append(ctx, entry); appendErr != nil {
				orchestrator.logger.Error("Failed to record delivery retry", "case_id", caseID, "error", appendErr)
			}
			if saveErr := orchestrator.caseStore.SaveCase(ctx, kase); saveErr != nil {
				orchestrator.logger.Error("Failed to clear delivery pending flag", "case_id", caseID, "error", saveErr)
			}
			cancel()
			return
		}

		orchestrator.logger.Warn("Delivery retry failed",
			"case_id", caseID, "attempt", attempt, "max_attempts", orchestrator.config.Pipeline.DeliveryRetryMax, "error", err)
		cancel()
	}

	orchestrator.logger.Error("Delivery retries exhausted, case remains delivery pending", "case_id", caseID)
}

// retryNotification re-runs delivery preparation for a case that closed before
// instructions could even be produced, then dispatches them. Same detached
// schedule as retryDelivery.
func (orchestrator *Orchestrator) retryNotification(caseID string) {
	interval := orchestrator.config.Pipeline.DeliveryRetryInterval

	for attempt := 1; attempt <= orchestrator.config.Pipeline.DeliveryRetryMax; attempt++ {
		time.Sleep(interval)
		interval *= 2

		ctx, cancel := context.WithTimeout(context.Background(), orchestrator.config.Pipeline.AgentTimeout)
		kase, err := orchestrator.caseStore.LoadCase(ctx, caseID)
		if err != nil {
			orchestrator.logger.Error("Notification retry could not load case", "case_id", caseID, "error", err)
			cancel()
			return
		}
		if !kase.DeliveryPending || kase.Resolution == nil {
			cancel()
			return
		}

		instructions, err := orchestrator.notification.Prepare(ctx, kase, kase.Resolution.FinalText)
		if err == nil {
			err = orchestrator.dispatchDelivery(ctx, instructions)
		}
		if err != nil {
			orchestrator.logger.Warn("Notification retry failed",
				"case_id", caseID, "attempt", attempt, "max_attempts", orchestrator.config.Pipeline.DeliveryRetryMax, "error", err)
			cancel()
			continue
		}

		kase.DeliveryPending = false
		kase.Resolution.Instructions = instructions
		entry := models.NewAuditEntry(caseID, orchestratorActor, models.ActionDeliveryDispatched,
			fmt.Sprintf("notification retry attempt %d", attempt),
			fmt.Sprintf("delivered to %s", instructions.Email.Recipient))
		if _, appendErr := orchestrator.auditLog.Append(ctx, entry); appendErr != nil {
			orchestrator.logger.Error("Failed to record notification retry", "case_id", caseID, "error", appendErr)
		}
		if saveErr := orchestrator.caseStore.SaveCase(ctx, kase); saveErr != nil {
			orchestrator.logger.Error("Failed to clear delivery pending flag", "case_id", caseID, "error", saveErr)
		}
		cancel()
		return
	}

	orchestrator.logger.Error("Notification retries exhausted, case remains delivery pending", "case_id", caseID)
}

func (orchestrator *Orchestrator) publishUpdate(kase *models.Case, message, errorText string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := models.NewCaseUpdate(kase, orchestratorActor, message)
	update.Error = errorText

	if err := orchestrator.updates.PublishCaseUpdate(ctx, update); err != nil {
		orchestrator.logger.Error("Failed to publish case update", "case_id", kase.ID, "error", err)
	}
	if err := orchestrator.updates.CacheCaseStatus(ctx, kase); err != nil {
		orchestrator.logger.Error("Failed to cache case status", "case_id", kase.ID, "error", err)
	}
}

// GetCaseStatus reports the observable state of a case: the cached snapshot
// when fresh, the durable record otherwise, plus the audit entry count.
func (orchestrator *Orchestrator) GetCaseStatus(ctx context.Context, caseID string) (*models.CaseStatusResponse, error) {
	kase, err := orchestrator.updates.GetCachedCase(ctx, caseID)
	if err != nil {
		kase, err = orchestrator.caseStore.LoadCase(ctx, caseID)
		if err != nil {
			return nil, err
		}
	}

	entries, err := orchestrator.auditLog.Read(ctx, caseID)
	if err != nil {
		orchestrator.logger.Warn("Failed to read audit trail for status", "case_id", caseID, "error", err)
	}

	_, inProgress := orchestrator.activeCases.Load(caseID)

	response := &models.CaseStatusResponse{
		CaseID:          kase.ID,
		State:           kase.State,
		InProgress:      inProgress,
		Revision:        kase.Revision,
		AuditEntries:    len(entries),
		DeliveryPending: kase.DeliveryPending,
		UpdatedAt:       kase.UpdatedAt,
	}
	if kase.Resolution != nil {
		response.FinalText = kase.Resolution.FinalText
	}
	return response, nil
}

func (orchestrator *Orchestrator) GetCaseAudit(ctx context.Context, caseID string) ([]models.AuditEntry, error) {
	if _, err := orchestrator.caseStore.LoadCase(ctx, caseID); err != nil {
		return nil, err
	}
	return orchestrator.auditLog.Read(ctx, caseID)
}

func (orchestrator *Orchestrator) ExportAudit(ctx context.Context, from, to time.Time) ([]models.AuditEntry, error) {
	return orchestrator.auditLog.ReadRange(ctx, from, to)
}

// CancelCase requests cooperative cancellation of an in-flight case. Terminal
// cases cannot be cancelled.
func (orchestrator *Orchestrator) CancelCase(ctx context.Context, caseID string) error {
	if active, exists := orchestrator.activeCases.Load(caseID); exists {
		active.(*activeCase).cancel()
		orchestrator.logger.LogCase(caseID, orchestratorActor, "cancel_requested", 0, nil)
		return nil
	}

	kase, err := orchestrator.caseStore.LoadCase(ctx, caseID)
	if err != nil {
		return err
	}
	if kase.IsTerminal() {
		return models.NewValidationError("CASE_TERMINAL", fmt.Sprintf("case %s is already %s", caseID, kase.State))
	}
	return models.NewValidationError("CASE_NOT_ACTIVE",
		fmt.Sprintf("case %s is %s but no longer processing", caseID, kase.State))
}

func (orchestrator *Orchestrator) GetActiveCasesCount() int {
	count := 0
	orchestrator.activeCases.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (orchestrator *Orchestrator) HealthCheck(ctx context.Context) error {
	services := map[string]func() error{
		"case_store":     func() error { return orchestrator.caseStore.HealthCheck(ctx) },
		"updates":        func() error { return orchestrator.updates.HealthCheck(ctx) },
		"document_index": func() error { return orchestrator.retriever.HealthCheck(ctx) },
	}

	for serviceName, healthCheck := range services {
		if err := healthCheck(); err != nil {
			return fmt.Errorf("service %s health check failed: %w", serviceName, err)
		}
	}

	return nil
}

func (orchestrator *Orchestrator) GetStats() map[string]interface{} {
	uptime := time.Since(orchestrator.startTime)

	return map[string]interface{}{
		"service":        "orchestrator",
		"uptime_seconds": uptime.Seconds(),
		"active_cases":   orchestrator.GetActiveCasesCount(),
		"retry_budget":   orchestrator.config.Pipeline.RetryBudget,
		"max_workers":    orchestrator.config.Pipeline.MaxWorkers,
		"agents":         []string{"analysis", "executor", "notification"},
	}
}

// Close waits for in-flight cases to reach a terminal state, up to the
// shutdown timeout.
func (orchestrator *Orchestrator) Close() error {
	orchestrator.logger.Info("Orchestrator shutting down")

	timeout := time.After(orchestrator.config.Pipeline.ShutdownTimeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			activeCount := orchestrator.GetActiveCasesCount()
			if activeCount > 0 {
				orchestrator.logger.Warn("Timeout waiting for cases to finish", "active_cases", activeCount)
			}
			return nil
		case <-ticker.C:
			if orchestrator.GetActiveCasesCount() == 0 {
				orchestrator.logger.Info("All cases finished, orchestrator closed")
				return nil
			}
		}
	}
}

func retrievalQuery(kase *models.Case, rejectionRationale string) string {
	query := kase.RawTranscript
	if kase.Fields.Category != "" {
		query = kase.Fields.Category + ": " + query
	}
	if rejectionRationale != "" {
		query += "\nPrior attempt rejected: " + rejectionRationale
	}
	return query
}

func fragmentSummary(fragments []models.KnowledgeFragment, retrievalErr error) string {
	if retrievalErr != nil {
		return fmt.Sprintf("retrieval unavailable: %s", retrievalErr.Error())
	}
	if len(fragments) == 0 {
		return "no fragments found"
	}
	ids := make([]string, len(fragments))
	for i, fragment := range fragments {
		ids[i] = fragment.FragmentID()
	}
	return fmt.Sprintf("%d fragments: %s", len(fragments), strings.Join(ids, ", "))
}

func summarize(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
