package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/caseflow/backend/internal/models"
	"github.com/caseflow/backend/internal/quota"
	"github.com/caseflow/backend/internal/runner"
	"github.com/caseflow/backend/internal/telemetry"
)

// ErrUnknownJobType is returned when no processor is registered for the
// submitted type.
var ErrUnknownJobType = errors.New("unknown job type")

// Processor executes the actual work for one job type (OCR extraction, AI
// analysis, document drafting). Implementations live outside this package
// and are registered at wiring time.
type Processor func(ctx context.Context, job *models.Job) error

// Store is the job-row persistence contract. Implemented by Repository.
type Store interface {
	Create(ctx context.Context, j *models.Job) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetByKey(ctx context.Context, key string) (*models.Job, error)
	ListByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Job, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	CancelQueued(ctx context.Context, id uuid.UUID) (bool, error)
}

// QuotaGate is the admission slice of the quota engine.
type QuotaGate interface {
	Check(ctx context.Context, req quota.CheckRequest) (quota.Decision, error)
	Record(ctx context.Context, userID uuid.UUID, caseID *uuid.UUID, eventType string, quantity int64, metadata map[string]any) error
}

// Refunder returns credits consumed by a failed job attempt.
type Refunder interface {
	RefundIfNeeded(ctx context.Context, jobKey, cause string) error
}

// FailureRecorder feeds the failure-spike window.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, errorType string)
}

// Admitter schedules tasks under the concurrency budget.
type Admitter interface {
	Enqueue(t runner.Task)
}

// SubmitRequest asks for one job to be admitted and executed.
type SubmitRequest struct {
	UserID   uuid.UUID
	CaseID   *uuid.UUID
	Type     string
	Key      string
	Quantity int64
}

type Service interface {
	// Submit runs the quota check and, if admitted, persists and enqueues
	// the job. A denial is reported in the decision, not as an error.
	// Re-submitting an existing key returns the existing job.
	Submit(ctx context.Context, req SubmitRequest) (*models.Job, quota.Decision, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Job, error)
	// Cancel is advisory: it marks a queued job cancelled but never
	// interrupts in-flight work.
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
}

type service struct {
	repo     Store
	quota    QuotaGate
	ledger   Refunder
	failures FailureRecorder
	admitter Admitter
	procs    map[string]Processor
	retry    runner.RetryConfig
	log      *slog.Logger
}

func NewService(repo Store, gate QuotaGate, ledger Refunder, failures FailureRecorder, admitter Admitter, retry runner.RetryConfig, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	return &service{
		repo:     repo,
		quota:    gate,
		ledger:   ledger,
		failures: failures,
		admitter: admitter,
		procs:    make(map[string]Processor),
		retry:    retry,
		log:      log,
	}
}

var _ Service = (*service)(nil)

// RegisterProcessor binds a processor to a job type.
func (s *service) RegisterProcessor(jobType string, p Processor) {
	if jobType == "" || p == nil {
		return
	}
	s.procs[jobType] = p
}

// usageTypeFor maps a job type to the usage meter it draws from.
func usageTypeFor(jobType string) (string, bool) {
	switch jobType {
	case models.JobTypeOCRExtract:
		return models.UsageOCRPage, true
	case models.JobTypeAIAnalyze, models.JobTypeDocDraft:
		return models.UsageAICall, true
	default:
		return "", false
	}
}

func (s *service) Submit(ctx context.Context, req SubmitRequest) (*models.Job, quota.Decision, error) {
	proc, ok := s.procs[req.Type]
	if !ok {
		return nil, quota.Decision{}, fmt.Errorf("%w: %q", ErrUnknownJobType, req.Type)
	}
	usageType, _ := usageTypeFor(req.Type)
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	// A key that already has a job is a duplicate submission: hand back the
	// existing row without re-running admission.
	if existing, err := s.repo.GetByKey(ctx, req.Key); err != nil {
		return nil, quota.Decision{}, err
	} else if existing != nil {
		return existing, quota.Decision{Allowed: true}, nil
	}

	decision, err := s.quota.Check(ctx, quota.CheckRequest{
		UserID:    req.UserID,
		CaseID:    req.CaseID,
		EventType: usageType,
		Quantity:  req.Quantity,
		JobType:   req.Type,
		JobKey:    req.Key,
	})
	if err != nil {
		return nil, quota.Decision{}, err
	}
	if !decision.Allowed {
		return nil, decision, nil
	}

	job := &models.Job{
		ID:     uuid.New(),
		Type:   req.Type,
		Key:    req.Key,
		Status: models.JobStatusQueued,
		UserID: req.UserID,
		CaseID: req.CaseID,
	}
	created, err := s.repo.Create(ctx, job)
	if err != nil {
		return nil, quota.Decision{}, fmt.Errorf("create job row: %w", err)
	}
	if !created {
		existing, err := s.repo.GetByKey(ctx, req.Key)
		if err != nil {
			return nil, quota.Decision{}, err
		}
		return existing, decision, nil
	}
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt

	s.admitter.Enqueue(runner.Task{
		JobID: job.ID,
		Run:   s.execute(job, proc, usageType, req.Quantity),
	})
	return job, decision, nil
}

// execute builds the task the runner will schedule: mark processing, run
// the processor under retry, then settle the outcome. A failure refunds any
// consumed credit and feeds the spike window; the runner itself stays
// outcome-agnostic.
func (s *service) execute(job *models.Job, proc Processor, usageType string, quantity int64) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := s.repo.MarkProcessing(ctx, job.ID); err != nil {
			s.log.Error("mark processing failed", "job_id", job.ID, "error", err)
		}

		err := runner.WithRetry(ctx, s.retry, func(ctx context.Context) error {
			return proc(ctx, job)
		})
		if err != nil {
			if mErr := s.repo.MarkFailed(ctx, job.ID, err.Error()); mErr != nil {
				s.log.Error("mark failed failed", "job_id", job.ID, "error", mErr)
			}
			if rErr := s.ledger.RefundIfNeeded(ctx, job.Key, err.Error()); rErr != nil {
				s.log.Error("credit refund failed", "job_key", job.Key, "error", rErr)
			}
			s.failures.RecordFailure(ctx, runner.Classify(err).String())
			telemetry.JobsFailed.Inc()
			return err
		}

		if mErr := s.repo.MarkCompleted(ctx, job.ID); mErr != nil {
			s.log.Error("mark completed failed", "job_id", job.ID, "error", mErr)
		}
		if uErr := s.quota.Record(ctx, job.UserID, job.CaseID, usageType, quantity, map[string]any{"job_type": job.Type}); uErr != nil {
			s.log.Error("usage record failed", "job_id", job.ID, "error", uErr)
		}
		telemetry.JobsCompleted.Inc()
		return nil
	}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Job, error) {
	return s.repo.ListByOwner(ctx, userID)
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.CancelQueued(ctx, id)
}
