package processors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/caseflow/backend/internal/jobs"
	"github.com/caseflow/backend/internal/models"
	"github.com/caseflow/backend/internal/runner"
)

// Client invokes the external document-processing service over HTTP. Errors
// come back tagged with their retry class so the runner's policy can tell a
// throttled upstream from a genuinely broken request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(baseURL string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log,
	}
}

type processRequest struct {
	JobID   uuid.UUID  `json:"job_id"`
	JobType string     `json:"job_type"`
	UserID  uuid.UUID  `json:"user_id"`
	CaseID  *uuid.UUID `json:"case_id,omitempty"`
}

// Processor returns a job processor that POSTs the job to baseURL+path and
// interprets the response status.
func (c *Client) Processor(path string) jobs.Processor {
	return func(ctx context.Context, job *models.Job) error {
		body, err := json.Marshal(processRequest{
			JobID:   job.ID,
			JobType: job.Type,
			UserID:  job.UserID,
			CaseID:  job.CaseID,
		})
		if err != nil {
			return runner.Fatal(fmt.Errorf("encode request: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return runner.Fatal(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return runner.ServerUnavailable(fmt.Errorf("processing service timed out: %w", err))
			}
			// Connection resets stay untagged so the class is read off the
			// syscall error itself.
			return fmt.Errorf("call processing service: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return runner.FromHTTPStatus(resp.StatusCode,
				fmt.Errorf("processing service returned %d for job %s", resp.StatusCode, job.ID))
		}

		c.log.Debug("processing service accepted job", "job_id", job.ID, "job_type", job.Type)
		return nil
	}
}
