package router

import (
	"net/http"

	"github.com/caseflow/backend/internal/billing"
	"github.com/caseflow/backend/internal/dashboard"
	"github.com/caseflow/backend/internal/jobs"
)

// New returns an http.Handler that serves the API under /api/v1.
func New(jobsHandler *jobs.Handler, billingHandler *billing.Handler, dashHandler *dashboard.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc("POST "+base+"/jobs", jobsHandler.SubmitJob)
	mux.HandleFunc("GET "+base+"/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET "+base+"/jobs/{id}", jobsHandler.GetJob)
	mux.HandleFunc("POST "+base+"/jobs/{id}/cancel", jobsHandler.CancelJob)

	mux.HandleFunc("POST "+base+"/billing/credits", billingHandler.ConfirmPackPurchase)

	mux.HandleFunc("GET "+base+"/stats", dashHandler.GetStats)
	mux.HandleFunc("GET "+base+"/balance", dashHandler.GetBalance)
	mux.HandleFunc("GET "+base+"/credit-ledger", dashHandler.ListCreditLedger)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return mux
}
