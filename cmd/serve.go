package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/classify"
	"github.com/sells-group/verify-cli/internal/extract"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/single"
	"github.com/sells-group/verify-cli/internal/view"
	"github.com/sells-group/verify-cli/internal/workflow"
)

// maxIntakeBytes caps the body of POST /api/sessions.
const maxIntakeBytes = 32 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the operator HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}
		redis := initCache(ctx)
		if redis != nil {
			defer redis.Close() //nolint:errcheck
		}

		client := initClient()
		orch := initOrchestrator(client, st)
		defer orch.Close()

		api := &apiServer{
			orch:     orch,
			flow:     initFlow(client, redis),
			secret:   cfg.Server.AuthSecret,
			pageSize: cfg.Results.PageSize,
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.Bool("auth", api.secret != ""),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// apiServer exposes one orchestrator session and the single-check flow.
type apiServer struct {
	orch     *workflow.Orchestrator
	flow     *single.Flow
	secret   string
	pageSize int
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Auth-Secret"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireSecret)

		r.Post("/sessions", s.handleStart)
		r.Get("/sessions/current", s.handleCurrent)
		r.Get("/sessions/current/results", s.handleResults)
		r.Post("/sessions/current/phase2", s.handlePhase2)
		r.Delete("/sessions/current", s.handleReset)

		r.Post("/single", s.handleSingle)
		r.Post("/single/confirm", s.handleConfirm)
	})

	return r
}

// requireSecret rejects requests without the shared secret when one is set.
func (s *apiServer) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret != "" {
			got := r.Header.Get("X-Auth-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// stateResponse is the JSON shape of the current session.
type stateResponse struct {
	State     string           `json:"state"`
	SessionID string           `json:"session_id,omitempty"`
	Job       *workflow.JobRef `json:"job,omitempty"`
	Progress  *model.Job       `json:"progress,omitempty"`
	Stats     *model.Stats     `json:"stats,omitempty"`
	Rows      int              `json:"rows,omitempty"`
	Total     int              `json:"total,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func (s *apiServer) snapshot() stateResponse {
	st := s.orch.State()
	resp := stateResponse{State: st.Name(), SessionID: s.orch.SessionID()}
	switch v := st.(type) {
	case workflow.Submitting:
		resp.Job = &workflow.JobRef{Level: v.Level}
	case workflow.Polling:
		resp.Job = &v.Job
		resp.Progress = v.Progress
	case workflow.Results:
		resp.Job = &v.Job
		resp.Stats = &v.Stats
		resp.Rows = len(v.Rows)
		resp.Total = v.Total
	case workflow.Failed:
		resp.Job = &v.Job
		if v.Err != nil {
			resp.Error = v.Err.Error()
		}
	}
	return resp
}

func (s *apiServer) handleStart(w http.ResponseWriter, r *http.Request) {
	text, err := readIntake(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "api"
	}
	if err := s.orch.Start(r.Context(), source, text); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, s.snapshot())
}

// readIntake accepts a raw text body or a JSON {"text": ...} object.
func readIntake(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIntakeBytes))
	if err != nil {
		return "", eris.Wrap(err, "read body")
	}
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return "", eris.New("invalid request body")
		}
		return req.Text, nil
	}
	return string(body), nil
}

func (s *apiServer) handleCurrent(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.snapshot())
}

// resultRow is one displayed row with its derived tier.
type resultRow struct {
	Email  string                    `json:"email"`
	Tier   model.Tier                `json:"tier,omitempty"`
	Badge  string                    `json:"badge"`
	Result *model.VerificationResult `json:"result,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

type resultsResponse struct {
	Level  model.Level `json:"level"`
	Filter string      `json:"filter"`
	Page   int         `json:"page"`
	Pages  int         `json:"pages"`
	Total  int         `json:"total"`
	Stats  model.Stats `json:"stats"`
	Rows   []resultRow `json:"rows"`
}

func (s *apiServer) handleResults(w http.ResponseWriter, r *http.Request) {
	res, ok := s.orch.State().(workflow.Results)
	if !ok {
		respondError(w, http.StatusConflict, "no results available")
		return
	}

	filter, err := view.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		page, err = strconv.Atoi(p)
		if err != nil {
			respondError(w, http.StatusBadRequest, "page must be an integer")
			return
		}
	}

	v := view.New(res.Rows, s.pageSize)
	v.SetFilter(filter)
	v.SetPage(page)

	resp := resultsResponse{
		Level:  res.Job.Level,
		Filter: string(filter),
		Page:   v.Page(),
		Pages:  v.PageCount(),
		Total:  v.Total(),
		Stats:  res.Stats,
		Rows:   make([]resultRow, 0, len(v.Rows())),
	}
	if resp.Filter == "" {
		resp.Filter = "all"
	}
	for _, row := range v.Rows() {
		out := resultRow{Email: row.Email, Badge: classify.Badge(row.Result), Result: row.Result, Error: row.Error}
		if row.Result != nil {
			out.Tier = classify.Classify(row.Result)
		}
		resp.Rows = append(resp.Rows, out)
	}
	respondJSON(w, http.StatusOK, resp)
}

// handlePhase2 decodes the tier selection over the default one, so fields the
// caller omits keep their default values.
func (s *apiServer) handlePhase2(w http.ResponseWriter, r *http.Request) {
	sel := model.DefaultPhase2Selection()
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.orch.Escalate(r.Context(), sel); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, s.snapshot())
}

func (s *apiServer) handleReset(w http.ResponseWriter, r *http.Request) {
	s.orch.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// singleResponse carries a level-1 check and, when an SMTP check is on
// offer, the token that approves it.
type singleResponse struct {
	*single.Check
	Escalation *single.EscalationPlan `json:"escalation,omitempty"`
}

func (s *apiServer) handleSingle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		respondError(w, http.StatusBadRequest, "email is required")
		return
	}

	c, err := s.flow.Check(r.Context(), req.Email)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	resp := singleResponse{Check: c}
	if c.Escalatable {
		plan, err := s.flow.Plan(c.Email)
		if err != nil {
			respondError(w, statusFor(err), err.Error())
			return
		}
		resp.Escalation = plan
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := s.flow.Confirm(r.Context(), req.Token)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// statusFor maps workflow and single-check errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, extract.ErrNoEmails), errors.Is(err, workflow.ErrNothingSelected):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, workflow.ErrSessionReset):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrPort25Blocked):
		return http.StatusPreconditionFailed
	case errors.Is(err, single.ErrConfirmationRequired), errors.Is(err, single.ErrNotEscalatable):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
