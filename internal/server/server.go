// Package server exposes the gxa client over HTTP with chi.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/gxp-audit/gxa/internal/rollback"
	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/gxa"
	"github.com/gxp-audit/gxa/pkg/logging"
	"github.com/gxp-audit/gxa/pkg/model"
	"github.com/gxp-audit/gxa/pkg/tracing"
)

// Request headers carrying forensic context.
const (
	HeaderActor     = "X-Actor-ID"
	HeaderSession   = "X-Session-ID"
	HeaderDevice    = "X-Device"
	HeaderRequestID = "X-Request-ID"
	HeaderNote      = "X-Audit-Note"
)

const maxBodyBytes = 1 << 20

// Server routes HTTP requests to a gxa client.
type Server struct {
	client *gxa.Client
	logger *logging.Logger
	router chi.Router
}

// New builds the router. client must be initialized.
func New(client *gxa.Client, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Server{
		client: client,
		logger: logger.WithFields(map[string]any{"component": "http"}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware)
	r.Use(requestContext)
	r.Use(s.requestLogger)

	// Long-lived; outside the request timeout.
	r.Get("/events", s.streamEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", s.health)
		r.Handle("/metrics", s.client.Metrics().Handler())

		r.Route("/entities/{type}/{id}", func(r chi.Router) {
			r.Get("/", s.getEntity)
			r.Get("/audit", s.listAudit)
			r.Get("/verify", s.verifyStream)
			r.Group(func(r chi.Router) {
				r.Use(requireActor)
				r.Put("/", s.putEntity)
				r.Delete("/", s.deleteEntity)
				r.Post("/rollback", s.rollback)
				r.Post("/export", s.export)
			})
		})

		r.Route("/audit/{entryID}", func(r chi.Router) {
			r.Get("/", s.getEntry)
			r.Get("/verify", s.verifyEntry)
			r.Get("/preview", s.preview)
		})
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", map[string]any{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "healthy", "service": "gxa"}
	if err := s.client.Store().Ping(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
	}
	writeJSON(w, status, body)
}

func (s *Server) getEntity(w http.ResponseWriter, r *http.Request) {
	st, err := s.client.EntityState(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entity_type": st.Key.Type,
		"entity_id":   st.Key.ID,
		"state":       json.RawMessage(st.Snapshot()),
		"revision":    st.Revision,
		"deleted":     st.Deleted,
		"updated_at":  st.UpdatedAt,
	})
}

func (s *Server) putEntity(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.client.Put(r.Context(), ContextFrom(r.Context()),
		chi.URLParam(r, "type"), chi.URLParam(r, "id"), string(body), r.Header.Get(HeaderNote))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if e.Action == model.ActionCreate {
		status = http.StatusCreated
	}
	writeJSON(w, status, e)
}

func (s *Server) deleteEntity(w http.ResponseWriter, r *http.Request) {
	e, err := s.client.Delete(r.Context(), ContextFrom(r.Context()),
		chi.URLParam(r, "type"), chi.URLParam(r, "id"), r.Header.Get(HeaderNote))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	items, err := s.client.History(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) verifyStream(w http.ResponseWriter, r *http.Request) {
	result, err := s.client.Verify(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	e, err := s.client.Export(r.Context(), ContextFrom(r.Context()), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.entryID(w, r)
	if !ok {
		return
	}
	e, err := s.client.Entry(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) verifyEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.entryID(w, r)
	if !ok {
		return
	}
	check, err := s.client.VerifyEntry(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	id, ok := s.entryID(w, r)
	if !ok {
		return
	}
	p, err := s.client.Preview(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RollbackRequest is the body of POST /entities/{type}/{id}/rollback.
// The entry id may be sent as a JSON number or string. ExpectedRevision is
// the revision reported by the preview or audit listing the entry was
// selected from.
type RollbackRequest struct {
	AuditEntryID     json.Number     `json:"audit_entry_id"`
	Confirm          bool            `json:"confirm"`
	ExpectedRevision *model.Revision `json:"expected_revision,omitempty"`
}

// RollbackResponse reports the outcome of a rollback request.
type RollbackResponse struct {
	Outcome model.RollbackOutcome `json:"outcome"`
	Status  string                `json:"status"`
	Entry   *model.AuditEntry     `json:"entry,omitempty"`
}

func (s *Server) rollback(w http.ResponseWriter, r *http.Request) {
	var req RollbackRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return
	}
	id, err := model.ParseEntryID(req.AuditEntryID.String())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	target := rollback.Target{
		EntityType:       chi.URLParam(r, "type"),
		EntityID:         chi.URLParam(r, "id"),
		EntryID:          id,
		ExpectedRevision: req.ExpectedRevision,
	}
	entry, err := s.client.Rollback(r.Context(), ContextFrom(r.Context()), target, rollback.Static(req.Confirm))
	outcome := model.OutcomeOf(err)
	writeJSON(w, outcomeStatus(outcome), RollbackResponse{Outcome: outcome, Status: outcome.Status(), Entry: entry})
}

func outcomeStatus(o model.RollbackOutcome) int {
	switch o {
	case model.OutcomeCompleted:
		return http.StatusOK
	case model.OutcomeIneligible, model.OutcomeSignatureInvalid:
		return http.StatusUnprocessableEntity
	case model.OutcomeNoHandler:
		return http.StatusNotImplemented
	case model.OutcomeConcurrencyConflict:
		return http.StatusConflict
	case model.OutcomeCancelled:
		return http.StatusPreconditionFailed
	case model.OutcomeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) entryID(w http.ResponseWriter, r *http.Request) (model.EntryID, bool) {
	id, err := model.ParseEntryID(chi.URLParam(r, "entryID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return 0, false
	}
	return id, true
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}
	var ge *errclass.GXAError
	if errors.As(err, &ge) {
		body.Code = ge.Code
	}
	switch {
	case errors.Is(err, errclass.ErrNameInvalid), errors.Is(err, errclass.ErrSnapshotInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, errclass.ErrEntityNotFound), errors.Is(err, errclass.ErrEntryNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errclass.ErrConcurrencyConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.ErrorErr("request failed", err, map[string]any{"path": r.URL.Path})
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errclass.ErrSnapshotInvalid.Wrapf(err, "read body")
	}
	return body, nil
}

type ctxKey struct{}

// ContextFrom returns the forensic context attached by the server's
// middleware.
func ContextFrom(ctx context.Context) model.RequestContext {
	rc, _ := ctx.Value(ctxKey{}).(model.RequestContext)
	return rc
}

// requestContext builds the RequestContext from headers. Session and
// request ids are generated when the caller sends none.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := model.RequestContext{
			ActorID:     strings.TrimSpace(r.Header.Get(HeaderActor)),
			ActorIP:     clientIP(r),
			ActorDevice: r.Header.Get(HeaderDevice),
			SessionID:   r.Header.Get(HeaderSession),
			RequestID:   r.Header.Get(HeaderRequestID),
		}
		if rc.ActorDevice == "" {
			rc.ActorDevice = r.UserAgent()
		}
		if rc.SessionID == "" {
			rc.SessionID = uuid.NewString()
		}
		if rc.RequestID == "" {
			rc.RequestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, rc.RequestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, rc)))
	})
}

func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ContextFrom(r.Context()).ActorID == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: HeaderActor + " header is required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		rc := ContextFrom(r.Context())
		s.logger.Debug("request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"actor":      rc.ActorID,
			"request_id": rc.RequestID,
		})
	})
}
