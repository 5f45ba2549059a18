package pagesvc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pdfpages/kit"
	"github.com/hazyhaar/pdfpages/pagemanip"
	"github.com/hazyhaar/pdfpages/pdfcodec"
)

// Handler returns the full HTTP surface: the REST API, /metrics and the
// streamable MCP endpoint at /mcp.
func (s *Service) Handler(impl *mcp.Implementation) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(contextMiddleware)

	s.RegisterHTTP(r)
	r.Handle("/metrics", s.metrics.handler())

	mcpSrv := mcp.NewServer(impl, nil)
	s.RegisterMCP(mcpSrv)
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": len(s.List())})
	})
	return r
}

// contextMiddleware copies the chi request ID into the kit context.
func contextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithTransport(r.Context(), "http")
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = kit.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RegisterHTTP mounts the session API on r.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(apiHeaders, maxBody)
		r.Post("/", s.handleOpen)
		r.Get("/", s.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleClose)
			r.Post("/ops", s.handleApply)
			r.Post("/save", s.handleSave)
			r.Post("/split", s.handleSplit)
			r.Get("/history", s.handleHistory)
		})
	})
}

func (s *Service) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openReq
	if !decodeBody(w, r, &req) {
		return
	}
	info, err := s.Open(r.Context(), req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Service) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.List()})
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	info, err := s.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Service) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// opBody is one operation; Operations, when set, applies several in order
// and stops at the first failure.
type opBody struct {
	Op string `json:"op"`
	pagemanip.Args
	Operations []opBody `json:"operations,omitempty"`
}

func (b opBody) build() (pagemanip.Op, error) {
	kind, err := pagemanip.ParseOpKind(b.Op)
	if err != nil {
		return nil, err
	}
	return pagemanip.OpFromArgs(kind, b.Args)
}

func (s *Service) handleApply(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body opBody
	if !decodeBody(w, r, &body) {
		return
	}
	batch := body.Operations
	if len(batch) == 0 {
		batch = []opBody{body}
	}

	ops := make([]pagemanip.Op, 0, len(batch))
	for i, b := range batch {
		op, err := b.build()
		if err != nil {
			writeError(w, fmt.Errorf("operation %d: %w", i, err))
			return
		}
		ops = append(ops, op)
	}

	ctx := kit.WithSessionID(r.Context(), id)
	var info SessionInfo
	for i, op := range ops {
		var err error
		if info, err = s.Apply(ctx, id, op); err != nil {
			writeError(w, fmt.Errorf("operation %d: %w", i, err))
			return
		}
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Service) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveReq
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	path, err := s.Save(r.Context(), chi.URLParam(r, "id"), req.View, req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Service) handleSplit(w http.ResponseWriter, r *http.Request) {
	res, err := s.Split(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.History(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// statusFor maps service and manipulator errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, pagemanip.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPathNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, pagemanip.ErrNotLoaded):
		return http.StatusConflict
	case errors.Is(err, ErrNoJournal):
		return http.StatusNotImplemented
	case errors.Is(err, pagemanip.ErrValidation),
		errors.Is(err, pagemanip.ErrIndexOutOfRange),
		errors.Is(err, pagemanip.ErrEmptyDocument),
		errors.Is(err, pagemanip.ErrUnknownAction),
		errors.Is(err, pagemanip.ErrFormat),
		errors.Is(err, pdfcodec.ErrNoPages):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, fmt.Errorf("decode body: %v: %w", err, pagemanip.ErrValidation))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := pagemanip.Code(err)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		code = "session_not_found"
	case errors.Is(err, ErrPathNotAllowed):
		code = "path_not_allowed"
	case errors.Is(err, ErrTooManySessions):
		code = "too_many_sessions"
	}
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error(), "code": code})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
