package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"vibe/api/internal/auth"
	"vibe/api/internal/metrics"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/api/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/api/session", s.handleSession).Methods(http.MethodGet)
	router.HandleFunc("/api/session/login", s.handleLogin).Methods(http.MethodPost)
	router.HandleFunc("/api/session/refresh", s.handleRefresh).Methods(http.MethodPost)
	router.HandleFunc("/api/session/logout", s.handleLogout).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/repair-thread-roots", s.handleRepairThreadRoots).Methods(http.MethodPost)
	router.HandleFunc("/api/rpc/{procedure}", s.handleRPC).Methods(http.MethodPost, http.MethodOptions)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return s.withMiddleware(router)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	ident, err := s.service.IdentityFromToken(token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        ident.UserID,
		"userName":      ident.Name,
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, err := s.service.Login(r.Context(), body.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LOGIN_FAILED", "Login failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        sess.Token,
		"refreshToken": sess.RefreshToken,
		"userId":       sess.UserID,
		"userName":     sess.UserName,
	})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        sess.Token,
		"refreshToken": sess.RefreshToken,
		"userName":     sess.UserName,
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	_ = s.service.Logout(r.Context(), body.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleRepairThreadRoots(w http.ResponseWriter, r *http.Request) {
	ident := s.identity(r)
	result, err := s.service.RepairThreadRoots(r.Context(), ident)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRPC is the typed procedure surface. Procedures are addressed by
// name, take a JSON body and return {"result": ...}.
func (s *HTTPServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	procedure := mux.Vars(r)["procedure"]
	ident := s.identity(r)

	started := time.Now()
	result, err := s.dispatch(r, procedure, ident)
	metrics.ObserveRPC(procedure, outcomeLabel(err), time.Since(started).Seconds())

	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// identity resolves the caller from the bearer token. Absent or invalid
// tokens yield a nil identity; the authorization gate decides whether
// that is acceptable.
func (s *HTTPServer) identity(r *http.Request) *Identity {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	ident, err := s.service.IdentityFromToken(token)
	if err != nil {
		return nil
	}
	return ident
}

func (s *HTTPServer) dispatch(r *http.Request, procedure string, ident *Identity) (any, error) {
	ctx := r.Context()
	switch procedure {
	case "workspace.list":
		return s.service.ListWorkspaces(ctx, ident)

	case "workspace.getById":
		var input struct {
			ID string `json:"id"`
		}
		if err := decodeBody(r, &input); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return s.service.GetWorkspaceByID(ctx, ident, input.ID)

	case "workspace.create":
		var input struct {
			Name string `json:"name"`
			Slug string `json:"slug"`
		}
		if err := decodeBody(r, &input); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return s.service.CreateWorkspace(ctx, ident, input.Name, input.Slug)

	case "channel.list":
		var input struct {
			WorkspaceID string `json:"workspaceId"`
		}
		if err := decodeBody(r, &input); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return s.service.ListChannels(ctx, ident, input.WorkspaceID)

	case "channel.getBySlug":
		var input struct {
			WorkspaceID string `json:"workspaceId"`
			Slug        string `json:"slug"`
		}
		if err := decodeBody(r, &input); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return s.service.GetChannelBySlug(ctx, ident, input.WorkspaceID, input.Slug)

	case "channel.create":
		var input struct {
			WorkspaceID string  `json:"workspaceId"`
			Name        string  `json:"name"`
			Description *string `json:"description"`
		}
		if err := decodeBody(r, &input); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return s.service.CreateChannel(ctx, ident, input.WorkspaceID, input.Name, input.Description)

	case "message.list":
		var input struct {
			ChannelID string  `json:"channelId"`
			Cursor    *string `json:"cursor"`
			Limit     int     `json:"limit"`
		}
		if err := decodeBody(r, &input); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return s.service.ListMessages(ctx, ident, input.ChannelID, input.Cursor, input.Limit)

	case "message.send":
		var input struct {
			ChannelID string  `json:"channelId"`
			Content   string  `json:"content"`
			ParentID  *string `json:"parentId"`
		}
		if err := decodeBody(r, &input); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return s.service.SendMessage(ctx, ident, input.ChannelID, input.Content, input.ParentID)

	case "thread.getReplies":
		var input struct {
			MessageID string  `json:"messageId"`
			Cursor    *string `json:"cursor"`
		}
		if err := decodeBody(r, &input); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return s.service.ThreadReplies(ctx, ident, input.MessageID, input.Cursor)

	case "dive.create":
		var input struct {
			SourceMessageID string `json:"sourceMessageId"`
			Title           string `json:"title"`
		}
		if err := decodeBody(r, &input); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return s.service.CreateDive(ctx, ident, input.SourceMessageID, input.Title)

	case "dive.list":
		var input struct {
			ChannelID string `json:"channelId"`
		}
		if err := decodeBody(r, &input); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return s.service.ListDives(ctx, ident, input.ChannelID)

	case "dive.publish":
		var input struct {
			DiveID string `json:"diveId"`
		}
		if err := decodeBody(r, &input); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return s.service.PublishDive(ctx, ident, input.DiveID)

	case "agent.list":
		return s.service.ListAgents(ctx, ident)

	case "agent.invoke":
		var input struct {
			AgentID   string `json:"agentId"`
			MessageID string `json:"messageId"`
			ChannelID string `json:"channelId"`
		}
		if err := decodeBody(r, &input); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return s.service.InvokeAgent(ctx, ident, input.AgentID, input.MessageID, input.ChannelID)

	case "search.query":
		var input struct {
			Q           string `json:"q"`
			WorkspaceID string `json:"workspaceId"`
			Limit       int    `json:"limit"`
		}
		if err := decodeBody(r, &input); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return s.service.SearchQuery(ctx, ident, input.Q, input.WorkspaceID, input.Limit)

	default:
		return nil, domainError(http.StatusNotFound, "UNKNOWN_PROCEDURE", fmt.Sprintf("Unknown procedure %q", procedure), nil)
	}
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return strings.ToLower(domainErr.Code)
	}
	return "error"
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
