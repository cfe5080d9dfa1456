package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"vibe/api/internal/auth"
	"vibe/api/internal/config"
	"vibe/api/internal/mentions"
	"vibe/api/internal/session"
	"vibe/api/internal/store"
	"vibe/api/internal/util"
	"vibe/api/internal/validate"
)

// Identity is the authenticated caller reference carried into every
// procedure. A nil Identity means the call is unauthenticated.
type Identity struct {
	UserID string
	Name   string
}

// Session is the result of a login or refresh.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the relational store capability the service depends on.
type dataStore interface {
	EnsureUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	UpsertUser(context.Context, string) error
	ListWorkspacesForMember(context.Context, string) ([]store.Workspace, error)
	GetWorkspaceForMember(context.Context, string, string) (store.Workspace, error)
	InsertWorkspace(context.Context, store.Workspace) (store.Workspace, error)
	InsertWorkspaceMember(context.Context, store.WorkspaceMember) error
	SeedWorkspaceAgents(context.Context, string) error
	ListChannels(context.Context, string) ([]store.Channel, error)
	GetChannelBySlug(context.Context, string, string) (store.Channel, error)
	InsertChannel(context.Context, store.Channel) (store.Channel, error)
	GetMessageThreadID(context.Context, string) (string, error)
	InsertThread(context.Context, store.Thread) (store.Thread, error)
	InsertMessage(context.Context, store.Message) (store.Message, error)
	SetThreadRootMessage(context.Context, string, string) error
	ListRootMessages(context.Context, string, *time.Time, int) ([]store.MessageWithAuthor, error)
	RepairThreadRoots(context.Context) (int, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID, userName string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (session.TokenData, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	logger   *zap.Logger
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions *session.RedisStore, logger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		logger:   logger,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// guard is the authorization gate every protected procedure passes
// through. With no identity the body never runs and the store is never
// touched.
func (s *Service) guard(ident *Identity) error {
	if ident == nil || ident.UserID == "" {
		return errUnauthorized
	}
	return nil
}

// Sessions

func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	userName := trimOrDefault(name, "User")

	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	data, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, data.UserID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID()

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.Name,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID() + util.NewID()
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, user.Name, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Name,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// IdentityFromToken derives the caller identity from an access token.
// Purely token-based: no store access happens here.
func (s *Service) IdentityFromToken(token string) (*Identity, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: claims.Sub, Name: claims.Name}, nil
}

// Workspaces

func (s *Service) ListWorkspaces(ctx context.Context, ident *Identity) ([]map[string]any, error) {
	if err := s.guard(ident); err != nil {
		return nil, err
	}
	workspaces, err := s.store.ListWorkspacesForMember(ctx, ident.UserID)
	if err != nil {
		return nil, storeFailure("Failed to list workspaces", err)
	}
	items := make([]map[string]any, 0, len(workspaces))
	for _, workspace := range workspaces {
		items = append(items, workspacePayload(workspace))
	}
	return items, nil
}

func (s *Service) GetWorkspaceByID(ctx context.Context, ident *Identity, workspaceID string) (map[string]any, error) {
	if err := (validate.Rule{Field: "id", ID: true}).Check(&workspaceID); err != nil {
		return nil, validationError(err)
	}
	if err := s.guard(ident); err != nil {
		return nil, err
	}
	workspace, err := s.store.GetWorkspaceForMember(ctx, workspaceID, ident.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Workspace not found")
		}
		return nil, storeFailure("Failed to load workspace", err)
	}
	return workspacePayload(workspace), nil
}

// CreateWorkspace performs three ordered writes: user upsert, workspace
// insert, admin membership insert. Each failure carries its own message.
// Agent seeding afterwards is best-effort and never fails the call.
func (s *Service) CreateWorkspace(ctx context.Context, ident *Identity, name, slug string) (map[string]any, error) {
	if err := validate.CreateWorkspace(name, slug); err != nil {
		return nil, validationError(err)
	}
	if err := s.guard(ident); err != nil {
		return nil, err
	}

	if err := s.store.UpsertUser(ctx, ident.UserID); err != nil {
		return nil, storeFailure("Failed to ensure user record", err)
	}

	workspace, err := s.store.InsertWorkspace(ctx, store.Workspace{
		ID:      util.NewID(),
		Name:    name,
		Slug:    slug,
		OwnerID: ident.UserID,
	})
	if err != nil {
		return nil, storeFailure("Failed to create workspace", err)
	}

	if err := s.store.InsertWorkspaceMember(ctx, store.WorkspaceMember{
		WorkspaceID: workspace.ID,
		UserID:      ident.UserID,
		Role:        "admin",
	}); err != nil {
		return nil, storeFailure("Failed to add workspace member", err)
	}

	if err := s.store.SeedWorkspaceAgents(ctx, workspace.ID); err != nil {
		s.logger.Warn("agent seeding failed",
			zap.String("workspace_id", workspace.ID),
			zap.Error(err),
		)
	}

	return workspacePayload(workspace), nil
}

// Channels

func (s *Service) ListChannels(ctx context.Context, ident *Identity, workspaceID string) ([]map[string]any, error) {
	if err := (validate.Rule{Field: "workspaceId", ID: true}).Check(&workspaceID); err != nil {
		return nil, validationError(err)
	}
	if err := s.guard(ident); err != nil {
		return nil, err
	}
	channels, err := s.store.ListChannels(ctx, workspaceID)
	if err != nil {
		return nil, storeFailure("Failed to list channels", err)
	}
	items := make([]map[string]any, 0, len(channels))
	for _, channel := range channels {
		items = append(items, channelPayload(channel))
	}
	return items, nil
}

func (s *Service) GetChannelBySlug(ctx context.Context, ident *Identity, workspaceID, slug string) (map[string]any, error) {
	if err := (validate.Rule{Field: "workspaceId", ID: true}).Check(&workspaceID); err != nil {
		return nil, validationError(err)
	}
	if err := (validate.Rule{Field: "slug", Min: 1}).Check(&slug); err != nil {
		return nil, validationError(err)
	}
	if err := s.guard(ident); err != nil {
		return nil, err
	}
	channel, err := s.store.GetChannelBySlug(ctx, workspaceID, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Channel not found")
		}
		return nil, storeFailure("Failed to load channel", err)
	}
	return channelPayload(channel), nil
}

func (s *Service) CreateChannel(ctx context.Context, ident *Identity, workspaceID, name string, description *string) (map[string]any, error) {
	if err := validate.CreateChannel(workspaceID, name, description); err != nil {
		return nil, validationError(err)
	}
	if err := s.guard(ident); err != nil {
		return nil, err
	}
	channel, err := s.store.InsertChannel(ctx, store.Channel{
		ID:          util.NewID(),
		WorkspaceID: workspaceID,
		Name:        name,
		Description: description,
		CreatedBy:   ident.UserID,
	})
	if err != nil {
		return nil, storeFailure("Failed to create channel", err)
	}
	return channelPayload(channel), nil
}

// Messages

// ListMessages pages through root messages of a channel, newest first.
// The cursor is the createdAt of the last row of the previous page; one
// extra row is fetched to decide whether a next page exists.
func (s *Service) ListMessages(ctx context.Context, ident *Identity, channelID string, cursor *string, limit int) (map[string]any, error) {
	if err := validate.ListMessages(channelID); err != nil {
		return nil, validationError(err)
	}
	if limit == 0 {
		limit = 50
	}
	if limit < 1 || limit > 100 {
		return nil, validationError(&validate.FieldError{Field: "limit", Reason: "must be between 1 and 100"})
	}
	var before *time.Time
	if cursor != nil && *cursor != "" {
		parsed, err := time.Parse(time.RFC3339Nano, *cursor)
		if err != nil {
			return nil, validationError(&validate.FieldError{Field: "cursor", Reason: "must be a timestamp"})
		}
		before = &parsed
	}
	if err := s.guard(ident); err != nil {
		return nil, err
	}

	rows, err := s.store.ListRootMessages(ctx, channelID, before, limit+1)
	if err != nil {
		return nil, storeFailure("Failed to list messages", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	messages := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		payload := messagePayload(row.Message)
		payload["author"] = authorPayload(row.Author)
		messages = append(messages, payload)
	}

	var nextCursor any
	if hasMore && len(messages) > 0 {
		nextCursor = messages[len(messages)-1]["createdAt"]
	}

	return map[string]any{
		"messages":   messages,
		"nextCursor": nextCursor,
	}, nil
}

// SendMessage resolves the target thread and performs the ordered
// writes. A reply joins its parent's thread; a top-level message creates
// a thread first and links it back to the message afterwards. The steps
// are sequential and not wrapped in a transaction: a failure partway
// leaves prior writes committed (RepairThreadRoots covers the missing
// root link).
func (s *Service) SendMessage(ctx context.Context, ident *Identity, channelID, content string, parentID *string) (map[string]any, error) {
	if err := validate.SendMessage(channelID, content, parentID); err != nil {
		return nil, validationError(err)
	}
	if err := s.guard(ident); err != nil {
		return nil, err
	}

	var threadID string
	newThread := false
	if parentID != nil {
		// Reply: inherit the parent's thread. The parent's channel is
		// not checked against channelID.
		resolved, err := s.store.GetMessageThreadID(ctx, *parentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, notFound("Parent message not found")
			}
			return nil, storeFailure("Failed to load parent message", err)
		}
		threadID = resolved
	} else {
		thread, err := s.store.InsertThread(ctx, store.Thread{
			ID:        util.NewID(),
			ChannelID: channelID,
			Status:    "active",
		})
		if err != nil {
			return nil, storeFailure("Failed to create thread", err)
		}
		threadID = thread.ID
		newThread = true
	}

	message, err := s.store.InsertMessage(ctx, store.Message{
		ID:         util.NewID(),
		ThreadID:   threadID,
		ParentID:   parentID,
		AuthorID:   ident.UserID,
		AuthorType: "human",
		Content:    content,
	})
	if err != nil {
		return nil, storeFailure("Failed to send message", err)
	}

	if newThread {
		if err := s.store.SetThreadRootMessage(ctx, threadID, message.ID); err != nil {
			return nil, storeFailure("Failed to set root message on thread", err)
		}
	}

	// Mentioned agents are handed off asynchronously; for now the
	// hand-off point only records what was addressed.
	if slugs := mentions.Parse(content); len(slugs) > 0 {
		s.logger.Info("message mentions",
			zap.String("message_id", message.ID),
			zap.Strings("slugs", slugs),
		)
	}

	return messagePayload(message), nil
}

// RepairThreadRoots is the out-of-band reconciliation for threads left
// without a root by a partial send. It never runs inside SendMessage.
func (s *Service) RepairThreadRoots(ctx context.Context, ident *Identity) (map[string]any, error) {
	if err := s.guard(ident); err != nil {
		return nil, err
	}
	repaired, err := s.store.RepairThreadRoots(ctx)
	if err != nil {
		return nil, storeFailure("Failed to repair thread roots", err)
	}
	if repaired > 0 {
		s.logger.Info("repaired thread roots", zap.Int("count", repaired))
	}
	return map[string]any{"repaired": repaired}, nil
}

// Declared stubs. Their shapes and input contracts are fixed; the
// subsystems behind them are not built yet.

func (s *Service) ThreadReplies(ctx context.Context, ident *Identity, messageID string, cursor *string) (map[string]any, error) {
	if err := validate.GetReplies(messageID); err != nil {
		return nil, validationError(err)
	}
	if err := s.guard(ident); err != nil {
		return nil, err
	}
	return map[string]any{"replies": []any{}, "nextCursor": nil}, nil
}

func (s *Service) CreateDive(ctx context.Context, ident *Identity, sourceMessageID, title string) (any, error) {
	if err := validate.CreateDive(sourceMessageID, title); err != nil {
		return nil, validationError(err)
	}
	if err := s.guard(ident); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Service) ListDives(ctx context.Context, ident *Identity, channelID string) ([]any, error) {
	if err := validate.ListDives(channelID); err != nil {
		return nil, validationError(err)
	}
	if err := s.guard(ident); err != nil {
		return nil, err
	}
	return []any{}, nil
}

func (s *Service) PublishDive(ctx context.Context, ident *Identity, diveID string) (any, error) {
	if err := validate.PublishDive(diveID); err != nil {
		return nil, validationError(err)
	}
	if err := s.guard(ident); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Service) ListAgents(ctx context.Context, ident *Identity) ([]any, error) {
	if err := s.guard(ident); err != nil {
		return nil, err
	}
	return []any{}, nil
}

func (s *Service) InvokeAgent(ctx context.Context, ident *Identity, agentID, messageID, channelID string) (any, error) {
	if err := validate.InvokeAgent(agentID, messageID, channelID); err != nil {
		return nil, validationError(err)
	}
	if err := s.guard(ident); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Service) SearchQuery(ctx context.Context, ident *Identity, q, workspaceID string, limit int) ([]any, error) {
	if err := validate.SearchQuery(q, workspaceID); err != nil {
		return nil, validationError(err)
	}
	if limit == 0 {
		limit = 20
	}
	if limit < 1 || limit > 50 {
		return nil, validationError(&validate.FieldError{Field: "limit", Reason: "must be between 1 and 50"})
	}
	if err := s.guard(ident); err != nil {
		return nil, err
	}
	return []any{}, nil
}

// Payload mapping from storage rows to the public shape. JSON map
// columns are never null publicly: a null settings/metadata value
// becomes an empty object.

func workspacePayload(w store.Workspace) map[string]any {
	return map[string]any{
		"id":        w.ID,
		"name":      w.Name,
		"slug":      w.Slug,
		"ownerId":   w.OwnerID,
		"settings":  jsonMapOrEmpty(w.Settings),
		"createdAt": formatTime(w.CreatedAt),
	}
}

func channelPayload(c store.Channel) map[string]any {
	return map[string]any{
		"id":          c.ID,
		"workspaceId": c.WorkspaceID,
		"name":        c.Name,
		"description": strOrNil(c.Description),
		"isPrivate":   c.IsPrivate,
		"createdBy":   c.CreatedBy,
		"createdAt":   formatTime(c.CreatedAt),
	}
}

func messagePayload(m store.Message) map[string]any {
	return map[string]any{
		"id":         m.ID,
		"threadId":   m.ThreadID,
		"diveId":     strOrNil(m.DiveID),
		"parentId":   strOrNil(m.ParentID),
		"authorId":   m.AuthorID,
		"authorType": m.AuthorType,
		"content":    m.Content,
		"metadata":   jsonMapOrEmpty(m.Metadata),
		"createdAt":  formatTime(m.CreatedAt),
		"updatedAt":  formatTime(m.UpdatedAt),
	}
}

func authorPayload(author *store.MessageAuthor) any {
	if author == nil {
		return nil
	}
	return map[string]any{
		"id":        author.ID,
		"name":      author.Name,
		"avatarUrl": strOrNil(author.AvatarURL),
	}
}

func jsonMapOrEmpty(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		return map[string]any{}
	}
	return decoded
}

func strOrNil(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func trimOrDefault(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
