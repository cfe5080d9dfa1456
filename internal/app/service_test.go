package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"vibe/api/internal/config"
	"vibe/api/internal/session"
	"vibe/api/internal/store"
)

type fakeStore struct {
	calls []string

	ensureUserByNameFn        func(context.Context, string) (store.User, error)
	getUserByIDFn             func(context.Context, string) (store.User, error)
	upsertUserFn              func(context.Context, string) error
	listWorkspacesForMemberFn func(context.Context, string) ([]store.Workspace, error)
	getWorkspaceForMemberFn   func(context.Context, string, string) (store.Workspace, error)
	insertWorkspaceFn         func(context.Context, store.Workspace) (store.Workspace, error)
	insertWorkspaceMemberFn   func(context.Context, store.WorkspaceMember) error
	seedWorkspaceAgentsFn     func(context.Context, string) error
	listChannelsFn            func(context.Context, string) ([]store.Channel, error)
	getChannelBySlugFn        func(context.Context, string, string) (store.Channel, error)
	insertChannelFn           func(context.Context, store.Channel) (store.Channel, error)
	getMessageThreadIDFn      func(context.Context, string) (string, error)
	insertThreadFn            func(context.Context, store.Thread) (store.Thread, error)
	insertMessageFn           func(context.Context, store.Message) (store.Message, error)
	setThreadRootMessageFn    func(context.Context, string, string) error
	listRootMessagesFn        func(context.Context, string, *time.Time, int) ([]store.MessageWithAuthor, error)
	repairThreadRootsFn       func(context.Context) (int, error)
}

func (f *fakeStore) record(name string) { f.calls = append(f.calls, name) }

func (f *fakeStore) EnsureUserByName(ctx context.Context, name string) (store.User, error) {
	f.record("EnsureUserByName")
	if f.ensureUserByNameFn != nil {
		return f.ensureUserByNameFn(ctx, name)
	}
	return store.User{ID: "user-1", Name: name}, nil
}
func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	f.record("GetUserByID")
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID, Name: "User"}, nil
}
func (f *fakeStore) UpsertUser(ctx context.Context, userID string) error {
	f.record("UpsertUser")
	if f.upsertUserFn != nil {
		return f.upsertUserFn(ctx, userID)
	}
	return nil
}
func (f *fakeStore) ListWorkspacesForMember(ctx context.Context, userID string) ([]store.Workspace, error) {
	f.record("ListWorkspacesForMember")
	if f.listWorkspacesForMemberFn != nil {
		return f.listWorkspacesForMemberFn(ctx, userID)
	}
	return nil, nil
}
func (f *fakeStore) GetWorkspaceForMember(ctx context.Context, workspaceID, userID string) (store.Workspace, error) {
	f.record("GetWorkspaceForMember")
	if f.getWorkspaceForMemberFn != nil {
		return f.getWorkspaceForMemberFn(ctx, workspaceID, userID)
	}
	return store.Workspace{}, sql.ErrNoRows
}
func (f *fakeStore) InsertWorkspace(ctx context.Context, workspace store.Workspace) (store.Workspace, error) {
	f.record("InsertWorkspace")
	if f.insertWorkspaceFn != nil {
		return f.insertWorkspaceFn(ctx, workspace)
	}
	return workspace, nil
}
func (f *fakeStore) InsertWorkspaceMember(ctx context.Context, member store.WorkspaceMember) error {
	f.record("InsertWorkspaceMember")
	if f.insertWorkspaceMemberFn != nil {
		return f.insertWorkspaceMemberFn(ctx, member)
	}
	return nil
}
func (f *fakeStore) SeedWorkspaceAgents(ctx context.Context, workspaceID string) error {
	f.record("SeedWorkspaceAgents")
	if f.seedWorkspaceAgentsFn != nil {
		return f.seedWorkspaceAgentsFn(ctx, workspaceID)
	}
	return nil
}
func (f *fakeStore) ListChannels(ctx context.Context, workspaceID string) ([]store.Channel, error) {
	f.record("ListChannels")
	if f.listChannelsFn != nil {
		return f.listChannelsFn(ctx, workspaceID)
	}
	return nil, nil
}
func (f *fakeStore) GetChannelBySlug(ctx context.Context, workspaceID, slug string) (store.Channel, error) {
	f.record("GetChannelBySlug")
	if f.getChannelBySlugFn != nil {
		return f.getChannelBySlugFn(ctx, workspaceID, slug)
	}
	return store.Channel{}, sql.ErrNoRows
}
func (f *fakeStore) InsertChannel(ctx context.Context, channel store.Channel) (store.Channel, error) {
	f.record("InsertChannel")
	if f.insertChannelFn != nil {
		return f.insertChannelFn(ctx, channel)
	}
	return channel, nil
}
func (f *fakeStore) GetMessageThreadID(ctx context.Context, messageID string) (string, error) {
	f.record("GetMessageThreadID")
	if f.getMessageThreadIDFn != nil {
		return f.getMessageThreadIDFn(ctx, messageID)
	}
	return "", sql.ErrNoRows
}
func (f *fakeStore) InsertThread(ctx context.Context, thread store.Thread) (store.Thread, error) {
	f.record("InsertThread")
	if f.insertThreadFn != nil {
		return f.insertThreadFn(ctx, thread)
	}
	return thread, nil
}
func (f *fakeStore) InsertMessage(ctx context.Context, message store.Message) (store.Message, error) {
	f.record("InsertMessage")
	if f.insertMessageFn != nil {
		return f.insertMessageFn(ctx, message)
	}
	return message, nil
}
func (f *fakeStore) SetThreadRootMessage(ctx context.Context, threadID, messageID string) error {
	f.record("SetThreadRootMessage")
	if f.setThreadRootMessageFn != nil {
		return f.setThreadRootMessageFn(ctx, threadID, messageID)
	}
	return nil
}
func (f *fakeStore) ListRootMessages(ctx context.Context, channelID string, before *time.Time, limit int) ([]store.MessageWithAuthor, error) {
	f.record("ListRootMessages")
	if f.listRootMessagesFn != nil {
		return f.listRootMessagesFn(ctx, channelID, before, limit)
	}
	return nil, nil
}
func (f *fakeStore) RepairThreadRoots(ctx context.Context) (int, error) {
	f.record("RepairThreadRoots")
	if f.repairThreadRootsFn != nil {
		return f.repairThreadRootsFn(ctx)
	}
	return 0, nil
}
func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeSessions struct {
	saved   map[string]session.TokenData
	revoked []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{saved: make(map[string]session.TokenData)}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash, userID, userName string, _ time.Time) error {
	f.saved[tokenHash] = session.TokenData{UserID: userID, UserName: userName, CreatedAt: time.Now()}
	return nil
}
func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (session.TokenData, error) {
	data, ok := f.saved[tokenHash]
	if !ok {
		return session.TokenData{}, session.ErrNotFound
	}
	return data, nil
}
func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.revoked = append(f.revoked, tokenHash)
	delete(f.saved, tokenHash)
	return nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 24 * time.Hour,
		},
		store:    fs,
		sessions: newFakeSessions(),
		logger:   zap.NewNop(),
	}
}

func testIdentity() *Identity {
	return &Identity{UserID: "11111111-1111-4111-8111-111111111111", Name: "Avery"}
}

const testChannelID = "22222222-2222-4222-8222-222222222222"

func TestSendMessageTopLevelCreatesThreadAndRoot(t *testing.T) {
	var insertedThread store.Thread
	var insertedMessage store.Message
	var rootThreadID, rootMessageID string

	fs := &fakeStore{
		insertThreadFn: func(_ context.Context, thread store.Thread) (store.Thread, error) {
			insertedThread = thread
			return thread, nil
		},
		insertMessageFn: func(_ context.Context, message store.Message) (store.Message, error) {
			insertedMessage = message
			return message, nil
		},
		setThreadRootMessageFn: func(_ context.Context, threadID, messageID string) error {
			rootThreadID = threadID
			rootMessageID = messageID
			return nil
		},
	}
	svc := newTestService(fs)

	result, err := svc.SendMessage(context.Background(), testIdentity(), testChannelID, "hello", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if insertedThread.ChannelID != testChannelID {
		t.Fatalf("thread channel = %q, want %q", insertedThread.ChannelID, testChannelID)
	}
	if insertedMessage.ThreadID != insertedThread.ID {
		t.Fatalf("message joined thread %q, want %q", insertedMessage.ThreadID, insertedThread.ID)
	}
	if rootThreadID != insertedThread.ID || rootMessageID != insertedMessage.ID {
		t.Fatalf("root link = (%q, %q), want (%q, %q)", rootThreadID, rootMessageID, insertedThread.ID, insertedMessage.ID)
	}
	if result["threadId"] != insertedThread.ID {
		t.Fatalf("payload threadId = %v, want %q", result["threadId"], insertedThread.ID)
	}
	wantCalls := []string{"InsertThread", "InsertMessage", "SetThreadRootMessage"}
	if got := strings.Join(fs.calls, ","); got != strings.Join(wantCalls, ",") {
		t.Fatalf("call order = %s", got)
	}
}

func TestSendMessageReplyInheritsParentThread(t *testing.T) {
	parentID := "33333333-3333-4333-8333-333333333333"
	fs := &fakeStore{
		getMessageThreadIDFn: func(_ context.Context, messageID string) (string, error) {
			if messageID != parentID {
				t.Fatalf("looked up parent %q, want %q", messageID, parentID)
			}
			return "thread-9", nil
		},
	}
	svc := newTestService(fs)

	result, err := svc.SendMessage(context.Background(), testIdentity(), testChannelID, "a reply", &parentID)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if result["threadId"] != "thread-9" {
		t.Fatalf("threadId = %v, want thread-9", result["threadId"])
	}
	if result["parentId"] != parentID {
		t.Fatalf("parentId = %v, want %q", result["parentId"], parentID)
	}
	for _, call := range fs.calls {
		if call == "InsertThread" || call == "SetThreadRootMessage" {
			t.Fatalf("reply ran %s", call)
		}
	}
}

func TestSendMessageMissingParent(t *testing.T) {
	parentID := "33333333-3333-4333-8333-333333333333"
	fs := &fakeStore{}
	svc := newTestService(fs)

	_, err := svc.SendMessage(context.Background(), testIdentity(), testChannelID, "orphan reply", &parentID)
	if err == nil || !strings.Contains(err.Error(), "Parent message not found") {
		t.Fatalf("err = %v, want parent not found", err)
	}
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 404 {
		t.Fatalf("expected 404 domain error, got %v", err)
	}
	for _, call := range fs.calls {
		if call == "InsertMessage" {
			t.Fatal("message inserted despite missing parent")
		}
	}
}

func TestSendMessageRootLinkFailureLeavesWrites(t *testing.T) {
	fs := &fakeStore{
		setThreadRootMessageFn: func(context.Context, string, string) error {
			return errors.New("update refused")
		},
	}
	svc := newTestService(fs)

	_, err := svc.SendMessage(context.Background(), testIdentity(), testChannelID, "hello", nil)
	if err == nil || !strings.Contains(err.Error(), "Failed to set root message on thread") {
		t.Fatalf("err = %v, want root link failure", err)
	}
	var sawThread, sawMessage bool
	for _, call := range fs.calls {
		if call == "InsertThread" {
			sawThread = true
		}
		if call == "InsertMessage" {
			sawMessage = true
		}
	}
	if !sawThread || !sawMessage {
		t.Fatalf("calls = %v, want thread and message inserts before the failure", fs.calls)
	}
}

func TestSendMessageContentBounds(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)

	if _, err := svc.SendMessage(context.Background(), testIdentity(), testChannelID, "", nil); err == nil {
		t.Fatal("empty content accepted")
	}
	if _, err := svc.SendMessage(context.Background(), testIdentity(), testChannelID, strings.Repeat("a", 50001), nil); err == nil {
		t.Fatal("oversize content accepted")
	}
	if len(fs.calls) != 0 {
		t.Fatalf("store touched during validation failures: %v", fs.calls)
	}
}

func TestGuardBlocksBeforeStore(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)

	_, err := svc.SendMessage(context.Background(), nil, testChannelID, "hello", nil)
	if err == nil || !strings.Contains(err.Error(), "Unauthorized") {
		t.Fatalf("err = %v, want Unauthorized", err)
	}
	if _, err := svc.ListWorkspaces(context.Background(), nil); err == nil {
		t.Fatal("ListWorkspaces allowed without identity")
	}
	if _, err := svc.CreateWorkspace(context.Background(), nil, "Acme", "acme"); err == nil {
		t.Fatal("CreateWorkspace allowed without identity")
	}
	if len(fs.calls) != 0 {
		t.Fatalf("store touched by unauthenticated calls: %v", fs.calls)
	}
}

func TestListMessagesPagination(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := []store.MessageWithAuthor{
		{Message: store.Message{ID: "m3", ThreadID: "t3", Content: "third", CreatedAt: base.Add(2 * time.Minute), UpdatedAt: base.Add(2 * time.Minute)}},
		{Message: store.Message{ID: "m2", ThreadID: "t2", Content: "second", CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute)}},
		{Message: store.Message{ID: "m1", ThreadID: "t1", Content: "first", CreatedAt: base, UpdatedAt: base}},
	}
	var requestedLimit int
	fs := &fakeStore{
		listRootMessagesFn: func(_ context.Context, _ string, _ *time.Time, limit int) ([]store.MessageWithAuthor, error) {
			requestedLimit = limit
			if limit > len(rows) {
				return rows, nil
			}
			return rows[:limit], nil
		},
	}
	svc := newTestService(fs)

	result, err := svc.ListMessages(context.Background(), testIdentity(), testChannelID, nil, 2)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if requestedLimit != 3 {
		t.Fatalf("store limit = %d, want limit+1 = 3", requestedLimit)
	}
	messages := result["messages"].([]map[string]any)
	if len(messages) != 2 {
		t.Fatalf("page size = %d, want 2", len(messages))
	}
	wantCursor := rows[1].Message.CreatedAt.UTC().Format(time.RFC3339Nano)
	if result["nextCursor"] != wantCursor {
		t.Fatalf("nextCursor = %v, want %q", result["nextCursor"], wantCursor)
	}
}

func TestListMessagesLastPage(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeStore{
		listRootMessagesFn: func(context.Context, string, *time.Time, int) ([]store.MessageWithAuthor, error) {
			return []store.MessageWithAuthor{
				{Message: store.Message{ID: "m1", ThreadID: "t1", Content: "only", CreatedAt: base, UpdatedAt: base}},
			}, nil
		},
	}
	svc := newTestService(fs)

	result, err := svc.ListMessages(context.Background(), testIdentity(), testChannelID, nil, 50)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if result["nextCursor"] != nil {
		t.Fatalf("nextCursor = %v, want nil on last page", result["nextCursor"])
	}
}

func TestListMessagesCursorParsing(t *testing.T) {
	var seenBefore *time.Time
	fs := &fakeStore{
		listRootMessagesFn: func(_ context.Context, _ string, before *time.Time, _ int) ([]store.MessageWithAuthor, error) {
			seenBefore = before
			return nil, nil
		},
	}
	svc := newTestService(fs)

	cursor := "2025-06-01T12:00:00.000000123Z"
	if _, err := svc.ListMessages(context.Background(), testIdentity(), testChannelID, &cursor, 10); err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if seenBefore == nil || !seenBefore.Equal(time.Date(2025, 6, 1, 12, 0, 0, 123, time.UTC)) {
		t.Fatalf("before = %v, want parsed cursor", seenBefore)
	}

	bad := "yesterday"
	_, err := svc.ListMessages(context.Background(), testIdentity(), testChannelID, &bad, 10)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("err = %v, want 422 for malformed cursor", err)
	}
}

func TestListMessagesLimitBounds(t *testing.T) {
	svc := newTestService(&fakeStore{})
	for _, limit := range []int{-1, 101} {
		if _, err := svc.ListMessages(context.Background(), testIdentity(), testChannelID, nil, limit); err == nil {
			t.Fatalf("limit %d accepted", limit)
		}
	}
}

func TestCreateWorkspaceOrderedWrites(t *testing.T) {
	var memberRole string
	fs := &fakeStore{
		insertWorkspaceMemberFn: func(_ context.Context, member store.WorkspaceMember) error {
			memberRole = member.Role
			return nil
		},
	}
	svc := newTestService(fs)

	result, err := svc.CreateWorkspace(context.Background(), testIdentity(), "Acme", "acme")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if result["name"] != "Acme" || result["slug"] != "acme" {
		t.Fatalf("payload = %v", result)
	}
	if memberRole != "admin" {
		t.Fatalf("creator role = %q, want admin", memberRole)
	}
	want := []string{"UpsertUser", "InsertWorkspace", "InsertWorkspaceMember", "SeedWorkspaceAgents"}
	if got := strings.Join(fs.calls, ","); got != strings.Join(want, ",") {
		t.Fatalf("call order = %s", got)
	}
}

func TestCreateWorkspaceStageErrors(t *testing.T) {
	cases := []struct {
		name    string
		prepare func(*fakeStore)
		want    string
	}{
		{
			name: "upsert user",
			prepare: func(fs *fakeStore) {
				fs.upsertUserFn = func(context.Context, string) error { return errors.New("down") }
			},
			want: "Failed to ensure user record",
		},
		{
			name: "insert workspace",
			prepare: func(fs *fakeStore) {
				fs.insertWorkspaceFn = func(context.Context, store.Workspace) (store.Workspace, error) {
					return store.Workspace{}, errors.New("down")
				}
			},
			want: "Failed to create workspace",
		},
		{
			name: "insert member",
			prepare: func(fs *fakeStore) {
				fs.insertWorkspaceMemberFn = func(context.Context, store.WorkspaceMember) error {
					return errors.New("down")
				}
			},
			want: "Failed to add workspace member",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := &fakeStore{}
			tc.prepare(fs)
			svc := newTestService(fs)
			_, err := svc.CreateWorkspace(context.Background(), testIdentity(), "Acme", "acme")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
			var domainErr *DomainError
			if !errors.As(err, &domainErr) || domainErr.Status != 500 || domainErr.Code != "SERVER_ERROR" {
				t.Fatalf("err = %v, want 500 SERVER_ERROR", err)
			}
		})
	}
}

func TestCreateWorkspaceSeedingFailureIsSwallowed(t *testing.T) {
	fs := &fakeStore{
		seedWorkspaceAgentsFn: func(context.Context, string) error {
			return fmt.Errorf("function seed_workspace_agents does not exist")
		},
	}
	svc := newTestService(fs)

	result, err := svc.CreateWorkspace(context.Background(), testIdentity(), "Acme", "acme")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if result["slug"] != "acme" {
		t.Fatalf("payload = %v", result)
	}
}

func TestGetWorkspaceByIDNotAMember(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.GetWorkspaceByID(context.Background(), testIdentity(), testChannelID)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 404 || !strings.Contains(domainErr.Message, "Workspace not found") {
		t.Fatalf("err = %v, want workspace not found", err)
	}
}

func TestChannelNameBounds(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)

	if _, err := svc.CreateChannel(context.Background(), testIdentity(), testChannelID, strings.Repeat("n", 81), nil); err == nil {
		t.Fatal("81 char channel name accepted")
	}
	if _, err := svc.CreateChannel(context.Background(), testIdentity(), testChannelID, strings.Repeat("n", 80), nil); err != nil {
		t.Fatalf("80 char channel name rejected: %v", err)
	}
}

func TestRepairThreadRoots(t *testing.T) {
	fs := &fakeStore{
		repairThreadRootsFn: func(context.Context) (int, error) { return 4, nil },
	}
	svc := newTestService(fs)

	result, err := svc.RepairThreadRoots(context.Background(), testIdentity())
	if err != nil {
		t.Fatalf("RepairThreadRoots: %v", err)
	}
	if result["repaired"] != 4 {
		t.Fatalf("repaired = %v, want 4", result["repaired"])
	}
	if _, err := svc.RepairThreadRoots(context.Background(), nil); err == nil {
		t.Fatal("repair allowed without identity")
	}
}

func TestLoginRefreshLogoutCycle(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)

	sess, err := svc.Login(context.Background(), "  Avery  ")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.UserName != "Avery" {
		t.Fatalf("user name = %q, want trimmed Avery", sess.UserName)
	}
	ident, err := svc.IdentityFromToken(sess.Token)
	if err != nil {
		t.Fatalf("IdentityFromToken: %v", err)
	}
	if ident.UserID != sess.UserID {
		t.Fatalf("identity = %v, want user %q", ident, sess.UserID)
	}

	next, err := svc.Refresh(context.Background(), sess.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == sess.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if _, err := svc.Refresh(context.Background(), sess.RefreshToken); err == nil {
		t.Fatal("old refresh token still valid after rotation")
	}

	if err := svc.Logout(context.Background(), next.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), next.RefreshToken); err == nil {
		t.Fatal("refresh token still valid after logout")
	}
}

func TestStubsValidateAndGuard(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)
	ident := testIdentity()
	messageID := "44444444-4444-4444-8444-444444444444"

	replies, err := svc.ThreadReplies(context.Background(), ident, messageID, nil)
	if err != nil {
		t.Fatalf("ThreadReplies: %v", err)
	}
	if got := replies["replies"].([]any); len(got) != 0 {
		t.Fatalf("replies = %v, want empty", got)
	}
	if replies["nextCursor"] != nil {
		t.Fatalf("nextCursor = %v, want nil", replies["nextCursor"])
	}

	if _, err := svc.ThreadReplies(context.Background(), nil, messageID, nil); err == nil {
		t.Fatal("ThreadReplies allowed without identity")
	}
	if _, err := svc.CreateDive(context.Background(), ident, messageID, ""); err == nil {
		t.Fatal("CreateDive accepted empty title")
	}
	if _, err := svc.SearchQuery(context.Background(), ident, "", testChannelID, 0); err == nil {
		t.Fatal("SearchQuery accepted empty query")
	}
	results, err := svc.SearchQuery(context.Background(), ident, "deploy", testChannelID, 0)
	if err != nil {
		t.Fatalf("SearchQuery: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %v, want empty", results)
	}
	if len(fs.calls) != 0 {
		t.Fatalf("stubs touched the store: %v", fs.calls)
	}
}
