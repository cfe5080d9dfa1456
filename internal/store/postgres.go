package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) EnsureUserByName(ctx context.Context, name string) (User, error) {
	const findUser = `SELECT id, name, email, avatar_url FROM users WHERE name = $1`
	var user User
	err := s.db.QueryRowContext(ctx, findUser, name).Scan(&user.ID, &user.Name, &user.Email, &user.AvatarURL)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	const insertUser = `
		INSERT INTO users (id, name, email)
		VALUES (gen_random_uuid(), $1, CONCAT(LOWER(REPLACE($1, ' ', '.')), '@local.vibe.dev'))
		RETURNING id, name, email, avatar_url
	`
	if err := s.db.QueryRowContext(ctx, insertUser, name).Scan(&user.ID, &user.Name, &user.Email, &user.AvatarURL); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email, avatar_url FROM users WHERE id=$1`, userID).
		Scan(&user.ID, &user.Name, &user.Email, &user.AvatarURL)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UpsertUser makes sure a user row exists for id without touching an
// existing row. Mirrors the auth-side user record.
func (s *PostgresStore) UpsertUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email)
		VALUES ($1, '')
		ON CONFLICT (id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListWorkspacesForMember(ctx context.Context, userID string) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.slug, w.owner_id, w.settings, w.created_at
		FROM workspaces w
		JOIN workspace_members wm ON wm.workspace_id = w.id
		WHERE wm.user_id = $1
		ORDER BY w.created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	items := make([]Workspace, 0)
	for rows.Next() {
		var item Workspace
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug, &item.OwnerID, &item.Settings, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetWorkspaceForMember(ctx context.Context, workspaceID, userID string) (Workspace, error) {
	var item Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT w.id, w.name, w.slug, w.owner_id, w.settings, w.created_at
		FROM workspaces w
		JOIN workspace_members wm ON wm.workspace_id = w.id
		WHERE w.id = $1 AND wm.user_id = $2
	`, workspaceID, userID).Scan(&item.ID, &item.Name, &item.Slug, &item.OwnerID, &item.Settings, &item.CreatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertWorkspace(ctx context.Context, item Workspace) (Workspace, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO workspaces (id, name, slug, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, slug, owner_id, settings, created_at
	`, item.ID, item.Name, item.Slug, item.OwnerID).
		Scan(&item.ID, &item.Name, &item.Slug, &item.OwnerID, &item.Settings, &item.CreatedAt)
	if err != nil {
		return Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertWorkspaceMember(ctx context.Context, member WorkspaceMember) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, $3)
	`, member.WorkspaceID, member.UserID, member.Role)
	if err != nil {
		return fmt.Errorf("insert workspace member: %w", err)
	}
	return nil
}

// SeedWorkspaceAgents invokes the seed_workspace_agents database function,
// which creates the default agent participants for a new workspace.
func (s *PostgresStore) SeedWorkspaceAgents(ctx context.Context, workspaceID string) error {
	if _, err := s.db.ExecContext(ctx, `SELECT seed_workspace_agents($1)`, workspaceID); err != nil {
		return fmt.Errorf("seed workspace agents: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListChannels(ctx context.Context, workspaceID string) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, name, description, is_private, created_by, created_at
		FROM channels
		WHERE workspace_id = $1
		ORDER BY name ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	items := make([]Channel, 0)
	for rows.Next() {
		var item Channel
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.Name, &item.Description, &item.IsPrivate, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return items, nil
}

// GetChannelBySlug resolves a channel by its URL slug, which is the
// channel name.
func (s *PostgresStore) GetChannelBySlug(ctx context.Context, workspaceID, slug string) (Channel, error) {
	var item Channel
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, description, is_private, created_by, created_at
		FROM channels
		WHERE workspace_id = $1 AND name = $2
	`, workspaceID, slug).Scan(&item.ID, &item.WorkspaceID, &item.Name, &item.Description, &item.IsPrivate, &item.CreatedBy, &item.CreatedAt)
	if err != nil {
		return Channel{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertChannel(ctx context.Context, item Channel) (Channel, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO channels (id, workspace_id, name, description, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, workspace_id, name, description, is_private, created_by, created_at
	`, item.ID, item.WorkspaceID, item.Name, item.Description, item.CreatedBy).
		Scan(&item.ID, &item.WorkspaceID, &item.Name, &item.Description, &item.IsPrivate, &item.CreatedBy, &item.CreatedAt)
	if err != nil {
		return Channel{}, fmt.Errorf("insert channel: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetMessageThreadID(ctx context.Context, messageID string) (string, error) {
	var threadID string
	err := s.db.QueryRowContext(ctx, `SELECT thread_id FROM messages WHERE id=$1`, messageID).Scan(&threadID)
	if err != nil {
		return "", err
	}
	return threadID, nil
}

func (s *PostgresStore) InsertThread(ctx context.Context, item Thread) (Thread, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO threads (id, channel_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, channel_id, root_message_id, status, title, created_at, updated_at
	`, item.ID, item.ChannelID, item.Status).
		Scan(&item.ID, &item.ChannelID, &item.RootMessageID, &item.Status, &item.Title, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Thread{}, fmt.Errorf("insert thread: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, item Message) (Message, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, thread_id, parent_id, author_id, author_type, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, thread_id, dive_id, parent_id, author_id, author_type, content, metadata, created_at, updated_at
	`, item.ID, item.ThreadID, item.ParentID, item.AuthorID, item.AuthorType, item.Content).
		Scan(&item.ID, &item.ThreadID, &item.DiveID, &item.ParentID, &item.AuthorID, &item.AuthorType, &item.Content, &item.Metadata, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) SetThreadRootMessage(ctx context.Context, threadID, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE threads SET root_message_id=$2, updated_at=NOW() WHERE id=$1
	`, threadID, messageID)
	if err != nil {
		return fmt.Errorf("set thread root message: %w", err)
	}
	return nil
}

// ListRootMessages returns top-level messages for a channel in reverse
// chronological order with their author joined, at most limit rows. When
// before is set only rows created strictly earlier are returned.
func (s *PostgresStore) ListRootMessages(ctx context.Context, channelID string, before *time.Time, limit int) ([]MessageWithAuthor, error) {
	const query = `
		SELECT m.id, m.thread_id, m.dive_id, m.parent_id,
			m.author_id, m.author_type, m.content, m.metadata,
			m.created_at, m.updated_at,
			u.id, u.name, u.avatar_url
		FROM messages m
		JOIN threads t ON t.id = m.thread_id
		LEFT JOIN users u ON u.id = m.author_id
		WHERE t.channel_id = $1
			AND m.parent_id IS NULL
			AND ($2::timestamptz IS NULL OR m.created_at < $2)
		ORDER BY m.created_at DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, channelID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]MessageWithAuthor, 0)
	for rows.Next() {
		var item MessageWithAuthor
		var authorID, authorName *string
		var authorAvatar *string
		if err := rows.Scan(
			&item.ID, &item.ThreadID, &item.DiveID, &item.ParentID,
			&item.AuthorID, &item.AuthorType, &item.Content, &item.Metadata,
			&item.CreatedAt, &item.UpdatedAt,
			&authorID, &authorName, &authorAvatar,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if authorID != nil {
			name := ""
			if authorName != nil {
				name = *authorName
			}
			item.Author = &MessageAuthor{ID: *authorID, Name: name, AvatarURL: authorAvatar}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

// RepairThreadRoots backfills root_message_id for threads left without a
// root by a partial message.send failure. Returns the number of threads
// repaired.
func (s *PostgresStore) RepairThreadRoots(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE threads t
		SET root_message_id = candidates.message_id, updated_at = NOW()
		FROM (
			SELECT DISTINCT ON (m.thread_id) m.thread_id, m.id AS message_id
			FROM messages m
			WHERE m.parent_id IS NULL
			ORDER BY m.thread_id, m.created_at ASC
		) candidates
		WHERE candidates.thread_id = t.id AND t.root_message_id IS NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("repair thread roots: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repair thread roots affected: %w", err)
	}
	return int(affected), nil
}
