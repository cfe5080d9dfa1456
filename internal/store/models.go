package store

import "time"

type User struct {
	ID        string
	Name      string
	Email     string
	AvatarURL *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Workspace struct {
	ID        string
	Name      string
	Slug      string
	OwnerID   string
	Settings  []byte // raw JSONB, may be nil
	CreatedAt time.Time
}

type WorkspaceMember struct {
	WorkspaceID string
	UserID      string
	Role        string
	JoinedAt    time.Time
}

type Channel struct {
	ID          string
	WorkspaceID string
	Name        string
	Description *string
	IsPrivate   bool
	CreatedBy   string
	CreatedAt   time.Time
}

type Thread struct {
	ID            string
	ChannelID     string
	RootMessageID *string
	Status        string
	Title         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Message struct {
	ID         string
	ThreadID   string
	DiveID     *string
	ParentID   *string
	AuthorID   string
	AuthorType string
	Content    string
	Metadata   []byte // raw JSONB, may be nil
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MessageAuthor is the user record joined onto a message at read time.
// It is nil when the author has no matching user row, e.g. an agent.
type MessageAuthor struct {
	ID        string
	Name      string
	AvatarURL *string
}

type MessageWithAuthor struct {
	Message
	Author *MessageAuthor
}
