// Package validate holds the declarative input contracts checked before
// any store access. Each procedure owns an ordered list of field rules;
// the first violated rule fails the call.
package validate

import (
	"fmt"

	"vibe/api/internal/util"
)

// FieldError reports the first violated constraint for an input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Rule is a single field constraint: length bounds on a string value
// and/or the UUID id format.
type Rule struct {
	Field    string
	Min      int
	Max      int
	ID       bool
	Optional bool
}

// Check applies the rule to value. A nil value is only acceptable for
// optional fields.
func (r Rule) Check(value *string) error {
	if value == nil {
		if r.Optional {
			return nil
		}
		return &FieldError{Field: r.Field, Reason: "is required"}
	}
	if r.ID {
		if !util.IsID(*value) {
			return &FieldError{Field: r.Field, Reason: "must be a valid id"}
		}
		return nil
	}
	length := len([]rune(*value))
	if length < r.Min {
		if r.Min == 1 {
			return &FieldError{Field: r.Field, Reason: "must not be empty"}
		}
		return &FieldError{Field: r.Field, Reason: fmt.Sprintf("must be at least %d characters", r.Min)}
	}
	if r.Max > 0 && length > r.Max {
		return &FieldError{Field: r.Field, Reason: fmt.Sprintf("must be at most %d characters", r.Max)}
	}
	return nil
}

// Fields evaluates rules in order against their values and returns the
// first violation. rules and values are parallel slices.
func Fields(rules []Rule, values []*string) error {
	for i, rule := range rules {
		if err := rule.Check(values[i]); err != nil {
			return err
		}
	}
	return nil
}

func required(v string) *string { return &v }

// Router-level contracts.

func SendMessage(channelID, content string, parentID *string) error {
	return Fields(
		[]Rule{
			{Field: "channelId", ID: true},
			{Field: "content", Min: 1, Max: 50000},
			{Field: "parentId", ID: true, Optional: true},
		},
		[]*string{required(channelID), required(content), parentID},
	)
}

func ListMessages(channelID string) error {
	return Rule{Field: "channelId", ID: true}.Check(required(channelID))
}

// CreateChannel is the router contract for channel creation. Note the
// 80-character name cap; NewChannel below carries the shared 100-character
// contract and both are intentionally kept.
func CreateChannel(workspaceID, name string, description *string) error {
	return Fields(
		[]Rule{
			{Field: "workspaceId", ID: true},
			{Field: "name", Min: 1, Max: 80},
			{Field: "description", Max: 500, Optional: true},
		},
		[]*string{required(workspaceID), required(name), description},
	)
}

func CreateWorkspace(name, slug string) error {
	return Fields(
		[]Rule{
			{Field: "name", Min: 1, Max: 100},
			{Field: "slug", Min: 1, Max: 100},
		},
		[]*string{required(name), required(slug)},
	)
}

func GetReplies(messageID string) error {
	return Rule{Field: "messageId", ID: true}.Check(required(messageID))
}

func CreateDive(sourceMessageID, title string) error {
	return Fields(
		[]Rule{
			{Field: "sourceMessageId", ID: true},
			{Field: "title", Min: 1, Max: 200},
		},
		[]*string{required(sourceMessageID), required(title)},
	)
}

func ListDives(channelID string) error {
	return Rule{Field: "channelId", ID: true}.Check(required(channelID))
}

func PublishDive(diveID string) error {
	return Rule{Field: "diveId", ID: true}.Check(required(diveID))
}

func InvokeAgent(agentID, messageID, channelID string) error {
	return Fields(
		[]Rule{
			{Field: "agentId", ID: true},
			{Field: "messageId", ID: true},
			{Field: "channelId", ID: true},
		},
		[]*string{required(agentID), required(messageID), required(channelID)},
	)
}

func SearchQuery(q, workspaceID string) error {
	return Fields(
		[]Rule{
			{Field: "q", Min: 1},
			{Field: "workspaceId", ID: true},
		},
		[]*string{required(q), required(workspaceID)},
	)
}

// Shared contracts, exported for callers outside the RPC surface.

func NewMessage(threadID string, diveID *string, content string) error {
	return Fields(
		[]Rule{
			{Field: "threadId", ID: true},
			{Field: "diveId", ID: true, Optional: true},
			{Field: "content", Min: 1, Max: 50000},
		},
		[]*string{required(threadID), diveID, required(content)},
	)
}

func NewChannel(workspaceID, name string, description *string) error {
	return Fields(
		[]Rule{
			{Field: "workspaceId", ID: true},
			{Field: "name", Min: 1, Max: 100},
			{Field: "description", Max: 500, Optional: true},
		},
		[]*string{required(workspaceID), required(name), description},
	)
}

func NewDive(threadID, parentMessageID string, topic *string) error {
	return Fields(
		[]Rule{
			{Field: "threadId", ID: true},
			{Field: "parentMessageId", ID: true},
			{Field: "topic", Max: 200, Optional: true},
		},
		[]*string{required(threadID), required(parentMessageID), topic},
	)
}
