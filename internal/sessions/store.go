// Package sessions persists conversation threads and their message
// history for the agent runtime.
package sessions

import (
	"context"
	"errors"

	"github.com/haasonsaas/nexus/pkg/models"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Store persists sessions and their message history.
type Store interface {
	// Session CRUD
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error

	// Session lookup
	GetByKey(ctx context.Context, key string) (*models.Session, error)
	GetOrCreate(ctx context.Context, key string, agentID string, channel models.ChannelType, channelID string) (*models.Session, error)
	List(ctx context.Context, agentID string, opts ListOptions) ([]*models.Session, error)

	// Message history
	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
}

// ListOptions configures session listing.
type ListOptions struct {
	Channel models.ChannelType
	Limit   int
	Offset  int
}

// SessionKey builds a unique session key.
func SessionKey(agentID string, channel models.ChannelType, channelID string) string {
	return agentID + ":" + string(channel) + ":" + channelID
}

// DefaultMaxHistory is the per-session turn budget. When a session's
// history grows past it, the oldest non-system messages are evicted
// first; system messages survive eviction.
const DefaultMaxHistory = 200

// evictOverBudget trims msgs to at most max entries, dropping the oldest
// non-system messages first. It never drops system messages, and returns
// the input unchanged when already under budget.
func evictOverBudget(msgs []*models.Message, max int) []*models.Message {
	if max <= 0 || len(msgs) <= max {
		return msgs
	}
	excess := len(msgs) - max
	out := make([]*models.Message, 0, max)
	for _, m := range msgs {
		if excess > 0 && m.Role != models.RoleSystem {
			excess--
			continue
		}
		out = append(out, m)
	}
	return out
}
