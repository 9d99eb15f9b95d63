package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/pkg/models"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*models.Session
	byKey      map[string]string
	messages   map[string][]*models.Message
	maxHistory int
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*models.Session),
		byKey:      make(map[string]string),
		messages:   make(map[string][]*models.Message),
		maxHistory: DefaultMaxHistory,
	}
}

// SetMaxHistory overrides the per-session turn budget.
func (s *MemoryStore) SetMaxHistory(max int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxHistory = max
}

func (s *MemoryStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	copied := *session
	s.sessions[session.ID] = &copied
	if session.Key != "" {
		s.byKey[session.Key] = session.ID
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *MemoryStore) Update(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	session.UpdatedAt = time.Now()
	copied := *session
	s.sessions[session.ID] = &copied
	if session.Key != "" {
		s.byKey[session.Key] = session.ID
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok && session.Key != "" {
		delete(s.byKey, session.Key)
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) GetByKey(ctx context.Context, key string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	session := s.sessions[id]
	if session == nil {
		return nil, ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, key string, agentID string, channel models.ChannelType, channelID string) (*models.Session, error) {
	if existing, err := s.GetByKey(ctx, key); err == nil {
		return existing, nil
	}
	session := &models.Session{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Channel:   channel,
		ChannelID: channelID,
		Key:       key,
	}
	if err := s.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *MemoryStore) List(ctx context.Context, agentID string, opts ListOptions) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, session := range s.sessions {
		if agentID != "" && session.AgentID != agentID {
			continue
		}
		if opts.Channel != "" && session.Channel != opts.Channel {
			continue
		}
		copied := *session
		out = append(out, &copied)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *msg
	msgs := append(s.messages[sessionID], &copied)
	s.messages[sessionID] = evictOverBudget(msgs, s.maxHistory)
	return nil
}

func (s *MemoryStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*models.Message, len(msgs))
	for i, m := range msgs {
		copied := *m
		out[i] = &copied
	}
	return out, nil
}
