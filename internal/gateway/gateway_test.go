package gateway

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/channels"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/pkg/models"
)

// recordingAdapter captures outbound messages for assertions.
type recordingAdapter struct {
	mu       sync.Mutex
	messages []*models.Message
	inbound  chan *models.Message
}

func newRecordingAdapter() *recordingAdapter {
	return &recordingAdapter{inbound: make(chan *models.Message, 4)}
}

func (a *recordingAdapter) Type() models.ChannelType { return models.ChannelTelegram }

func (a *recordingAdapter) Start(ctx context.Context) error { return nil }

func (a *recordingAdapter) Stop(ctx context.Context) error { return nil }

func (a *recordingAdapter) Send(ctx context.Context, msg *models.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, msg)
	return nil
}

func (a *recordingAdapter) Messages() <-chan *models.Message { return a.inbound }

func (a *recordingAdapter) sent() []*models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*models.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// scriptedProvider plays back canned completions.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (p *scriptedProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.mu.Unlock()

	text := "done"
	if idx < len(p.responses) {
		text = p.responses[idx]
	}
	ch := make(chan *agent.CompletionChunk, 2)
	ch <- &agent.CompletionChunk{Text: text}
	ch <- &agent.CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Name() string          { return "scripted" }
func (p *scriptedProvider) Models() []agent.Model { return nil }
func (p *scriptedProvider) SupportsTools() bool   { return true }

func newTestServer(t *testing.T, provider agent.LLMProvider) (*Server, *recordingAdapter) {
	t.Helper()
	cfg := config.Default()
	server, err := NewServer(cfg, provider, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	adapter := newRecordingAdapter()
	server.Channels().Register(adapter)
	return server, adapter
}

func TestHandleMessageRepliesOnChannel(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"Hello from the agent!"}}
	server, adapter := newTestServer(t, provider)

	msg := &models.Message{
		Channel:   models.ChannelTelegram,
		ChannelID: "42",
		Direction: models.DirectionInbound,
		Role:      models.RoleUser,
		Content:   "Hi",
	}
	server.handleMessage(context.Background(), msg)

	sent := adapter.sent()
	if len(sent) != 1 {
		t.Fatalf("got %d outbound messages, want 1", len(sent))
	}
	if sent[0].Content != "Hello from the agent!" {
		t.Errorf("reply = %q", sent[0].Content)
	}
	if sent[0].ChannelID != "42" || sent[0].Role != models.RoleAssistant {
		t.Errorf("reply misrouted: %+v", sent[0])
	}

	// History was persisted under the resolved session.
	session, err := server.Sessions().GetByKey(context.Background(),
		sessions.SessionKey("main", models.ChannelTelegram, "42"))
	if err != nil {
		t.Fatalf("session not created: %v", err)
	}
	history, err := server.Sessions().GetHistory(context.Background(), session.ID, 10)
	if err != nil || len(history) < 2 {
		t.Errorf("history = %d messages, %v", len(history), err)
	}
}

func TestHandleMessageSuppressesSilentReply(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"NO_REPLY"}}
	server, adapter := newTestServer(t, provider)

	server.handleMessage(context.Background(), &models.Message{
		Channel:   models.ChannelTelegram,
		ChannelID: "42",
		Role:      models.RoleUser,
		Content:   "anything new?",
	})

	if len(adapter.sent()) != 0 {
		t.Fatal("silent reply must not be delivered")
	}
}

func TestHandleMessageDropsWithoutChatID(t *testing.T) {
	provider := &scriptedProvider{}
	server, adapter := newTestServer(t, provider)

	server.handleMessage(context.Background(), &models.Message{
		Channel: models.ChannelTelegram,
		Role:    models.RoleUser,
		Content: "hi",
	})

	if provider.calls != 0 {
		t.Error("provider must not be called without a resolvable chat id")
	}
	if len(adapter.sent()) != 0 {
		t.Error("nothing should be delivered")
	}
}

func TestResolveChatIDPrefersMetadata(t *testing.T) {
	msg := &models.Message{
		ChannelID: "fallback",
		Metadata:  map[string]any{MetaChatID: "primary"},
	}
	if got := resolveChatID(msg); got != "primary" {
		t.Errorf("got %q, want primary", got)
	}
	msg.Metadata = nil
	if got := resolveChatID(msg); got != "fallback" {
		t.Errorf("got %q, want fallback", got)
	}
}

func TestSessionHiddenTools(t *testing.T) {
	if got := sessionHiddenTools(nil); got != nil {
		t.Errorf("nil session = %v, want nil", got)
	}
	if got := sessionHiddenTools(&models.Session{}); got != nil {
		t.Errorf("no metadata = %v, want nil", got)
	}

	session := &models.Session{Metadata: map[string]any{"hidden_tools": []string{"exec", "web_fetch"}}}
	got := sessionHiddenTools(session)
	if len(got) != 2 || got[0] != "exec" || got[1] != "web_fetch" {
		t.Errorf("got %v", got)
	}

	// As decoded from persisted JSON metadata.
	session = &models.Session{Metadata: map[string]any{"hidden_tools": []any{"exec", "", 42, "web_fetch"}}}
	got = sessionHiddenTools(session)
	if len(got) != 2 || got[0] != "exec" || got[1] != "web_fetch" {
		t.Errorf("decoded form got %v", got)
	}
}

func TestTruncateUTF8AtRuneBoundary(t *testing.T) {
	s := "héllo wörld"
	for max := 0; max <= len(s); max++ {
		got := truncateUTF8(s, max)
		if len(got) > max {
			t.Fatalf("truncateUTF8(%d) returned %d bytes", max, len(got))
		}
		for _, r := range got {
			if r == '�' {
				t.Fatalf("truncateUTF8(%d) split a rune", max)
			}
		}
	}
}

var (
	_ channels.OutboundAdapter = (*recordingAdapter)(nil)
	_ channels.InboundAdapter  = (*recordingAdapter)(nil)
)
