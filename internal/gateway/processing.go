package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/reply"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/pkg/models"
)

const (
	// maxInputSize caps inbound message content.
	maxInputSize = 256 * 1024

	// maxProcessingTime bounds one turn end to end.
	maxProcessingTime = 10 * time.Minute

	// maxConcurrentHandlers caps concurrently processed messages.
	maxConcurrentHandlers = 100
)

// MetaChatID is the metadata key carrying the platform chat/peer ID.
const MetaChatID = "chat_id"

func (s *Server) startProcessing(ctx context.Context) {
	processCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.processMessages(processCtx)
}

// processMessages drains the aggregated inbound stream, handling each
// message on its own goroutine behind a concurrency cap.
func (s *Server) processMessages(ctx context.Context) {
	defer s.wg.Done()
	messages := s.channels.AggregateMessages(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			select {
			case s.messageSem <- struct{}{}:
				s.wg.Add(1)
				go func(message *models.Message) {
					defer func() {
						<-s.messageSem
						s.wg.Done()
					}()
					s.handleMessage(ctx, message)
				}(msg)
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleMessage runs one inbound message through the conversation loop
// and delivers the reply on the originating channel.
func (s *Server) handleMessage(ctx context.Context, msg *models.Message) {
	if s.handleMessageHook != nil {
		s.handleMessageHook(ctx, msg)
		return
	}

	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	if len(msg.Content) > maxInputSize {
		s.logger.Warn("input message too large, truncating",
			"channel", msg.Channel,
			"original_size", len(msg.Content))
		msg.Content = truncateUTF8(msg.Content, maxInputSize)
	}

	if s.cronScheduler != nil {
		s.cronScheduler.OnInbound(string(msg.Channel), msg.Content)
	}

	runtime, err := s.ensureRuntime(ctx)
	if err != nil {
		s.logger.Error("runtime initialization failed", "error", err)
		return
	}

	chatID := resolveChatID(msg)
	if chatID == "" {
		s.logger.Error("message has no chat id", "channel", msg.Channel)
		return
	}

	agentID := s.config.Session.DefaultAgentID
	key := sessions.SessionKey(agentID, msg.Channel, chatID)
	session, err := s.sessions.GetOrCreate(ctx, key, agentID, msg.Channel, chatID)
	if err != nil {
		s.logger.Error("failed to resolve session", "error", err)
		return
	}
	msg.SessionID = session.ID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	// Apply the session's exfiltration deny list before tools are
	// enumerated for this turn.
	runtime.SetExfiltrationDenyList(session.ID, sessionHiddenTools(session))

	runCtx, cancel := context.WithTimeout(ctx, maxProcessingTime)
	defer cancel()

	chunks, err := runtime.Process(runCtx, session, msg)
	if err != nil {
		s.logger.Error("runtime processing failed", "error", err)
		return
	}

	var response strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			s.logger.Error("runtime stream error", "error", chunk.Error)
			return
		}
		response.WriteString(chunk.Text)
	}

	text := strings.TrimSpace(response.String())
	if text == "" || reply.IsSilentReplyText(text) {
		return
	}

	adapter, ok := s.channels.GetOutbound(msg.Channel)
	if !ok {
		s.logger.Error("no adapter registered for channel", "channel", msg.Channel)
		return
	}
	outbound := &models.Message{
		SessionID: session.ID,
		Channel:   msg.Channel,
		ChannelID: chatID,
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   text,
		Metadata:  map[string]any{MetaChatID: chatID},
		CreatedAt: time.Now(),
	}
	if err := adapter.Send(ctx, outbound); err != nil {
		s.logger.Error("failed to send outbound message", "error", err)
	}
}

// resolveChatID extracts the conversation peer ID from a message:
// explicit chat_id metadata first, the platform channel ID otherwise.
func resolveChatID(msg *models.Message) string {
	if msg.Metadata != nil {
		if id, ok := msg.Metadata[MetaChatID].(string); ok && id != "" {
			return id
		}
	}
	return msg.ChannelID
}

// sessionHiddenTools reads the session's exfiltration deny list from
// metadata: tool names hidden from the model while the session is in a
// restricted security mode. Empty when unset.
func sessionHiddenTools(session *models.Session) []string {
	if session == nil || session.Metadata == nil {
		return nil
	}
	switch raw := session.Metadata["hidden_tools"].(type) {
	case []string:
		return raw
	case []any:
		names := make([]string, 0, len(raw))
		for _, v := range raw {
			if name, ok := v.(string); ok && name != "" {
				names = append(names, name)
			}
		}
		return names
	default:
		return nil
	}
}

// truncateUTF8 trims s to at most max bytes at a rune boundary.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && s[max]&0xC0 == 0x80 {
		max--
	}
	return s[:max]
}
