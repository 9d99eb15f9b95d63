package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/cron"
	"github.com/haasonsaas/nexus/internal/reply"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/pkg/models"
)

// cronAgentRunner feeds fired agent cron jobs back into the runtime as
// synthetic user turns. The scheduler invokes Run on its own worker (or
// a detached goroutine for manual triggers), so taking the session's
// processing lock here cannot deadlock with the turn that created the
// job.
type cronAgentRunner struct {
	server *Server
}

func (r *cronAgentRunner) Run(ctx context.Context, job *cron.Job) error {
	s := r.server
	if s == nil || job == nil || job.Message == nil {
		return errors.New("cron agent runner not configured")
	}
	content := strings.TrimSpace(job.Message.Content)
	if content == "" {
		return errors.New("agent payload missing content")
	}

	targets := job.Targets
	if len(targets) == 0 {
		// Config-registered agent jobs carry channel/channel_id on the
		// payload instead of a targets list.
		if job.Message.Channel == "" || job.Message.ChannelID == "" {
			return errors.New("agent job has no delivery target")
		}
		targets = []cron.Target{{Channel: job.Message.Channel, To: job.Message.ChannelID}}
	}

	runtime, err := s.ensureRuntime(ctx)
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}

	agentID := s.config.Session.DefaultAgentID

	var errs []error
	for _, target := range targets {
		if err := r.runTarget(ctx, runtime, agentID, job, target, content); err != nil {
			errs = append(errs, fmt.Errorf("target %s/%s: %w", target.Channel, target.To, err))
		}
	}
	return errors.Join(errs...)
}

func (r *cronAgentRunner) runTarget(ctx context.Context, runtime agentProcessor, agentID string, job *cron.Job, target cron.Target, content string) error {
	s := r.server
	channelType := models.ChannelType(strings.ToLower(strings.TrimSpace(target.Channel)))
	to := strings.TrimSpace(target.To)
	if channelType == "" || to == "" {
		return errors.New("target missing channel or recipient")
	}

	key := sessions.SessionKey(agentID, channelType, to)
	session, err := s.sessions.GetOrCreate(ctx, key, agentID, channelType, to)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}

	metadata := map[string]any{
		"cron_job_id":   job.ID,
		"cron_job_name": job.Name,
		MetaChatID:      to,
	}
	for k, v := range job.OriginMetadata {
		metadata[k] = v
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Channel:   channelType,
		Direction: models.DirectionInbound,
		Role:      models.RoleUser,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}

	runCtx, cancel := context.WithTimeout(ctx, maxProcessingTime)
	defer cancel()

	chunks, err := runtime.Process(runCtx, session, msg)
	if err != nil {
		return fmt.Errorf("process turn: %w", err)
	}

	var response strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return fmt.Errorf("agent turn: %w", chunk.Error)
		}
		if chunk.Text != "" {
			response.WriteString(chunk.Text)
		}
	}

	text := strings.TrimSpace(response.String())
	if text == "" || reply.IsSilentReplyText(text) {
		return nil
	}
	return r.deliver(ctx, session.ID, channelType, to, text)
}

func (r *cronAgentRunner) deliver(ctx context.Context, sessionID string, channelType models.ChannelType, to, content string) error {
	adapter, ok := r.server.channels.GetOutbound(channelType)
	if !ok {
		return fmt.Errorf("no outbound adapter for channel %q", channelType)
	}
	out := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Channel:   channelType,
		ChannelID: to,
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   content,
		Metadata:  map[string]any{MetaChatID: to},
		CreatedAt: time.Now(),
	}
	return adapter.Send(ctx, out)
}

// agentProcessor is the slice of *agent.Runtime the cron runner needs;
// tests substitute a stub.
type agentProcessor interface {
	Process(ctx context.Context, session *models.Session, msg *models.Message) (<-chan *agent.ResponseChunk, error)
}

// cronMessageSender delivers "echo" cron payloads straight through the
// target channel's outbound adapter, with no agent turn in between.
type cronMessageSender struct {
	server *Server
}

func (c *cronMessageSender) Send(ctx context.Context, message *config.CronMessageConfig) error {
	if c.server == nil || message == nil {
		return errors.New("cron message sender not configured")
	}
	channelType := models.ChannelType(strings.ToLower(strings.TrimSpace(message.Channel)))
	to := strings.TrimSpace(message.ChannelID)
	if channelType == "" || to == "" {
		return errors.New("message payload missing channel")
	}
	adapter, ok := c.server.channels.GetOutbound(channelType)
	if !ok {
		return fmt.Errorf("no outbound adapter for channel %q", channelType)
	}
	out := &models.Message{
		ID:        uuid.NewString(),
		Channel:   channelType,
		ChannelID: to,
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   message.Content,
		Metadata:  map[string]any{MetaChatID: to},
		CreatedAt: time.Now(),
	}
	return adapter.Send(ctx, out)
}
