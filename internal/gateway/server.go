// Package gateway wires the agent kernel together: it owns the channel
// registry, session store, runtime, scheduler, memory index, and
// workspace manager, and drives inbound messages through the
// conversation loop.
package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/channels"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/cron"
	"github.com/haasonsaas/nexus/internal/memory/fts"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/internal/workspace"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Server composes the kernel's long-lived components. All of them are
// injected or constructed here, never global, so tests can build fresh
// instances per case.
type Server struct {
	config   *config.Config
	logger   *slog.Logger
	provider agent.LLMProvider
	channels *channels.Registry
	sessions sessions.Store

	runtimeMu sync.Mutex
	runtime   *agent.Runtime

	cronScheduler    *cron.Scheduler
	memoryStore      *fts.Store
	workspaceManager *workspace.Manager
	workspaceDB      *sql.DB
	sessionCloser    func() error

	cancel     context.CancelFunc
	wg         sync.WaitGroup
	messageSem chan struct{}

	// handleMessageHook, when set, replaces handleMessage (tests).
	handleMessageHook func(context.Context, *models.Message)
}

// NewServer builds a server from config with the given provider. The
// provider is the one external collaborator the kernel does not
// construct itself.
func NewServer(cfg *config.Config, provider agent.LLMProvider, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		config:     cfg,
		logger:     logger,
		provider:   provider,
		channels:   channels.NewRegistry(),
		messageSem: make(chan struct{}, maxConcurrentHandlers),
	}

	if cfg.Session.StorePath != "" {
		store, err := sessions.OpenSQLite(cfg.Session.StorePath)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		store.SetMaxHistory(cfg.Session.MaxHistory)
		server.sessions = store
		server.sessionCloser = store.Close
	} else {
		store := sessions.NewMemoryStore()
		store.SetMaxHistory(cfg.Session.MaxHistory)
		server.sessions = store
	}

	if cfg.Cron.Enabled {
		cronOpts := []cron.Option{cron.WithLogger(logger)}
		if cfg.Cron.StorePath != "" {
			cronOpts = append(cronOpts, cron.WithJobStore(cron.NewJobStore(cfg.Cron.StorePath)))
		}
		scheduler, err := cron.NewScheduler(cfg.Cron, cronOpts...)
		if err != nil {
			return nil, fmt.Errorf("cron scheduler: %w", err)
		}
		scheduler.SetAgentRunner(&cronAgentRunner{server: server})
		scheduler.SetMessageSender(&cronMessageSender{server: server})
		server.cronScheduler = scheduler
	}

	if cfg.Session.Memory.Enabled && cfg.Session.Memory.Path != "" {
		store, err := fts.Open(cfg.Session.Memory.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
		server.memoryStore = store
		if cfg.Session.Memory.IndexDir != "" {
			if err := store.IndexDirectory(cfg.Session.Memory.IndexDir); err != nil {
				logger.Warn("memory index failed", "dir", cfg.Session.Memory.IndexDir, "error", err)
			}
		}
	}

	if cfg.Workspace.Enabled && cfg.Workspace.Path != "" {
		db, err := sql.Open("sqlite", filepath.Join(cfg.Workspace.Path, ".manifest.db"))
		if err != nil {
			return nil, fmt.Errorf("workspace db: %w", err)
		}
		manager, err := workspace.New(db, cfg.Workspace.Path)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("workspace manager: %w", err)
		}
		server.workspaceDB = db
		server.workspaceManager = manager
	}

	return server, nil
}

// Channels exposes the channel registry so the composition root can
// register adapters before Start.
func (s *Server) Channels() *channels.Registry { return s.channels }

// Sessions exposes the session store.
func (s *Server) Sessions() sessions.Store { return s.sessions }

// CronScheduler exposes the scheduler, nil when cron is disabled.
func (s *Server) CronScheduler() *cron.Scheduler { return s.cronScheduler }
