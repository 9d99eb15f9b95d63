package gateway

import (
	"context"
	"fmt"

	"github.com/haasonsaas/nexus/internal/agent"
	crontool "github.com/haasonsaas/nexus/internal/tools/cron"
	"github.com/haasonsaas/nexus/internal/tools/exec"
	"github.com/haasonsaas/nexus/internal/tools/files"
	"github.com/haasonsaas/nexus/internal/tools/memorysearch"
	"github.com/haasonsaas/nexus/internal/tools/message"
	"github.com/haasonsaas/nexus/internal/tools/websearch"
)

// ensureRuntime builds the agent runtime on first use.
func (s *Server) ensureRuntime(ctx context.Context) (*agent.Runtime, error) {
	s.runtimeMu.Lock()
	defer s.runtimeMu.Unlock()
	if s.runtime != nil {
		return s.runtime, nil
	}
	if s.provider == nil {
		return nil, fmt.Errorf("no LLM provider configured")
	}

	cfg := s.config
	runtime := agent.NewRuntimeWithOptions(s.provider, s.sessions, agent.RuntimeOptions{
		MaxIterations:    cfg.Agent.MaxIterations,
		ToolParallelism:  cfg.Tools.Execution.Parallelism,
		ToolTimeout:      cfg.Tools.Execution.Timeout,
		ToolMaxAttempts:  cfg.Tools.Execution.MaxAttempts,
		ToolRetryBackoff: cfg.Tools.Execution.RetryBackoff,
		Logger:           s.logger,
	})
	if cfg.Agent.Model != "" {
		runtime.SetDefaultModel(cfg.Agent.Model)
	}
	if cfg.Agent.SystemPrompt != "" {
		runtime.SetSystemPrompt(cfg.Agent.SystemPrompt)
	}
	if s.memoryStore != nil {
		runtime.SetMemoryStore(s.memoryStore)
	}
	if s.workspaceManager != nil {
		runtime.SetWorkspaceManager(s.workspaceManager)
	}
	runtime.EnableResultCache(cfg.Tools.Cache.TTL, cfg.Tools.Cache.Size)
	if len(cfg.Tools.Cache.CacheableTools) > 0 {
		runtime.MarkCacheable(cfg.Tools.Cache.CacheableTools...)
	}

	s.registerTools(runtime)
	s.runtime = runtime
	return runtime, nil
}

// registerTools wires the built-in tool set: shell execution behind the
// command guard, web search/fetch behind the SSRF guard, scheduled
// jobs, memory search, outbound messaging, and workspace file access.
func (s *Server) registerTools(runtime *agent.Runtime) {
	cfg := s.config

	if cfg.Workspace.Enabled && cfg.Workspace.Path != "" {
		manager := exec.NewManager(cfg.Workspace.Path)
		if len(cfg.Tools.Exec.Allowlist) > 0 {
			manager.SetAllowedCommands(cfg.Tools.Exec.Allowlist)
		}
		runtime.RegisterTool(exec.NewExecTool("exec", manager))
		runtime.RegisterTool(exec.NewProcessTool(manager))

		fileCfg := files.Config{Workspace: cfg.Workspace.Path}
		runtime.RegisterTool(files.NewReadTool(fileCfg))
		runtime.RegisterTool(files.NewWriteTool(fileCfg))
		runtime.RegisterTool(files.NewEditTool(fileCfg))
		runtime.RegisterTool(files.NewApplyPatchTool(fileCfg))
	}

	runtime.RegisterTool(websearch.NewWebSearchTool(&websearch.Config{
		BraveAPIKey:        cfg.Tools.WebSearch.BraveAPIKey,
		DefaultResultCount: cfg.Tools.WebSearch.MaxResults,
	}))
	runtime.RegisterTool(websearch.NewWebFetchTool(nil))

	if s.cronScheduler != nil {
		runtime.RegisterTool(crontool.NewTool(s.cronScheduler).WithChannels(cfg.Channels))
	}

	if s.memoryStore != nil {
		runtime.RegisterTool(memorysearch.NewTool(s.memoryStore))
	}

	runtime.RegisterTool(message.NewTool("message", s.channels, s.sessions, cfg.Session.DefaultAgentID))
}
