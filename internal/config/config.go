// Package config defines the runtime configuration surface consumed by
// the agent kernel: provider selection, session storage, memory and
// workspace paths, scheduled jobs, channels, and tool execution limits.
package config

import "time"

// Config is the top-level configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Session   SessionConfig   `yaml:"session"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Cron      CronConfig      `yaml:"cron"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Tools     ToolsConfig     `yaml:"tools"`
}

// AgentConfig selects the LLM provider and model driving the loop.
type AgentConfig struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	SystemPrompt string `yaml:"system_prompt"`
	// MaxIterations bounds provider round-trips within one turn.
	MaxIterations int `yaml:"max_iterations"`
}

// SessionConfig controls conversation persistence.
type SessionConfig struct {
	DefaultAgentID string `yaml:"default_agent_id"`
	// StorePath is the sqlite file backing session history. Empty keeps
	// sessions in memory.
	StorePath string `yaml:"store_path"`
	// MaxHistory is the per-session turn budget; oldest non-system
	// messages are evicted past it.
	MaxHistory int          `yaml:"max_history"`
	Memory     MemoryConfig `yaml:"memory"`
}

// MemoryConfig controls the full-text memory index.
type MemoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path is the sqlite file holding the FTS index.
	Path string `yaml:"path"`
	// IndexDir is indexed at startup when set (every *.md child).
	IndexDir string `yaml:"index_dir"`
}

// WorkspaceConfig controls the managed file workspace.
type WorkspaceConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	MaxChars     int    `yaml:"max_chars"`
	AgentsFile   string `yaml:"agents_file"`
	SoulFile     string `yaml:"soul_file"`
	UserFile     string `yaml:"user_file"`
	IdentityFile string `yaml:"identity_file"`
	ToolsFile    string `yaml:"tools_file"`
	MemoryFile   string `yaml:"memory_file"`
}

// CronConfig configures scheduled jobs.
type CronConfig struct {
	Enabled bool            `yaml:"enabled"`
	Jobs    []CronJobConfig `yaml:"jobs"`
	// StorePath persists dynamically added jobs (and their dead-letter
	// queue) as JSON so they survive a restart. Empty disables persistence.
	StorePath string `yaml:"store_path"`
}

// CronJobConfig defines a scheduled job.
type CronJobConfig struct {
	ID       string             `yaml:"id"`
	Name     string             `yaml:"name"`
	Type     string             `yaml:"type"`
	Enabled  bool               `yaml:"enabled"`
	Schedule CronScheduleConfig `yaml:"schedule"`
	Message  *CronMessageConfig `yaml:"message,omitempty"`
	Webhook  *CronWebhookConfig `yaml:"webhook,omitempty"`
	Custom   *CronCustomConfig  `yaml:"custom,omitempty"`
	Retry    CronRetryConfig    `yaml:"retry"`
}

// CronScheduleConfig defines when a job runs.
type CronScheduleConfig struct {
	Cron     string        `yaml:"cron"`
	Every    time.Duration `yaml:"every"`
	At       string        `yaml:"at"`
	Timezone string        `yaml:"timezone"`
}

// CronMessageConfig defines a message or agent-turn job payload.
type CronMessageConfig struct {
	Channel   string         `yaml:"channel"`
	ChannelID string         `yaml:"channel_id"`
	Content   string         `yaml:"content"`
	Template  string         `yaml:"template"`
	Data      map[string]any `yaml:"data"`
	// Tools is only meaningful on agent-turn jobs; plain message jobs
	// reject it at registration.
	Tools []string `yaml:"tools,omitempty"`
}

// CronWebhookConfig defines a webhook job payload.
type CronWebhookConfig struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
	Body    string            `yaml:"body"`
	Timeout time.Duration     `yaml:"timeout"`
	Auth    *CronWebhookAuth  `yaml:"auth,omitempty"`
}

// CronWebhookAuth defines authentication for webhook jobs.
type CronWebhookAuth struct {
	Type   string `yaml:"type"`
	Token  string `yaml:"token,omitempty"`
	User   string `yaml:"user,omitempty"`
	Pass   string `yaml:"pass,omitempty"`
	Header string `yaml:"header,omitempty"`
}

// CronCustomConfig defines a custom cron job payload.
type CronCustomConfig struct {
	Handler string         `yaml:"handler"`
	Args    map[string]any `yaml:"args"`
}

// CronRetryConfig controls retry behavior for cron jobs.
type CronRetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// ChannelsConfig enables and authenticates channel adapters. The
// adapters themselves are external collaborators; the kernel only
// consults enablement when resolving cron job targets.
type ChannelsConfig struct {
	Telegram ChannelConfig `yaml:"telegram"`
	Discord  ChannelConfig `yaml:"discord"`
	Slack    ChannelConfig `yaml:"slack"`
	WhatsApp ChannelConfig `yaml:"whatsapp"`
	Signal   ChannelConfig `yaml:"signal"`
	IMessage ChannelConfig `yaml:"imessage"`
	Matrix   ChannelConfig `yaml:"matrix"`
}

// ChannelConfig holds one channel's enablement and credential.
type ChannelConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token,omitempty"`
}

// ToolsConfig controls tool execution.
type ToolsConfig struct {
	Execution ExecutionConfig `yaml:"execution"`
	Exec      ExecConfig      `yaml:"exec"`
	Cache     CacheConfig     `yaml:"cache"`
	WebSearch WebSearchConfig `yaml:"web_search"`
}

// ExecutionConfig bounds the tool execution pipeline.
type ExecutionConfig struct {
	Parallelism  int           `yaml:"parallelism"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// ExecConfig controls the shell-execution tool's guard.
type ExecConfig struct {
	// Allowlist restricts runnable commands when non-empty.
	Allowlist []string `yaml:"allowlist"`
	// RestrictToWorkspace confines command paths to the workspace root.
	RestrictToWorkspace bool `yaml:"restrict_to_workspace"`
}

// CacheConfig controls the tool result cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
	// Size is the maximum number of cached results.
	Size int `yaml:"size"`
	// CacheableTools lists tool names whose results may be cached.
	CacheableTools []string `yaml:"cacheable_tools"`
}

// WebSearchConfig configures the web search/fetch tools.
type WebSearchConfig struct {
	BraveAPIKey string `yaml:"brave_api_key"`
	MaxResults  int    `yaml:"max_results"`
}

// Default returns a Config with sensible defaults applied.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Provider:      "anthropic",
			MaxIterations: 10,
		},
		Session: SessionConfig{
			DefaultAgentID: "main",
			MaxHistory:     200,
		},
		Tools: ToolsConfig{
			Execution: ExecutionConfig{
				Parallelism: 4,
				Timeout:     30 * time.Second,
				MaxAttempts: 1,
			},
			Cache: CacheConfig{
				TTL:  5 * time.Minute,
				Size: 128,
			},
		},
	}
}
