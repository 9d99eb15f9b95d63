package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/config"
	croncore "github.com/haasonsaas/nexus/internal/cron"
)

// Tool exposes cron scheduler actions.
type Tool struct {
	scheduler *croncore.Scheduler
	channels  config.ChannelsConfig
}

// NewTool creates a cron tool.
func NewTool(scheduler *croncore.Scheduler) *Tool {
	return &Tool{scheduler: scheduler}
}

// WithChannels attaches the channel configuration used to resolve "channels"
// targets on the add action (e.g. ["all"], ["slack", "discord"]).
func (t *Tool) WithChannels(cfg config.ChannelsConfig) *Tool {
	t.channels = cfg
	return t
}

func (t *Tool) Name() string { return "cron" }

func (t *Tool) Description() string {
	return "Schedule recurring or one-shot tasks. Two job types: 'agent' (default) processes the message as a full agent turn with all tools; 'echo' delivers the message directly to channels without invoking the LLM (ideal for simple reminders like 'standup in 5 min'). Schedule with cron_expr, every_seconds, or at_time (one-shot ISO 8601). Optional limits: expires_at (auto-disable after datetime) and max_runs (auto-disable after N executions). Actions: add, list, remove, run, status, register, unregister, executions, prune, dlq_list, dlq_replay, dlq_clear."
}

func (t *Tool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"add", "list", "remove", "run", "status", "register", "unregister", "executions", "prune", "dlq_list", "dlq_replay", "dlq_clear"},
				"description": "Action to perform. dlq_list/dlq_replay/dlq_clear manage the dead letter queue for failed executions.",
			},
			"type": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"agent", "echo"},
				"description": "Job type for add: 'agent' (default) runs a full agent turn with tools; 'echo' delivers the message directly without the LLM.",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "For 'agent' type: instruction/prompt for the agent. For 'echo' type: the exact text to deliver.",
			},
			"every_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Interval in seconds, for recurring jobs.",
			},
			"cron_expr": map[string]interface{}{
				"type":        "string",
				"description": "Cron expression like '0 9 * * *'.",
			},
			"at_time": map[string]interface{}{
				"type":        "string",
				"description": "ISO 8601 datetime for a one-shot job; deleted automatically after it runs.",
			},
			"tz": map[string]interface{}{
				"type":        "string",
				"description": "IANA timezone for cron_expr.",
			},
			"event_pattern": map[string]interface{}{
				"type":        "string",
				"description": "Regex pattern that triggers the job when inbound text matches. Mutually exclusive with every_seconds/cron_expr/at_time.",
			},
			"event_channel": map[string]interface{}{
				"type":        "string",
				"description": "Optional channel filter for event-triggered jobs.",
			},
			"cooldown_secs": map[string]interface{}{
				"type":        "integer",
				"description": "Minimum seconds between event-triggered firings.",
			},
			"channels": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Target channels for add: [\"all\"] for every enabled channel, [\"slack\",\"discord\"] for specific ones, or omit for the current channel only.",
			},
			"expires_at": map[string]interface{}{
				"type":        "string",
				"description": "ISO 8601 datetime after which the job auto-disables.",
			},
			"max_runs": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of runs before auto-disabling.",
			},
			"job_id": map[string]interface{}{
				"type":        "string",
				"description": "Job id for remove/run/executions.",
			},
			"dlq_id": map[string]interface{}{
				"type":        "integer",
				"description": "DLQ entry id, for dlq_replay.",
			},
			"dlq_status": map[string]interface{}{
				"type":        "string",
				"description": "Filter DLQ entries by status (pending_retry, replayed, discarded).",
			},
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Job id for run/unregister actions (legacy config-job API).",
			},
			"job": map[string]interface{}{
				"type":        "object",
				"description": "Cron job configuration for register action (legacy config-job API).",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Limit for executions action.",
			},
			"offset": map[string]interface{}{
				"type":        "integer",
				"description": "Offset for executions action.",
			},
			"older_than": map[string]interface{}{
				"type":        "string",
				"description": "Duration (e.g. 24h) for pruning execution history.",
			},
		},
		"required": []string{"action"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.scheduler == nil {
		return toolError("cron scheduler unavailable"), nil
	}
	var input struct {
		Action       string               `json:"action"`
		Type         string               `json:"type"`
		Message      string               `json:"message"`
		EverySeconds int64                `json:"every_seconds"`
		CronExpr     string               `json:"cron_expr"`
		AtTime       string               `json:"at_time"`
		Timezone     string               `json:"tz"`
		EventPattern string               `json:"event_pattern"`
		EventChannel string               `json:"event_channel"`
		CooldownSecs int                  `json:"cooldown_secs"`
		Channels     []string             `json:"channels"`
		ExpiresAt    string               `json:"expires_at"`
		MaxRuns      int                  `json:"max_runs"`
		JobID        string               `json:"job_id"`
		DLQID        int64                `json:"dlq_id"`
		DLQStatus    string               `json:"dlq_status"`
		ID           string               `json:"id"`
		Job          config.CronJobConfig `json:"job"`
		Limit        int                  `json:"limit"`
		Offset       int                  `json:"offset"`
		OlderThan    string               `json:"older_than"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	action := strings.ToLower(strings.TrimSpace(input.Action))
	if action == "" {
		return toolError("action is required"), nil
	}

	switch action {
	case "add":
		jobType := strings.ToLower(strings.TrimSpace(input.Type))
		if jobType == "" {
			jobType = "agent"
		}
		if jobType != "agent" && jobType != "echo" {
			return toolError(fmt.Sprintf("invalid type %q, must be 'agent' or 'echo'", jobType)), nil
		}
		message := strings.TrimSpace(input.Message)
		if message == "" {
			return toolError("message is required for add"), nil
		}

		schedule, errResult := parseToolSchedule(input.EverySeconds, input.CronExpr, input.AtTime, input.Timezone, input.EventPattern, input.EventChannel)
		if errResult != nil {
			return errResult, nil
		}

		var targets []croncore.Target
		session := agent.SessionFromContext(ctx)
		currentChannel, currentChatID := "", ""
		if session != nil {
			currentChannel = string(session.Channel)
			currentChatID = session.ChannelID
		}
		targets = t.resolveTargets(input.Channels, currentChannel, currentChatID)
		if len(targets) == 0 {
			return toolError("no valid targets resolved; check that the requested channels are enabled or that session context is present"), nil
		}

		var originMetadata map[string]string
		if session != nil && len(session.Metadata) > 0 {
			originMetadata = make(map[string]string, len(session.Metadata))
			for k, v := range session.Metadata {
				originMetadata[k] = fmt.Sprintf("%v", v)
			}
		}

		var expiresAt *time.Time
		if strings.TrimSpace(input.ExpiresAt) != "" {
			parsed, err := parseToolTimestamp(input.ExpiresAt)
			if err != nil {
				return toolError("invalid expires_at format, use ISO 8601"), nil
			}
			if !parsed.After(time.Now()) {
				return toolError("expires_at must be in the future"), nil
			}
			expiresAt = &parsed
		}

		name := truncateName(message, 30)
		job, err := t.scheduler.AddJob(croncore.AddJobParams{
			Name:           name,
			Type:           jobTypeFor(jobType),
			Schedule:       schedule,
			Message:        message,
			Targets:        targets,
			OriginMetadata: originMetadata,
			ExpiresAt:      expiresAt,
			MaxRuns:        input.MaxRuns,
			CooldownSecs:   input.CooldownSecs,
		})
		if err != nil {
			return toolError(fmt.Sprintf("add job: %v", err)), nil
		}
		targetDesc := make([]string, 0, len(targets))
		for _, target := range targets {
			targetDesc = append(targetDesc, target.Channel)
		}
		return jsonResult(map[string]interface{}{
			"status":  "added",
			"job":     job,
			"targets": targetDesc,
		}), nil
	case "remove":
		jobID := strings.TrimSpace(input.JobID)
		if jobID == "" {
			return toolError("job_id is required for remove"), nil
		}
		if !t.scheduler.UnregisterJob(jobID) {
			return toolError(fmt.Sprintf("job %s not found", jobID)), nil
		}
		return jsonResult(map[string]interface{}{
			"status": "removed",
			"job_id": jobID,
		}), nil
	case "list", "status":
		jobs := t.scheduler.ListJobs()
		return jsonResult(map[string]interface{}{
			"jobs": jobs,
		}), nil
	case "run":
		id := strings.TrimSpace(input.ID)
		if id == "" {
			id = strings.TrimSpace(input.JobID)
		}
		if id == "" {
			return toolError("id is required"), nil
		}
		if err := t.scheduler.RunJobAsync(id, true); err != nil {
			return toolError(fmt.Sprintf("run job: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{
			"status": "ran",
			"id":     id,
		}), nil
	case "dlq_list":
		entries := t.scheduler.DLQ().List(croncore.DLQStatus(strings.TrimSpace(input.DLQStatus)))
		return jsonResult(map[string]interface{}{
			"entries": entries,
		}), nil
	case "dlq_replay":
		if input.DLQID == 0 {
			return toolError("dlq_id is required for dlq_replay"), nil
		}
		entries := t.scheduler.DLQ().List("")
		var found *croncore.DLQEntry
		for _, entry := range entries {
			if entry.ID == input.DLQID {
				found = entry
				break
			}
		}
		if found == nil {
			return toolError(fmt.Sprintf("DLQ entry %d not found", input.DLQID)), nil
		}
		t.scheduler.DLQ().MarkReplayed(found.ID)
		if err := t.scheduler.RunJobAsync(found.JobID, true); err != nil {
			return toolError(fmt.Sprintf("replay job: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{
			"status": "replay_triggered",
			"job_id": found.JobID,
		}), nil
	case "dlq_clear":
		removed := t.scheduler.DLQ().Clear(croncore.DLQStatus(strings.TrimSpace(input.DLQStatus)))
		return jsonResult(map[string]interface{}{
			"status":  "cleared",
			"removed": removed,
		}), nil
	case "register":
		if strings.TrimSpace(input.Job.ID) == "" {
			return toolError("job.id is required"), nil
		}
		job, err := t.scheduler.RegisterJob(input.Job)
		if err != nil {
			return toolError(fmt.Sprintf("register job: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{
			"status": "registered",
			"job":    job,
		}), nil
	case "unregister":
		id := strings.TrimSpace(input.ID)
		if id == "" {
			return toolError("id is required"), nil
		}
		removed := t.scheduler.UnregisterJob(id)
		if !removed {
			return toolError("job not found"), nil
		}
		return jsonResult(map[string]interface{}{
			"status": "removed",
			"id":     id,
		}), nil
	case "executions":
		jobID := strings.TrimSpace(input.JobID)
		execs, err := t.scheduler.Executions(ctx, jobID, input.Limit, input.Offset)
		if err != nil {
			return toolError(fmt.Sprintf("list executions: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{
			"job_id":     jobID,
			"executions": execs,
		}), nil
	case "prune":
		olderThan := strings.TrimSpace(input.OlderThan)
		if olderThan == "" {
			return toolError("older_than is required"), nil
		}
		duration, err := time.ParseDuration(olderThan)
		if err != nil {
			return toolError(fmt.Sprintf("invalid older_than: %v", err)), nil
		}
		count, err := t.scheduler.PruneExecutions(ctx, duration)
		if err != nil {
			return toolError(fmt.Sprintf("prune executions: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{
			"status": "pruned",
			"count":  count,
		}), nil
	default:
		return toolError("unsupported action"), nil
	}
}

// parseToolSchedule mirrors the add action's mutually-exclusive schedule
// parameters: exactly one of every_seconds/cron_expr/at_time/event_pattern
// selects the schedule kind. Returns a non-nil *agent.ToolResult error
// result (not a Go error) for user-facing validation failures, matching
// the add action's convention of surfacing schedule problems as tool
// errors rather than execution errors.
func parseToolSchedule(everySeconds int64, cronExpr, atTime, tz, eventPattern, eventChannel string) (croncore.Schedule, *agent.ToolResult) {
	switch {
	case everySeconds > 0:
		if everySeconds > 31_536_000 {
			return croncore.Schedule{}, toolError("every_seconds must be between 1 and 31536000 (1 year)")
		}
		return croncore.Schedule{Kind: "every", Every: time.Duration(everySeconds) * time.Second}, nil
	case strings.TrimSpace(cronExpr) != "":
		expr := strings.TrimSpace(cronExpr)
		if err := croncore.ValidateCronExpr(expr); err != nil {
			return croncore.Schedule{}, toolError(fmt.Sprintf("invalid cron expression: %v", err))
		}
		return croncore.Schedule{Kind: "cron", CronExpr: expr, Timezone: strings.TrimSpace(tz)}, nil
	case strings.TrimSpace(atTime) != "":
		at, err := parseToolTimestamp(atTime)
		if err != nil {
			return croncore.Schedule{}, toolError("invalid at_time format, use ISO 8601 (e.g. '2025-01-15T09:00:00-05:00')")
		}
		if !at.After(time.Now()) {
			return croncore.Schedule{}, toolError("at_time must be in the future")
		}
		return croncore.Schedule{Kind: "at", At: at}, nil
	case strings.TrimSpace(eventPattern) != "":
		schedule, err := croncore.EventSchedule(eventPattern, eventChannel)
		if err != nil {
			return croncore.Schedule{}, toolError(fmt.Sprintf("invalid event_pattern: %v", err))
		}
		return schedule, nil
	default:
		return croncore.Schedule{}, toolError("either every_seconds, cron_expr, at_time, or event_pattern is required")
	}
}

func parseToolTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02T15:04:05Z0700", value)
}

func jobTypeFor(toolType string) croncore.JobType {
	if toolType == "echo" {
		return croncore.JobTypeMessage
	}
	return croncore.JobTypeAgent
}

// resolveTargets implements the add action's channel-targeting rule: no
// channels param delivers to the current session's channel only; "all"
// fans out to every enabled channel; otherwise fans out to the named
// channels that are enabled in config. The current session's chat id is
// reused for every resolved channel, matching this assistant's
// single-operator deployment model (there is no per-channel allow-list
// of addressees to pick a different recipient from).
func (t *Tool) resolveTargets(channels []string, currentChannel, currentChatID string) []croncore.Target {
	if len(channels) == 0 {
		if currentChannel == "" || currentChatID == "" {
			return nil
		}
		return []croncore.Target{{Channel: currentChannel, To: currentChatID}}
	}
	if currentChatID == "" {
		return nil
	}
	wantAll := false
	names := make(map[string]bool, len(channels))
	for _, c := range channels {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "all" {
			wantAll = true
		}
		names[c] = true
	}

	enabled := map[string]bool{
		"slack":    t.channels.Slack.Enabled,
		"discord":  t.channels.Discord.Enabled,
		"telegram": t.channels.Telegram.Enabled,
		"whatsapp": t.channels.WhatsApp.Enabled,
		"signal":   t.channels.Signal.Enabled,
		"imessage": t.channels.IMessage.Enabled,
		"matrix":   t.channels.Matrix.Enabled,
	}
	order := []string{"slack", "discord", "telegram", "whatsapp", "signal", "imessage", "matrix"}

	var targets []croncore.Target
	for _, name := range order {
		if !enabled[name] {
			continue
		}
		if !wantAll && !names[name] {
			continue
		}
		targets = append(targets, croncore.Target{Channel: name, To: currentChatID})
	}
	return targets
}

func toolError(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}

func jsonResult(payload any) *agent.ToolResult {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err))
	}
	return &agent.ToolResult{Content: string(encoded)}
}

// truncateName shortens a derived job name at a rune boundary, appending
// an ellipsis when truncated.
func truncateName(input string, maxRunes int) string {
	runes := []rune(input)
	if len(runes) <= maxRunes {
		return input
	}
	if maxRunes <= 1 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-1]) + "\u2026"
}
