package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/haasonsaas/nexus/internal/config"
)

// jobRecord is the JSON wire shape for one persisted Job. Schedule/state
// fields are flattened for a simpler on-disk format than the in-memory
// Job struct (which also carries config-sourced handler payloads not
// relevant to the dynamic, tool-added job set this store tracks).
type jobRecord struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Type           JobType           `json:"type"`
	Enabled        bool              `json:"enabled"`
	ScheduleKind   string            `json:"schedule_kind"`
	CronExpr       string            `json:"cron_expr,omitempty"`
	EveryMS        int64             `json:"every_ms,omitempty"`
	AtMS           int64             `json:"at_ms,omitempty"`
	Timezone       string            `json:"timezone,omitempty"`
	EventPattern   string            `json:"event_pattern,omitempty"`
	EventChannel   string            `json:"event_channel,omitempty"`
	PayloadKind    string            `json:"payload_kind"`
	Message        string            `json:"message"`
	Targets        []Target          `json:"targets,omitempty"`
	OriginMetadata map[string]string `json:"origin_metadata,omitempty"`
	DeleteAfterRun bool              `json:"delete_after_run"`
	ExpiresAtMS    *int64            `json:"expires_at_ms,omitempty"`
	MaxRuns        int               `json:"max_runs,omitempty"`
	CooldownSecs   int               `json:"cooldown_secs,omitempty"`

	NextRunMS   *int64 `json:"next_run_at_ms"`
	LastRunMS   *int64 `json:"last_run_at_ms,omitempty"`
	LastFiredMS *int64 `json:"last_fired_at_ms,omitempty"`
	LastStatus  string `json:"last_status,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	RunCount    int    `json:"run_count"`
	CreatedAtMS int64  `json:"created_at_ms"`
	UpdatedAtMS int64  `json:"updated_at_ms"`
}

type storeFile struct {
	Jobs []jobRecord `json:"jobs"`
	DLQ  []*DLQEntry `json:"dlq,omitempty"`
}

func msPtr(t *time.Time) *int64 {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UnixMilli()
	return &v
}

func msToTime(ms *int64) time.Time {
	if ms == nil {
		return time.Time{}
	}
	return time.UnixMilli(*ms).UTC()
}

func timeOrZero(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func toRecord(j *Job) jobRecord {
	r := jobRecord{
		ID: j.ID, Name: j.Name, Type: j.Type, Enabled: j.Enabled,
		ScheduleKind: j.Schedule.Kind, CronExpr: j.Schedule.CronExpr,
		Timezone: j.Schedule.Timezone, EventPattern: j.Schedule.EventPattern,
		EventChannel: j.Schedule.EventChannel,
		Targets:      j.Targets, OriginMetadata: j.OriginMetadata,
		DeleteAfterRun: j.DeleteAfterRun, MaxRuns: j.MaxRuns, CooldownSecs: j.CooldownSecs,
		LastStatus: j.LastStatus, LastError: j.LastError, RunCount: j.RunCount,
		CreatedAtMS: j.CreatedAt.UnixMilli(), UpdatedAtMS: j.UpdatedAt.UnixMilli(),
	}
	if j.Schedule.Every > 0 {
		r.EveryMS = j.Schedule.Every.Milliseconds()
	}
	if !j.Schedule.At.IsZero() {
		r.AtMS = j.Schedule.At.UnixMilli()
	}
	if j.Message != nil {
		r.PayloadKind = string(j.Type)
		r.Message = j.Message.Content
	}
	r.NextRunMS = msPtr(&j.NextRun)
	if j.NextRun.IsZero() {
		r.NextRunMS = nil
	}
	r.LastRunMS = msPtr(&j.LastRun)
	if j.LastRun.IsZero() {
		r.LastRunMS = nil
	}
	r.LastFiredMS = msPtr(&j.LastFiredAt)
	if j.LastFiredAt.IsZero() {
		r.LastFiredMS = nil
	}
	r.ExpiresAtMS = msPtr(j.ExpiresAt)
	return r
}

func fromRecord(r jobRecord) *Job {
	j := &Job{
		ID: r.ID, Name: r.Name, Type: r.Type, Enabled: r.Enabled,
		Schedule: Schedule{
			Kind: r.ScheduleKind, CronExpr: r.CronExpr, Timezone: r.Timezone,
			Every: time.Duration(r.EveryMS) * time.Millisecond,
			At:    timeOrZero(r.AtMS),

			EventPattern: r.EventPattern, EventChannel: r.EventChannel,
		},
		Targets: r.Targets, OriginMetadata: r.OriginMetadata,
		DeleteAfterRun: r.DeleteAfterRun, MaxRuns: r.MaxRuns, CooldownSecs: r.CooldownSecs,
		LastStatus: r.LastStatus, LastError: r.LastError, RunCount: r.RunCount,
		NextRun:     msToTime(r.NextRunMS),
		LastRun:     msToTime(r.LastRunMS),
		LastFiredAt: msToTime(r.LastFiredMS),
		CreatedAt:   timeOrZero(r.CreatedAtMS),
		UpdatedAt:   timeOrZero(r.UpdatedAtMS),
	}
	if r.ExpiresAtMS != nil {
		t := msToTime(r.ExpiresAtMS)
		j.ExpiresAt = &t
	}
	if r.Message != "" {
		j.Message = &config.CronMessageConfig{Content: r.Message}
	}
	return j
}

// JobStore persists the dynamic job set (and its DLQ) as a single JSON
// file, written atomically via write-temp-then-rename so a crash mid-write
// never corrupts the previous snapshot.
type JobStore struct {
	path string
}

// NewJobStore creates a store rooted at path. The file is created lazily
// on first Save.
func NewJobStore(path string) *JobStore {
	return &JobStore{path: path}
}

// Load reads the job set and DLQ from disk. A missing file is not an
// error — it yields an empty store.
func (s *JobStore) Load() ([]*Job, []*DLQEntry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read cron store: %w", err)
	}
	var sf storeFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, nil, fmt.Errorf("parse cron store: %w", err)
	}
	jobs := make([]*Job, 0, len(sf.Jobs))
	for _, r := range sf.Jobs {
		jobs = append(jobs, fromRecord(r))
	}
	return jobs, sf.DLQ, nil
}

// Save writes jobs and dlq to disk atomically.
func (s *JobStore) Save(jobs []*Job, dlq []*DLQEntry) error {
	sf := storeFile{Jobs: make([]jobRecord, 0, len(jobs)), DLQ: dlq}
	for _, j := range jobs {
		sf.Jobs = append(sf.Jobs, toRecord(j))
	}
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cron store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cron store directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create cron store temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write cron store temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close cron store temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename cron store temp file: %w", err)
	}
	return nil
}
