package gateway

import (
	"context"
	"fmt"
)

// Start brings up the channel adapters, the message pipeline, and the
// cron scheduler.
func (s *Server) Start(ctx context.Context) error {
	if err := s.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	s.startProcessing(ctx)
	if s.cronScheduler != nil {
		if err := s.cronScheduler.Start(ctx); err != nil {
			return fmt.Errorf("start cron: %w", err)
		}
	}
	s.logger.Info("gateway started")
	return nil
}

// Stop shuts the pipeline down in reverse order and releases the
// stores.
func (s *Server) Stop(ctx context.Context) error {
	if s.cronScheduler != nil {
		if err := s.cronScheduler.Stop(ctx); err != nil {
			s.logger.Warn("cron stop failed", "error", err)
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.channels.StopAll(ctx); err != nil {
		s.logger.Warn("channel stop failed", "error", err)
	}
	s.wg.Wait()

	if s.memoryStore != nil {
		if err := s.memoryStore.Close(); err != nil {
			s.logger.Warn("memory store close failed", "error", err)
		}
	}
	if s.workspaceDB != nil {
		if err := s.workspaceDB.Close(); err != nil {
			s.logger.Warn("workspace db close failed", "error", err)
		}
	}
	if s.sessionCloser != nil {
		if err := s.sessionCloser(); err != nil {
			s.logger.Warn("session store close failed", "error", err)
		}
	}
	s.logger.Info("gateway stopped")
	return nil
}
