package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/halwind/mnemo/internal/observability"
)

// StartCleanup launches the background loop that purges expired
// short-term turns. Reads already filter on expiry, the loop only
// reclaims the rows.
func (m *Manager) StartCleanup() error {
	if m.cleanupStop != nil {
		return fmt.Errorf("cleanup is already running")
	}

	m.cleanupStop = make(chan struct{})
	m.cleanupDone = make(chan struct{})
	go m.runCleanup()

	m.logger.Info().
		Dur("interval", m.cfg.CleanupInterval).
		Msg("Short-term cleanup started")
	return nil
}

// StopCleanup stops the purge loop and waits for it to exit.
func (m *Manager) StopCleanup() error {
	if m.cleanupStop == nil {
		return fmt.Errorf("cleanup is not running")
	}

	close(m.cleanupStop)
	<-m.cleanupDone
	m.cleanupStop = nil

	m.logger.Info().Msg("Short-term cleanup stopped")
	return nil
}

func (m *Manager) runCleanup() {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	// Run immediately on start
	m.purgeExpired()

	for {
		select {
		case <-ticker.C:
			m.purgeExpired()
		case <-m.cleanupStop:
			return
		}
	}
}

func (m *Manager) purgeExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ShortTermTimeout)
	defer cancel()

	purged, err := m.st.PurgeExpiredTurns(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to purge expired turns")
		return
	}
	if purged > 0 {
		observability.AddPurgedTurns(purged)
		m.logger.Debug().Int("purged", purged).Msg("Purged expired short-term turns")
	}
}
