package farm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"farmledger/pkg/domain"
)

// minSeason is the earliest season a restored document may carry.
const minSeason = 1900

// ErrRolloverInProgress is returned when a second rollover starts while one is executing.
var ErrRolloverInProgress = errors.New("season rollover already executing")

// RolloverState is the season rollover state machine position.
type RolloverState string

// Rollover states.
const (
	RolloverDormant   RolloverState = "dormant"
	RolloverPrompted  RolloverState = "prompted"
	RolloverExecuting RolloverState = "executing"
	RolloverDone      RolloverState = "done"
)

type rolloverFlags struct {
	executing bool
	done      bool
	deferred  bool
}

// ActiveSeason returns the year new records are stamped with.
func (s *Store) ActiveSeason() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeSeason
}

// ViewingSeason returns the year reports default to.
func (s *Store) ViewingSeason() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewingSeason
}

// SetViewingSeason changes the report lens. It is not persisted.
func (s *Store) SetViewingSeason(year int) {
	s.mu.Lock()
	s.viewingSeason = year
	s.mu.Unlock()
}

// RolloverStatus reports where the rollover state machine stands relative to
// the calendar year of now.
func (s *Store) RolloverStatus(now time.Time) RolloverState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.rollover.executing:
		return RolloverExecuting
	case s.rollover.done:
		return RolloverDone
	case s.rollover.deferred || s.activeSeason >= now.Year():
		return RolloverDormant
	default:
		return RolloverPrompted
	}
}

// DeferRollover silences the prompt until the store is reopened.
func (s *Store) DeferRollover() {
	s.mu.Lock()
	s.rollover.deferred = true
	s.mu.Unlock()
}

// RolloverToNewSeason exports a backup and only then advances the active and
// viewing season to year. Records keep their original season. When the
// export fails nothing changes and the error is returned. Persisting the new
// season remotely is best effort.
func (s *Store) RolloverToNewSeason(ctx context.Context, year int) (BackupReceipt, error) {
	s.mu.Lock()
	if s.rollover.executing {
		s.mu.Unlock()
		return BackupReceipt{}, ErrRolloverInProgress
	}
	if year <= s.activeSeason {
		active := s.activeSeason
		s.mu.Unlock()
		return BackupReceipt{}, fmt.Errorf("%w: %d does not follow %d", domain.ErrInvalidSeason, year, active)
	}
	s.rollover.executing = true
	s.mu.Unlock()

	receipt, err := s.exportBackup(ctx, true)
	if err != nil {
		s.mu.Lock()
		s.rollover.executing = false
		s.mu.Unlock()
		s.logger.Error("rollover aborted; backup export failed", zap.Int("season", year), zap.Error(err))
		return BackupReceipt{}, fmt.Errorf("rollover backup: %w", err)
	}

	s.mu.Lock()
	prev := s.activeSeason
	s.activeSeason = year
	s.viewingSeason = year
	s.saveLocked(domain.CacheKeyActiveSeason, year)
	s.rollover = rolloverFlags{done: true}
	s.mu.Unlock()
	s.logger.Info("season rolled over", zap.Int("from", prev), zap.Int("to", year), zap.String("backup", receipt.Key))
	s.pushProfile()
	return receipt, nil
}

// pushProfile writes the active season to the remote profile. Failures are
// logged only.
func (s *Store) pushProfile() {
	if s.remote == nil || !s.online() {
		return
	}
	s.tasks.submit(func() {
		s.mu.RLock()
		session := s.session
		profile := domain.Profile{FarmID: s.farmID, ActiveSeason: s.activeSeason, UpdatedAt: s.now().UTC()}
		s.mu.RUnlock()
		if session == nil {
			return
		}
		profile.UserID = session.UserID
		ctx, cancel := context.WithTimeout(context.Background(), s.remoteTimeout)
		defer cancel()
		started := time.Now()
		err := s.remote.UpsertProfile(ctx, profile)
		s.metrics.observeCall(domain.TableProfiles, "upsert_profile", started, err)
		if err != nil {
			s.logger.Error("profile season write failed", zap.Int("season", profile.ActiveSeason), zap.Error(err))
		}
	})
}
