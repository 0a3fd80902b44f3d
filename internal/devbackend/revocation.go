package devbackend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RevocationList tracks refresh token ids that may no longer be used.
type RevocationList struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewRevocationList() *RevocationList {
	return &RevocationList{revoked: make(map[string]time.Time)}
}

// Revoke blacklists jti until the token would have expired anyway.
func (l *RevocationList) Revoke(jti string, expiresAt time.Time) {
	l.mu.Lock()
	l.revoked[jti] = expiresAt
	l.mu.Unlock()
}

func (l *RevocationList) IsRevoked(jti string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.revoked[jti]
	return ok
}

// Prune drops entries whose tokens have expired and returns how many went.
func (l *RevocationList) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	pruned := 0
	for jti, expiresAt := range l.revoked {
		if !now.Before(expiresAt) {
			delete(l.revoked, jti)
			pruned++
		}
	}
	return pruned
}

func (l *RevocationList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.revoked)
}

// Janitor runs periodic maintenance for the dev backend.
type Janitor struct {
	cron        *cron.Cron
	revocations *RevocationList
	schedule    string
	logger      *slog.Logger
}

func NewJanitor(revocations *RevocationList, schedule string, logger *slog.Logger) *Janitor {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Janitor{
		cron:        cron.New(cron.WithChain(cron.Recover(cronLogger))),
		revocations: revocations,
		schedule:    schedule,
		logger:      logger,
	}
}

// Start registers the prune job and starts the scheduler.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.PruneRevocations); err != nil {
		return err
	}
	j.logger.Info("scheduled revocation prune job", "schedule", j.schedule)
	j.cron.Start()
	return nil
}

// PruneRevocations removes expired refresh token ids.
func (j *Janitor) PruneRevocations() {
	if pruned := j.revocations.Prune(time.Now()); pruned > 0 {
		j.logger.Info("pruned revoked refresh tokens", "count", pruned)
	}
}

// Stop halts the scheduler; the returned context is done once running jobs finish.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}
