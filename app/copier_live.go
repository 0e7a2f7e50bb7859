package app

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whaletrack/core/apperr"
	"github.com/whaletrack/core/database/copierdb"
	"github.com/whaletrack/core/database/models"
)

const notificationRingSize = 50

// liveSession tracks the in-process goroutine shadowing one CopierSession.
type liveSession struct {
	cancel context.CancelFunc
}

// LiveCopier polls new whale fills every second and sizes each one from
// the session's deposit, position pct and leverage, capped at the
// deposit; unlike the backtest it applies no fees or slippage and tracks
// no PnL. Shadow-only: execute=true is reserved for real order
// submission and stays out of scope here.
// Grounded on the teacher's RunningTradeHandler worker-goroutine shape
// (a per-session goroutine with a done channel) generalized to
// multiple concurrent sessions instead of one global handler.
type LiveCopier struct {
	sim      *CopierSimulator
	sessions *copierdb.Repository

	mu     sync.Mutex
	active map[string]*liveSession // session id -> running goroutine handle
}

func NewLiveCopier(sim *CopierSimulator, sessions *copierdb.Repository) *LiveCopier {
	return &LiveCopier{sim: sim, sessions: sessions, active: make(map[string]*liveSession)}
}

// StartSession creates and begins shadowing a live copier session for
// whale against the given backtest run's sizing parameters.
func (l *LiveCopier) StartSession(whaleID, runID string, positionPctOverride *float64) (*models.CopierSession, error) {
	run, err := l.sim.GetRun(runID)
	if err != nil {
		return nil, err
	}
	positionPct := run.PositionPct
	if positionPctOverride != nil {
		positionPct = *positionPctOverride
	}

	session := &models.CopierSession{
		ID:      uuid.NewString(),
		WhaleID: whaleID,
		RunID:   runID,
		Active:  true,
	}
	if err := l.sessions.CreateSession(session); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.mu.Lock()
	l.active[session.ID] = &liveSession{cancel: cancel}
	l.mu.Unlock()

	go l.poll(ctx, session.ID, whaleID, run, positionPct)
	return session, nil
}

// StopSession marks a session inactive and cancels its polling goroutine.
func (l *LiveCopier) StopSession(sessionID string) error {
	l.mu.Lock()
	s, ok := l.active[sessionID]
	delete(l.active, sessionID)
	l.mu.Unlock()
	if ok {
		s.cancel()
	}
	return l.sessions.Stop(sessionID, "")
}

// StopSessionsForWhale stops every active session belonging to a
// whale, called when the whale itself is deleted.
func (l *LiveCopier) StopSessionsForWhale(whaleID string) error {
	sessions, err := l.sessions.ListActive(whaleID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if err := l.StopSession(s.ID); err != nil {
			log.Printf("live copier: stop session %s: %v", s.ID, err)
		}
	}
	return nil
}

// ListActive resumes UI state across client reconnects.
func (l *LiveCopier) ListActive(whaleID string) ([]models.CopierSession, error) {
	return l.sessions.ListActive(whaleID)
}

// GetSession fetches a single session by id, for the status endpoint.
func (l *LiveCopier) GetSession(sessionID string) (*models.CopierSession, error) {
	return l.sessions.GetSession(sessionID)
}

func (l *LiveCopier) poll(ctx context.Context, sessionID, whaleID string, run *models.BacktestRun, positionPct float64) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastSeenAt time.Time
	var lastSeenID int64
	var processed int64
	var notifications []string

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fresh, err := l.sim.trades.Since(whaleID, lastSeenAt, lastSeenID)
			if err != nil {
				l.recordError(sessionID, err)
				continue
			}
			for _, t := range fresh {
				equity := run.InitialDepositUSD // shadow sizing uses the run's configured deposit as the equity baseline
				notional := equity * positionPct * run.Leverage
				if notional > equity {
					notifications = appendRing(notifications, "sized down: insufficient equity")
					notional = equity
				}
				processed++
				lastSeenAt = t.Timestamp
				lastSeenID = t.ID
			}
			if len(fresh) == 0 {
				continue
			}
			if err := l.sessions.UpdateProgress(sessionID, processed, lastSeenAt, lastSeenID); err != nil {
				log.Printf("live copier: update progress %s: %v", sessionID, err)
			}
			if len(notifications) > 0 {
				if payload, err := json.Marshal(notifications); err == nil {
					_ = l.sessions.AppendNotification(sessionID, string(payload))
				}
			}
		}
	}
}

func (l *LiveCopier) recordError(sessionID string, err error) {
	log.Printf("live copier: session %s: %v", sessionID, err)
	if apperr.Is(err, apperr.KindInvariant) {
		_ = l.sessions.Stop(sessionID, err.Error())
	}
}

func appendRing(ring []string, msg string) []string {
	ring = append(ring, msg)
	if len(ring) > notificationRingSize {
		ring = ring[len(ring)-notificationRingSize:]
	}
	return ring
}
