// Package supervisor runs one worker goroutine per configured session,
// reconnecting with the backoff taxonomy described in spec §4.9, ported
// from KiwiWorker.run() in kiwiworker.py.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cwsl/kiwirecorder/internal/config"
	"github.com/cwsl/kiwirecorder/internal/kiwierr"
	"github.com/cwsl/kiwirecorder/internal/klog"
)

// TDoAStatus mirrors options.status in the TDoA-mode Python client: 0 ok,
// 1 connect/other failure, 2 too busy, 3 GNSS unavailable (set elsewhere).
type TDoAStatus int32

const (
	TDoAOK TDoAStatus = iota
	TDoAConnectFailed
	TDoATooBusy
	TDoAGNSSUnavailable
)

// Worker is the behavior one session supervisor loop drives. Implemented
// by the command's per-session recorder adapter.
type Worker interface {
	Connect() error
	Open() error
	RunOnce() error
	Close()
}

// Session pairs a Worker with the config it was built from, so the
// supervisor can log host:port and honor IsTDoA/LaunchDelaySeconds.
type Session struct {
	Cfg    config.SessionConfig
	Worker Worker
}

// Supervisor runs every configured Session to completion or until Stop is
// called, matching the shared run-flag in kiwiworker.py (threading.Event
// there; a mutex-guarded bool, a wake channel closed by Stop, and a
// context here).
type Supervisor struct {
	log *klog.Logger

	mu      sync.Mutex
	running bool

	tdoaStatus TDoAStatus
	wakeCh     chan struct{}
}

// New creates a Supervisor.
func New(log *klog.Logger) *Supervisor {
	return &Supervisor{log: log, running: true, wakeCh: make(chan struct{})}
}

// Stop clears the shared run flag so every worker exits its loop at the
// next check, mirroring self._run_event.clear() in kiwiworker.py.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.wakeCh)
	}
	s.mu.Unlock()
}

func (s *Supervisor) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TDoAStatus returns the final TDoA status code after Run returns, per
// spec §4.9/§6.
func (s *Supervisor) TDoAStatus() TDoAStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tdoaStatus
}

func (s *Supervisor) setTDoAStatus(v TDoAStatus) {
	s.mu.Lock()
	if s.tdoaStatus == TDoAOK {
		s.tdoaStatus = v
	}
	s.mu.Unlock()
}

// NoteGNSSUnavailable records a GNSS-unavailable condition reported by a
// session's IQ stream (last_gps_solution of 255/254), surfaced as TDoA
// status 3 at shutdown per spec §6/§8. First report wins, same as any
// other TDoA status.
func (s *Supervisor) NoteGNSSUnavailable() {
	s.setTDoAStatus(TDoAGNSSUnavailable)
}

// sleepInterruptible waits up to d or until Stop is called, whichever
// comes first, matching KiwiWorker._sleep's 1-second polling loop.
func (s *Supervisor) sleepInterruptible(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.wakeCh:
	case <-ctx.Done():
	}
}

// Run launches one goroutine per session and blocks until all of them
// exit, either because Stop was called, a session decided to give up, or
// ctx was canceled. Sessions on the same host are staggered by
// LaunchDelaySeconds before their first connect, matching the launch
// throttling kiwirecorder.py applies across fanned-out connections to the
// same server.
func (s *Supervisor) Run(ctx context.Context, sessions []Session) {
	var wg sync.WaitGroup
	launchDelay := make(map[string]time.Duration)

	for i := range sessions {
		sess := sessions[i]
		key := fmt.Sprintf("%s:%d", sess.Cfg.ServerHost, sess.Cfg.ServerPort)
		delay := launchDelay[key]
		launchDelay[key] = delay + time.Duration(sess.Cfg.LaunchDelaySeconds)*time.Second

		wg.Add(1)
		go func(sess Session, delay time.Duration) {
			defer wg.Done()
			if delay > 0 {
				s.sleepInterruptible(ctx, delay)
			}
			s.runWorker(ctx, sess)
		}(sess, delay)
	}

	wg.Wait()
}

func (s *Supervisor) runWorker(ctx context.Context, sess Session) {
	cfg := sess.Cfg
	w := sess.Worker

	for s.isRunning() && ctx.Err() == nil {
		if err := w.Connect(); err != nil {
			s.log.Warnf("%s:%d failed to connect, sleeping and reconnecting: %v", cfg.ServerHost, cfg.ServerPort, err)
			if cfg.IsTDoA {
				s.setTDoAStatus(TDoAConnectFailed)
				break
			}
			s.sleepInterruptible(ctx, 15*time.Second)
			continue
		}

		runErr := s.runConnected(ctx, sess)
		if runErr == nil {
			continue
		}

		switch {
		case kiwierr.Is(runErr, kiwierr.KindServerTerminated):
			s.log.Warnf("%s:%d %v. Reconnecting after 5 seconds", cfg.ServerHost, cfg.ServerPort, runErr)
			w.Close()
			s.sleepInterruptible(ctx, 5*time.Second)
			continue

		case kiwierr.Is(runErr, kiwierr.KindTooBusy):
			s.log.Warnf("%s:%d too busy now. Reconnecting after 15 seconds", cfg.ServerHost, cfg.ServerPort)
			if cfg.IsTDoA {
				s.setTDoAStatus(TDoATooBusy)
				w.Close()
				return
			}
			s.sleepInterruptible(ctx, 15*time.Second)
			continue

		case kiwierr.Is(runErr, kiwierr.KindTimeLimit):
			w.Close()
			return

		default:
			if cfg.IsTDoA {
				s.setTDoAStatus(TDoAConnectFailed)
			}
			s.log.Errorf("%s:%d session error: %v", cfg.ServerHost, cfg.ServerPort, runErr)
			w.Close()
			s.Stop()
			return
		}
	}
	w.Close()
}

// runConnected drives Open then RunOnce in a loop until the run flag
// clears or an error ends the session, mirroring the inner "while
// self._do_run(): self._recorder.run()" loop.
func (s *Supervisor) runConnected(ctx context.Context, sess Session) error {
	w := sess.Worker
	if err := w.Open(); err != nil {
		return err
	}
	for s.isRunning() && ctx.Err() == nil {
		if err := w.RunOnce(); err != nil {
			return err
		}
	}
	return nil
}
