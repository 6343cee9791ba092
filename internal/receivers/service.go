// Package receivers supervises one session per configured receiver and
// fans its events out to the websocket hub, external sinks, the input
// cache and the event log.
package receivers

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strefethen/anthem-hub-go/internal/anthem/session"
	"github.com/strefethen/anthem-hub-go/internal/audit"
	"github.com/strefethen/anthem-hub-go/internal/config"
	"github.com/strefethen/anthem-hub-go/internal/events"
	"github.com/strefethen/anthem-hub-go/internal/publish"
)

const (
	eventBuffer    = 256
	sinkTimeout    = 2 * time.Second
	refreshTimeout = 10 * time.Second
)

// Options carries the optional collaborators of a Service.
type Options struct {
	Hub      *events.Hub
	Sinks    []publish.Sink
	Inputs   InputStore
	EventLog EventRecorder
	Dialer   session.Dialer
	Logger   *log.Logger
}

type receiver struct {
	cfg     config.DeviceConfig
	session *session.Session

	// lost is signalled when the session drops to disconnected; reconnect
	// asks the supervisor to skip its wait.
	lost      chan struct{}
	reconnect chan struct{}

	mu          sync.RWMutex
	connectedAt time.Time
	lastError   string
}

// Service owns every receiver session.
type Service struct {
	cfg    config.Config
	logger *log.Logger
	opts   Options
	policy session.RetryPolicy
	now    func() time.Time

	order     []string
	receivers map[string]*receiver

	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewService builds a session per device. Devices without discovered
// inputs in their config are seeded from the input cache.
func NewService(cfg config.Config, devices []config.DeviceConfig, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		cfg:    cfg,
		logger: logger,
		opts:   opts,
		policy: session.RetryPolicy{
			MaxAttempts: cfg.ConnectMaxAttempts,
			BaseDelay:   cfg.ConnectBaseDelay(),
			Multiplier:  cfg.ConnectBackoffMultiplier,
		},
		now:       time.Now,
		receivers: make(map[string]*receiver, len(devices)),
		ctx:       ctx,
		cancel:    cancel,
		stopCh:    make(chan struct{}),
	}

	for _, device := range devices {
		seed := device.DiscoveredInputs
		if len(seed) == 0 && opts.Inputs != nil {
			cached, err := opts.Inputs.Load(device.ID)
			if err != nil {
				logger.Printf("RECEIVERS: Failed to load cached inputs for %s: %v", device.ID, err)
			} else if len(cached) > 0 {
				logger.Printf("RECEIVERS: Seeding %s with %d cached inputs", device.ID, len(cached))
				seed = cached
			}
		}

		sess := session.New(session.Options{
			Host:             device.Host,
			Port:             device.Port,
			Zones:            device.EnabledZones(),
			Terminator:       device.TerminatorByte(),
			NativeMuteToggle: device.MuteToggle,
			SeedInputs:       seed,
			ConnectTimeout:   device.Timeout(),
			CommandDelay:     commandDelay(cfg),
			ReadTimeout:      cfg.ReadTimeout(),
			Dialer:           opts.Dialer,
			Logger:           logger,
			Debug:            cfg.Debug,
		})

		svc.order = append(svc.order, device.ID)
		svc.receivers[device.ID] = &receiver{
			cfg:       device,
			session:   sess,
			lost:      make(chan struct{}, 1),
			reconnect: make(chan struct{}, 1),
		}
	}

	if opts.Inputs != nil {
		if removed, err := opts.Inputs.Prune(svc.order); err != nil {
			logger.Printf("RECEIVERS: Failed to prune cached inputs: %v", err)
		} else if removed > 0 {
			logger.Printf("RECEIVERS: Dropped cached inputs for %d unconfigured receiver(s)", removed)
		}
	}

	return svc
}

// commandDelay maps COMMAND_DELAY_MS=0 to "no spacing".
func commandDelay(cfg config.Config) time.Duration {
	if cfg.CommandDelayMs <= 0 {
		return -1
	}
	return cfg.CommandDelay()
}

// Start launches the supervisors, event pumps and the refresh job.
func (s *Service) Start() error {
	for _, id := range s.order {
		r := s.receivers[id]
		ch, _ := r.session.Subscribe(eventBuffer)

		s.wg.Add(2)
		go s.pump(r, ch)
		go s.supervise(r)
	}

	if s.cfg.StatusRefreshCron != "" {
		s.cron = cron.New(
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithLogger(cron.PrintfLogger(s.logger)),
		)
		if _, err := s.cron.AddFunc(s.cfg.StatusRefreshCron, s.RefreshAll); err != nil {
			return fmt.Errorf("invalid STATUS_REFRESH_CRON %q: %w", s.cfg.StatusRefreshCron, err)
		}
		s.cron.Start()
		s.logger.Printf("RECEIVERS: Status refresh scheduled (%s)", s.cfg.StatusRefreshCron)
	}

	s.logger.Printf("RECEIVERS: Supervising %d receiver(s)", len(s.order))
	return nil
}

// Stop ends supervision and closes every session. Safe to call twice.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		s.cancel()
		close(s.stopCh)
		for _, id := range s.order {
			s.receivers[id].session.Close()
		}
		s.wg.Wait()
		s.logger.Printf("RECEIVERS: Stopped")
	})
}

// supervise connects with the retry policy, then waits for the connection
// to drop and starts over. Between failed rounds it waits
// ReconnectInterval unless a reconnect is requested.
func (s *Service) supervise(r *receiver) {
	defer s.wg.Done()

	for {
		drain(r.lost)
		err := session.ConnectWithRetry(s.ctx, r.session, s.policy, s.logger)
		if s.ctx.Err() != nil {
			r.session.Disconnect()
			return
		}

		if err != nil {
			r.setError(err)
			s.record(audit.WriteEventInput{
				DeviceID: r.cfg.ID,
				Type:     audit.EventConnectFailed,
				Level:    audit.EventLevelError,
				Message:  err.Error(),
				Payload:  map[string]any{"addr": r.session.Addr()},
			})
			s.logger.Printf("RECEIVERS: %s unavailable, next attempt in %s", r.cfg.ID, s.cfg.ReconnectInterval())
			if !s.wait(r, s.cfg.ReconnectInterval()) {
				return
			}
			continue
		}

		r.setConnected(s.now())
		drain(r.reconnect)
		if !s.waitForLoss(r) {
			return
		}
		s.logger.Printf("RECEIVERS: Lost connection to %s, reconnecting", r.cfg.ID)
		if !s.wait(r, s.policy.BaseDelay) {
			return
		}
	}
}

// waitForLoss blocks until the session is no longer ready. It returns
// false on shutdown.
func (s *Service) waitForLoss(r *receiver) bool {
	for {
		select {
		case <-s.stopCh:
			return false
		case <-r.reconnect:
			r.session.Disconnect()
			return true
		case <-r.lost:
			if r.session.State() != session.StateReady {
				return true
			}
		}
	}
}

// wait sleeps d, returning early on a reconnect request. It returns false
// on shutdown.
func (s *Service) wait(r *receiver, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stopCh:
		return false
	case <-r.reconnect:
		return true
	case <-timer.C:
		return true
	}
}

// pump forwards session events in order until the session closes.
func (s *Service) pump(r *receiver, ch <-chan session.Event) {
	defer s.wg.Done()

	previous := session.StateDisconnected
	for ev := range ch {
		switch e := ev.(type) {
		case session.ConnectionChanged:
			s.onConnectionChanged(r, previous, e.State)
			previous = e.State
		case session.InputsDiscovered:
			s.onInputsDiscovered(r, e.Inputs)
		case session.DeviceFault:
			s.record(audit.WriteEventInput{
				DeviceID: r.cfg.ID,
				Type:     audit.EventDeviceFault,
				Level:    audit.EventLevelWarn,
				Message:  e.Line,
				Payload:  map[string]any{"code": e.Code},
			})
		}

		env, ok := events.NewEnvelope(r.cfg.ID, ev, s.now())
		if !ok {
			continue
		}
		if s.opts.Hub != nil {
			s.opts.Hub.Broadcast(env)
		}
		for _, sink := range s.opts.Sinks {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			if err := sink.Publish(ctx, env); err != nil {
				s.logger.Printf("RECEIVERS: Sink publish failed for %s: %v", r.cfg.ID, err)
			}
			cancel()
		}
	}
}

func (s *Service) onConnectionChanged(r *receiver, previous, current session.State) {
	switch current {
	case session.StateReady:
		s.record(audit.WriteEventInput{
			DeviceID: r.cfg.ID,
			Type:     audit.EventReceiverConnected,
			Message:  "Connected to " + r.session.Addr(),
		})
	case session.StateDisconnected:
		select {
		case r.lost <- struct{}{}:
		default:
		}
		if previous == session.StateReady || previous == session.StateHandshaking {
			r.clearConnected()
			s.record(audit.WriteEventInput{
				DeviceID: r.cfg.ID,
				Type:     audit.EventReceiverDisconnected,
				Level:    audit.EventLevelWarn,
				Message:  "Disconnected from " + r.session.Addr(),
			})
		}
	}
}

func (s *Service) onInputsDiscovered(r *receiver, inputs []string) {
	s.logger.Printf("RECEIVERS: %s reported %d inputs", r.cfg.ID, len(inputs))
	if s.opts.Inputs != nil {
		if err := s.opts.Inputs.Save(r.cfg.ID, inputs); err != nil {
			s.logger.Printf("RECEIVERS: Failed to cache inputs for %s: %v", r.cfg.ID, err)
		}
	}
	s.record(audit.WriteEventInput{
		DeviceID: r.cfg.ID,
		Type:     audit.EventInputsDiscovered,
		Message:  fmt.Sprintf("%d inputs discovered", len(inputs)),
		Payload:  map[string]any{"inputs": inputs},
	})
}

func (s *Service) record(input audit.WriteEventInput) {
	if s.opts.EventLog == nil {
		return
	}
	if _, err := s.opts.EventLog.RecordEvent(input); err != nil {
		s.logger.Printf("RECEIVERS: %v", err)
	}
}

// RefreshAll re-queries every enabled zone of every ready receiver. The
// cron job calls it; replies arrive as ordinary zone updates.
func (s *Service) RefreshAll() {
	for _, id := range s.order {
		r := s.receivers[id]
		if r.session.State() != session.StateReady {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		for _, zone := range r.cfg.EnabledZones() {
			if err := r.session.QueryAllStatus(ctx, zone); err != nil {
				s.logger.Printf("RECEIVERS: Refresh of %s zone %d failed: %v", id, zone, err)
				break
			}
		}
		cancel()
	}
}

// Reconnect drops the current connection, if any, and connects again
// without waiting for the reconnect interval.
func (s *Service) Reconnect(id string) error {
	r, ok := s.receivers[id]
	if !ok {
		return ErrReceiverNotFound
	}
	select {
	case r.reconnect <- struct{}{}:
	default:
	}
	return nil
}

func drain(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func (r *receiver) setConnected(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectedAt = at
	r.lastError = ""
}

func (r *receiver) clearConnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectedAt = time.Time{}
}

func (r *receiver) setError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastError = err.Error()
}
