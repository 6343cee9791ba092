// Package session drives one TCP connection to an Anthem receiver: the
// handshake, input discovery, the read loop and the outbound write path.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/strefethen/anthem-hub-go/internal/anthem/protocol"
	"github.com/strefethen/anthem-hub-go/internal/anthem/state"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultCommandDelay   = 100 * time.Millisecond
	DefaultReadTimeout    = 120 * time.Second
	DefaultWriteTimeout   = 5 * time.Second

	// discoveryWindow is how long to wait for the last name replies
	// before reporting missing inputs.
	discoveryWindow = time.Second

	readBufferSize = 4096
)

var (
	ErrNotConnected    = errors.New("session not connected")
	ErrConnectFailed   = errors.New("connect failed")
	ErrHandshakeFailed = errors.New("handshake failed")
	ErrNonASCII        = errors.New("command contains non-ASCII characters")
)

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Dialer opens the transport. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options configures a Session. Zero values take the defaults above; a
// negative CommandDelay disables command spacing.
type Options struct {
	Host string
	Port int
	// Zones lists the enabled zone numbers queried during the handshake.
	Zones []int
	// Terminator is the line terminator used in both directions.
	Terminator byte
	// NativeMuteToggle enables the MUTt command.
	NativeMuteToggle bool
	// SeedInputs is a previously discovered source list.
	SeedInputs []string

	ConnectTimeout time.Duration
	CommandDelay   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	Dialer Dialer
	Logger *log.Logger
	Debug  bool
}

// Session is a single receiver connection. It never reconnects on its own;
// callers decide when to call Connect again.
type Session struct {
	opts   Options
	addr   string
	logger *log.Logger
	store  *state.Store
	events *broker

	writeMu sync.Mutex

	mu            sync.Mutex
	state         State
	conn          net.Conn
	dialect       protocol.Dialect
	attempt       uint64
	connectCancel context.CancelFunc
	loopCancel    context.CancelFunc
	// loopDone belongs to the most recent read loop and stays set after
	// release so Disconnect can wait for a loop that released itself.
	loopDone chan struct{}
}

// New creates a disconnected session.
func New(opts Options) *Session {
	if opts.Port == 0 {
		opts.Port = protocol.DefaultPort
	}
	if opts.Terminator == 0 {
		opts.Terminator = protocol.TerminatorSemicolon
	}
	if len(opts.Zones) == 0 {
		opts.Zones = []int{1}
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.CommandDelay < 0 {
		opts.CommandDelay = 0
	} else if opts.CommandDelay == 0 {
		opts.CommandDelay = DefaultCommandDelay
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	return &Session{
		opts:    opts,
		addr:    addr,
		logger:  logger,
		store:   state.NewStore(opts.SeedInputs, state.WithLogger(logger)),
		events:  newBroker(logger, addr),
		dialect: protocol.DialectForModel("", opts.NativeMuteToggle),
	}
}

// Addr returns host:port of the receiver.
func (s *Session) Addr() string { return s.addr }

// Store exposes the cached zone state and capabilities.
func (s *Session) Store() *state.Store { return s.store }

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dialect returns the command dialect selected from the learned model.
func (s *Session) Dialect() protocol.Dialect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialect
}

// Subscribe registers an event listener. Events are dropped rather than
// blocking the read loop when the channel is full. cancel closes the
// channel and may be called more than once.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	return s.events.subscribe(buffer)
}

// Connect dials the receiver, starts the read loop and runs the handshake.
// It is a no-op when the session is already connecting or connected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.attempt++
	attempt := s.attempt
	dialCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	s.connectCancel = cancel
	s.mu.Unlock()
	s.events.publish(ConnectionChanged{State: StateConnecting})

	conn, err := s.opts.Dialer.DialContext(dialCtx, "tcp", s.addr)
	cancel()

	s.mu.Lock()
	if err != nil || s.state != StateConnecting || s.attempt != attempt {
		aborted := err == nil
		if s.attempt == attempt {
			s.connectCancel = nil
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		s.events.publish(ConnectionChanged{State: StateDisconnected})
		if aborted {
			return fmt.Errorf("%w: %s: disconnected during dial", ErrConnectFailed, s.addr)
		}
		return fmt.Errorf("%w: %s: %v", ErrConnectFailed, s.addr, err)
	}
	loopCtx, loopCancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.connectCancel = nil
	s.conn = conn
	s.loopCancel = loopCancel
	s.loopDone = done
	s.state = StateHandshaking
	encoder := protocol.NewEncoder(s.dialect)
	s.mu.Unlock()
	s.events.publish(ConnectionChanged{State: StateHandshaking})

	s.logger.Printf("ANTHEM: Connected to %s", s.addr)
	go s.readLoop(loopCtx, conn, done)

	for i, cmd := range encoder.Handshake(s.opts.Zones) {
		if i > 0 {
			if err := sleepContext(ctx, s.opts.CommandDelay); err != nil {
				s.release(conn, false)
				return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
			}
		}
		if err := s.Send(ctx, cmd); err != nil {
			s.release(conn, false)
			return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		}
	}

	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return fmt.Errorf("%w: connection lost", ErrHandshakeFailed)
	}
	s.state = StateReady
	s.mu.Unlock()
	s.events.publish(ConnectionChanged{State: StateReady})
	return nil
}

// Disconnect tears the connection down and waits for the read loop to
// exit. It is safe to call at any time, including more than once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.connectCancel != nil {
		s.connectCancel()
		s.connectCancel = nil
		if s.conn == nil {
			s.state = StateDisconnected
		}
	}
	conn := s.conn
	done := s.loopDone
	s.mu.Unlock()

	if conn != nil {
		s.release(conn, false)
	}
	// The loop may already be releasing conn on its own.
	if done != nil {
		<-done
	}
}

// Close disconnects and closes every subscriber channel.
func (s *Session) Close() {
	s.Disconnect()
	s.events.closeAll()
}

// Send writes one command followed by the terminator.
func (s *Session) Send(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := 0; i < len(cmd); i++ {
		if cmd[i] >= 0x80 {
			return fmt.Errorf("%w: %q", ErrNonASCII, cmd)
		}
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	_, err := io.WriteString(conn, cmd+string(s.opts.Terminator))
	s.writeMu.Unlock()

	if err != nil {
		s.logger.Printf("ANTHEM: [%s] Write %q failed: %v", s.addr, cmd, err)
		s.release(conn, false)
		return fmt.Errorf("send %q: %w", cmd, err)
	}
	if s.opts.Debug {
		s.logger.Printf("ANTHEM: [DEBUG] [%s] -> %s", s.addr, cmd)
	}
	return nil
}

// release tears down conn if it is still the active connection. fromLoop
// is set when the read loop itself is the caller and must not be waited on.
func (s *Session) release(conn net.Conn, fromLoop bool) {
	s.mu.Lock()
	if conn == nil || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateDisconnected
	cancel := s.loopCancel
	done := s.loopDone
	s.loopCancel = nil
	s.mu.Unlock()

	cancel()
	if !fromLoop {
		// Wake the blocked read so the loop observes the cancellation.
		_ = conn.SetReadDeadline(time.Now())
		<-done
	}
	conn.Close()

	s.logger.Printf("ANTHEM: Disconnected from %s", s.addr)
	s.events.publish(ConnectionChanged{State: StateDisconnected})
}

func (s *Session) readLoop(ctx context.Context, conn net.Conn, done chan struct{}) {
	defer close(done)

	framer := protocol.NewFramer(s.opts.Terminator)
	defer func() {
		if n := framer.Buffered(); n > 0 {
			s.logger.Printf("ANTHEM: [%s] Dropped %d bytes of unterminated input", s.addr, n)
		}
	}()
	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			for _, line := range framer.Push(buf[:n]) {
				if ctx.Err() != nil {
					return
				}
				s.handleLine(ctx, line)
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if s.opts.Debug {
				s.logger.Printf("ANTHEM: [DEBUG] [%s] Read idle for %s", s.addr, s.opts.ReadTimeout)
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			s.logger.Printf("ANTHEM: [%s] Connection closed by receiver", s.addr)
		} else {
			s.logger.Printf("ANTHEM: [%s] Read failed: %v", s.addr, err)
		}
		s.release(conn, true)
		return
	}
}

func (s *Session) handleLine(ctx context.Context, line string) {
	if s.opts.Debug {
		s.logger.Printf("ANTHEM: [DEBUG] [%s] <- %s", s.addr, line)
	}

	msg := protocol.Parse(line, s.Dialect().InputNames)
	fx := s.store.Apply(msg)
	if fx.Empty() {
		return
	}

	if fx.ModelLearned != "" {
		s.mu.Lock()
		s.dialect = protocol.DialectForModel(fx.ModelLearned, s.opts.NativeMuteToggle)
		dialect := s.dialect
		s.mu.Unlock()
		s.logger.Printf("ANTHEM: [%s] Model %s, input names %s", s.addr, fx.ModelLearned, dialect.InputNames)
	}

	if fx.DeviceError != "" {
		fault := DeviceFault{Line: fx.DeviceError}
		if dev, ok := msg.(protocol.DeviceError); ok {
			fault.Code = dev.Code
		}
		s.logger.Printf("ANTHEM: [%s] Receiver rejected command: %s", s.addr, fx.DeviceError)
		s.events.publish(fault)
	}

	if fx.StandbyDisabled {
		go func() {
			if err := s.Send(ctx, protocol.CmdStandbyIPControl); err != nil {
				s.logger.Printf("ANTHEM: [%s] Re-enabling standby IP control failed: %v", s.addr, err)
			}
		}()
	}

	if fx.StartDiscovery > 0 {
		go s.discoverInputs(ctx, fx.StartDiscovery)
	}

	for _, change := range fx.ZoneChanges {
		s.events.publish(ZoneChanged{Zone: change.Zone, Changed: change.Changed, State: change.State})
	}

	if fx.DiscoveryComplete != nil {
		s.logger.Printf("ANTHEM: [%s] Discovered %d inputs", s.addr, len(fx.DiscoveryComplete))
		s.events.publish(InputsDiscovered{Inputs: fx.DiscoveryComplete})
	}
}

// discoverInputs queries every input name. Completion is observed through
// the store, not through a reply.
func (s *Session) discoverInputs(ctx context.Context, count int) {
	encoder := protocol.NewEncoder(s.Dialect())
	for i := 1; i <= count; i++ {
		if err := sleepContext(ctx, s.opts.CommandDelay); err != nil {
			return
		}
		if err := s.Send(ctx, encoder.InputNameQuery(i)); err != nil {
			if s.opts.Debug {
				s.logger.Printf("ANTHEM: [DEBUG] [%s] Input discovery stopped: %v", s.addr, err)
			}
			return
		}
	}

	if err := sleepContext(ctx, discoveryWindow); err != nil {
		return
	}
	if missing := s.store.MissingInputs(); len(missing) > 0 {
		s.logger.Printf("ANTHEM: [%s] Input discovery incomplete, no name for inputs %v", s.addr, missing)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
