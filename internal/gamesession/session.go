// Package gamesession owns the single live connection to the game server and
// turns its frames into board, evaluation and lifecycle events.
package gamesession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chessboard-client/internal/boardcodec"
	"github.com/park285/chessboard-client/internal/protocol"
	"github.com/park285/chessboard-client/internal/transport"
	"go.uber.org/zap"
)

type Session struct {
	id       string
	opts     Options
	dialer   transport.Dialer
	handlers Handlers
	logger   *zap.Logger

	mu      sync.Mutex
	state   State
	conn    transport.Conn
	gen     uint64 // bumped on every open/restart/close; fences stale goroutines
	// genCancel aborts the dial and loops of the current generation.
	genCancel context.CancelFunc
	closed  bool
	last    boardcodec.Board
	lastFEN string
	seq     uint64

	// writeM orders outbound frames; the handshake holds it until written.
	writeM   sync.Mutex
	counters counters

	wg         sync.WaitGroup
	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func New(dialer transport.Dialer, opts Options, handlers Handlers) (*Session, error) {
	if dialer == nil {
		return nil, fmt.Errorf("nil dialer")
	}
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if strings.TrimSpace(opts.Side) == "" {
		return nil, fmt.Errorf("side is required")
	}
	if opts.EvalLimit <= 0 {
		opts.EvalLimit = protocol.DefaultEvalLimit
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:         id,
		opts:       opts,
		dialer:     dialer,
		handlers:   handlers,
		logger:     logger.With(zap.String("session_id", id)),
		state:      Disconnected,
		rootCtx:    ctx,
		rootCancel: cancel,
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Stats() Stats { return s.counters.snapshot() }

// Board returns a copy of the last successfully decoded snapshot, nil before the first one.
func (s *Session) Board() boardcodec.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	return s.last.Clone()
}

// FEN returns the last authoritative game-state payload.
func (s *Session) FEN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFEN
}

// Open starts a connection attempt and returns immediately. It is a no-op returning
// false unless the session is Disconnected; in particular nothing is dialed once GameOver.
func (s *Session) Open() bool {
	s.mu.Lock()
	if s.closed || s.state != Disconnected {
		st := s.state
		closed := s.closed
		s.mu.Unlock()
		s.logger.Debug("session_open_skipped", zap.Stringer("state", st), zap.Bool("closed", closed))
		return false
	}
	s.gen++
	gen := s.gen
	s.state = Connecting
	if s.genCancel != nil {
		s.genCancel()
	}
	ctx, cancel := context.WithCancel(s.rootCtx)
	s.genCancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("session_open", zap.String("endpoint", s.opts.Endpoint), zap.String("side", s.opts.Side))
	s.notifyState(Connecting)
	go s.connect(ctx, gen)
	return true
}

// Restart tears down the current transport, then opens a new one. The old handle's
// close, or the abort of a dial still in flight, is issued before the new dial starts. From GameOver it is refused unless the
// policy is RestartClearsGameOver.
func (s *Session) Restart() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if s.state == GameOver && s.opts.RestartPolicy != RestartClearsGameOver {
		s.mu.Unlock()
		s.logger.Info("session_restart_refused", zap.Stringer("policy", s.opts.RestartPolicy))
		return false
	}
	old := s.conn
	s.conn = nil
	s.gen++
	prev := s.state
	s.state = Disconnected
	cancel := s.genCancel
	s.genCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if old != nil {
		if err := old.Close("restart"); err != nil {
			s.logger.Debug("session_restart_close", zap.Error(err))
		}
	}
	s.logger.Info("session_restart", zap.Stringer("from", prev))
	if prev != Disconnected {
		s.notifyState(Disconnected)
	}
	return s.Open()
}

// Send writes one frame on the live transport. Frames are fire-and-forget.
func (s *Session) Send(ctx context.Context, frame string) error {
	s.writeM.Lock()
	defer s.writeM.Unlock()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := s.write(ctx, conn, frame); err != nil {
		s.logger.Warn("session_send_error", zap.String("frame", frame), zap.Error(err))
		return fmt.Errorf("%w: write: %v", ErrTransport, err)
	}
	return nil
}

// Close stops the session for good: the transport is closed, goroutines are awaited
// (bounded by ctx) and later Open/Restart calls do nothing.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.gen++
	conn := s.conn
	s.conn = nil
	changed := s.state == Connecting || s.state == Connected
	if changed {
		s.state = Disconnected
	}
	cancel := s.genCancel
	s.genCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close("session closed")
	}
	s.rootCancel()
	if changed {
		s.notifyState(Disconnected)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		s.logger.Info("session_closed")
		return nil
	}
}

func (s *Session) connect(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
	conn, err := s.dialer.Dial(dialCtx, s.opts.Endpoint)
	cancel()
	if err != nil {
		s.dropTransport(gen, nil, fmt.Errorf("%w: dial: %v", ErrTransport, err))
		return
	}

	s.writeM.Lock()
	s.mu.Lock()
	if gen != s.gen || s.closed || s.state != Connecting {
		s.mu.Unlock()
		s.writeM.Unlock()
		_ = conn.Close("stale")
		return
	}
	s.conn = conn
	s.state = Connected
	s.mu.Unlock()
	werr := s.write(ctx, conn, protocol.EncodeHandshake(s.opts.Side))
	s.writeM.Unlock()

	s.logger.Info("session_connected")
	s.notifyState(Connected)
	if werr != nil {
		s.dropTransport(gen, conn, fmt.Errorf("%w: handshake: %v", ErrTransport, werr))
		return
	}

	if p, ok := conn.(transport.Pinger); ok && s.opts.PingInterval > 0 {
		s.wg.Add(1)
		go s.pingLoop(ctx, gen, conn, p)
	}
	s.readLoop(ctx, gen, conn)
}

func (s *Session) readLoop(ctx context.Context, gen uint64, conn transport.Conn) {
	for {
		frame, err := conn.Read(ctx)
		if err != nil {
			s.dropTransport(gen, conn, fmt.Errorf("%w: read: %v", ErrTransport, err))
			return
		}
		if !s.owns(gen, conn) {
			return
		}
		s.handleFrame(frame)
	}
}

func (s *Session) pingLoop(ctx context.Context, gen uint64, conn transport.Conn, p transport.Pinger) {
	defer s.wg.Done()
	t := time.NewTicker(s.opts.PingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if !s.owns(gen, conn) {
			return
		}
		pingCtx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
		err := p.Ping(pingCtx)
		cancel()
		if err == nil {
			failures = 0
			continue
		}
		failures++
		s.logger.Debug("session_ping_failed", zap.Int("failures", failures), zap.Error(err))
		if failures >= 2 {
			s.dropTransport(gen, conn, fmt.Errorf("%w: ping: %v", ErrTransport, err))
			return
		}
	}
}

// owns reports whether conn is still the live transport of generation gen.
func (s *Session) owns(gen uint64, conn transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen && s.conn == conn
}

// dropTransport handles a dial failure (conn nil) or the loss of the live transport.
// GameOver is kept; any other state becomes Disconnected. No retry is scheduled.
func (s *Session) dropTransport(gen uint64, conn transport.Conn, cause error) {
	s.mu.Lock()
	if gen != s.gen || (conn != nil && s.conn != conn) {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close("stale")
		}
		return
	}
	s.conn = nil
	changed := false
	if s.state == Connecting || s.state == Connected {
		s.state = Disconnected
		changed = true
	}
	st := s.state
	cancel := s.genCancel
	s.genCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close("transport lost")
	}
	s.counters.transport.Add(1)
	s.logger.Warn("session_transport_closed", zap.Stringer("state", st), zap.Error(cause))
	if changed {
		s.notifyState(st)
	}
	s.reportError(cause)
}

func (s *Session) handleFrame(frame string) {
	s.counters.framesIn.Add(1)
	s.logger.Debug("session_frame_in", zap.String("frame", frame))

	msg, err := protocol.Parse(frame)
	if err != nil {
		s.reject(msg, err)
		return
	}
	switch msg.Kind {
	case protocol.KindBoard:
		s.mu.Lock()
		s.last = msg.State.Board.Clone()
		s.lastFEN = msg.State.FEN
		s.seq++
		seq := s.seq
		s.mu.Unlock()
		s.counters.board.Add(1)
		if h := s.handlers.Board; h != nil {
			h(BoardUpdate{Seq: seq, Board: msg.State.Board, State: msg.State, Raw: frame})
		}
	case protocol.KindEval:
		s.counters.eval.Add(1)
		score := protocol.NormalizeEval(msg.Eval, s.opts.EvalLimit)
		if h := s.handlers.Eval; h != nil {
			h(EvalUpdate{Raw: msg.Eval, Score: score})
		}
	case protocol.KindTerminal:
		s.mu.Lock()
		if s.state == GameOver {
			s.mu.Unlock()
			s.counters.ignored.Add(1)
			s.logger.Debug("session_terminal_ignored", zap.String("frame", frame))
			return
		}
		s.state = GameOver
		var board boardcodec.Board
		if s.last != nil {
			board = s.last.Clone()
		}
		s.seq++
		seq := s.seq
		s.mu.Unlock()

		s.counters.terminal.Add(1)
		s.logger.Info("session_game_over", zap.String("outcome", string(msg.Outcome)))
		s.notifyState(GameOver)
		if h := s.handlers.Board; h != nil {
			h(BoardUpdate{Seq: seq, Board: board, Raw: frame, Final: true, Outcome: msg.Outcome})
		}
	}
}

// reject counts and logs a frame that could not be used; the last good state stays.
func (s *Session) reject(msg protocol.Message, err error) {
	switch {
	case errors.Is(err, boardcodec.ErrMalformedPlacement):
		s.counters.malformedPlacement.Add(1)
	case errors.Is(err, protocol.ErrMalformedEval):
		s.counters.malformedEv.Add(1)
	default:
		s.counters.violations.Add(1)
	}
	s.logger.Warn("session_frame_rejected", zap.Stringer("kind", msg.Kind), zap.String("frame", msg.Raw), zap.Error(err))
	s.reportError(err)
}

func (s *Session) write(ctx context.Context, conn transport.Conn, frame string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.WriteTimeout)
		defer cancel()
	}
	if err := conn.Write(ctx, frame); err != nil {
		return err
	}
	s.counters.framesOut.Add(1)
	s.logger.Debug("session_frame_out", zap.String("frame", frame))
	return nil
}

func (s *Session) notifyState(st State) {
	if h := s.handlers.State; h != nil {
		h(st)
	}
}

func (s *Session) reportError(err error) {
	if h := s.handlers.Error; h != nil && err != nil {
		h(err)
	}
}
