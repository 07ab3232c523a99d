package gamesession

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/chessboard-client/internal/boardcodec"
	"github.com/park285/chessboard-client/internal/protocol"
	"github.com/park285/chessboard-client/internal/transport"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type fakeConn struct {
	in        chan string
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	out    []string
	reason string
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan string, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) (string, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return "", errors.New("use of closed connection")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, frame string) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.mu.Lock()
	c.out = append(c.out, frame)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close(reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.out...)
}

type fakeDialer struct {
	gate chan struct{}
	err  error

	dials atomic.Int32
	mu    sync.Mutex
	conns []*fakeConn
	// prevClosed[i] records whether every earlier conn was closed when dial i started
	prevClosed []bool
	// prevCanceled[i] records whether every earlier dial context was done when dial i started
	prevCanceled []bool
	ctxs         []context.Context
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.dials.Add(1)
	d.mu.Lock()
	allClosed := true
	for _, c := range d.conns {
		if !c.isClosed() {
			allClosed = false
		}
	}
	d.prevClosed = append(d.prevClosed, allClosed)
	allCanceled := true
	for _, c := range d.ctxs {
		if c.Err() == nil {
			allCanceled = false
		}
	}
	d.prevCanceled = append(d.prevCanceled, allCanceled)
	d.ctxs = append(d.ctxs, ctx)
	d.mu.Unlock()

	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type recorder struct {
	boards chan BoardUpdate
	evals  chan EvalUpdate
	states chan State
	errs   chan error
}

func newRecorder() *recorder {
	return &recorder{
		boards: make(chan BoardUpdate, 32),
		evals:  make(chan EvalUpdate, 32),
		states: make(chan State, 32),
		errs:   make(chan error, 32),
	}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		Board: func(u BoardUpdate) { r.boards <- u },
		Eval:  func(u EvalUpdate) { r.evals <- u },
		State: func(s State) { r.states <- s },
		Error: func(err error) { r.errs <- err },
	}
}

func newTestSession(t *testing.T, d transport.Dialer, policy RestartPolicy, r *recorder) *Session {
	t.Helper()
	s, err := New(d, Options{Endpoint: "ws://localhost:8080/echo", Side: "white", EvalLimit: 2000, RestartPolicy: policy}, r.handlers())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func connected(t *testing.T, s *Session, d *fakeDialer, idx int) *fakeConn {
	t.Helper()
	waitFor(t, "connected", func() bool { return s.State() == Connected && d.conn(idx) != nil })
	return d.conn(idx)
}

func nextBoard(t *testing.T, r *recorder) BoardUpdate {
	t.Helper()
	select {
	case u := <-r.boards:
		return u
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for board update")
	}
	return BoardUpdate{}
}

func nextEval(t *testing.T, r *recorder) EvalUpdate {
	t.Helper()
	select {
	case u := <-r.evals:
		return u
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for eval update")
	}
	return EvalUpdate{}
}

func TestOpenConnectsThenHandshakes(t *testing.T) {
	d := &fakeDialer{gate: make(chan struct{})}
	r := newRecorder()
	s := newTestSession(t, d, RestartKeepsGameOver, r)

	if s.State() != Disconnected {
		t.Fatalf("expected disconnected, got %s", s.State())
	}
	if !s.Open() {
		t.Fatalf("Open returned false")
	}
	if s.State() != Connecting {
		t.Fatalf("expected connecting right after Open, got %s", s.State())
	}
	if s.Open() {
		t.Fatalf("second Open while connecting should be a no-op")
	}
	close(d.gate)
	c := connected(t, s, d, 0)

	waitFor(t, "handshake", func() bool { return len(c.written()) == 1 })
	if got := c.written()[0]; got != "white" {
		t.Fatalf("expected handshake white, got %q", got)
	}
	if d.dials.Load() != 1 {
		t.Fatalf("expected 1 dial, got %d", d.dials.Load())
	}
	if st := <-r.states; st != Connecting {
		t.Fatalf("first state event: %s", st)
	}
	if st := <-r.states; st != Connected {
		t.Fatalf("second state event: %s", st)
	}
}

func TestBoardAndEvalFrames(t *testing.T) {
	d := &fakeDialer{}
	r := newRecorder()
	s := newTestSession(t, d, RestartKeepsGameOver, r)
	s.Open()
	c := connected(t, s, d, 0)

	c.in <- startFEN
	u := nextBoard(t, r)
	if len(u.Board) != 32 || u.Board["a8"] != "bR" || u.Board["e1"] != "wK" {
		t.Fatalf("unexpected board %v", u.Board)
	}
	if _, ok := u.Board["e4"]; ok {
		t.Fatalf("e4 should be empty")
	}
	if u.Final || u.Raw != startFEN || u.State.Turn != boardcodec.ColorWhite {
		t.Fatalf("unexpected update %+v", u)
	}

	c.in <- "eval 1000"
	if e := nextEval(t, r); e.Score != 75 || e.Raw != 1000 {
		t.Fatalf("eval 1000: %+v", e)
	}
	c.in <- "eval -2500"
	if e := nextEval(t, r); e.Score != 0 {
		t.Fatalf("eval -2500: %+v", e)
	}
	if !s.Board().Equal(boardcodec.StartingBoard()) {
		t.Fatalf("session board not retained")
	}
	if s.FEN() != startFEN {
		t.Fatalf("FEN: %q", s.FEN())
	}
}

func TestCheckmateIsTerminal(t *testing.T) {
	d := &fakeDialer{}
	r := newRecorder()
	s := newTestSession(t, d, RestartKeepsGameOver, r)
	s.Open()
	c := connected(t, s, d, 0)

	c.in <- startFEN
	nextBoard(t, r)
	c.in <- "Checkmate"
	final := nextBoard(t, r)
	if !final.Final || final.Raw != "Checkmate" || final.Outcome != protocol.OutcomeCheckmate {
		t.Fatalf("unexpected final update %+v", final)
	}
	if !final.Board.Equal(boardcodec.StartingBoard()) {
		t.Fatalf("final update should carry the last good board")
	}
	if s.State() != GameOver {
		t.Fatalf("expected game over, got %s", s.State())
	}

	// a repeated terminal signal does not fire again
	c.in <- "Checkmate"
	waitFor(t, "ignored terminal", func() bool { return s.Stats().Ignored == 1 })
	select {
	case u := <-r.boards:
		t.Fatalf("unexpected board update %+v", u)
	default:
	}

	if s.Open() {
		t.Fatalf("Open must be a no-op in game over")
	}
	c.Close("server gone")
	waitFor(t, "transport loss", func() bool { return s.Stats().TransportErrors == 1 })
	if s.State() != GameOver {
		t.Fatalf("transport close must not leave game over, got %s", s.State())
	}
	if s.Open() {
		t.Fatalf("Open after close must still be a no-op")
	}
	time.Sleep(20 * time.Millisecond)
	if n := d.dials.Load(); n != 1 {
		t.Fatalf("expected no new dial, got %d dials", n)
	}
}

func TestFramesAfterGameOverStillApplied(t *testing.T) {
	d := &fakeDialer{}
	r := newRecorder()
	s := newTestSession(t, d, RestartKeepsGameOver, r)
	s.Open()
	c := connected(t, s, d, 0)

	c.in <- "Draw"
	if u := nextBoard(t, r); !u.Final || u.Outcome != protocol.OutcomeDraw || u.Board != nil {
		t.Fatalf("unexpected final update %+v", u)
	}
	c.in <- "8/8/8/4k3/8/8/4K3/8 w - - 0 80"
	if u := nextBoard(t, r); u.Final || len(u.Board) != 2 {
		t.Fatalf("post-terminal board not applied: %+v", u)
	}
	if s.State() != GameOver {
		t.Fatalf("expected game over to hold, got %s", s.State())
	}
}

func TestTransportCloseDoesNotReconnect(t *testing.T) {
	d := &fakeDialer{}
	r := newRecorder()
	s := newTestSession(t, d, RestartKeepsGameOver, r)
	s.Open()
	c := connected(t, s, d, 0)

	c.Close("reset by peer")
	waitFor(t, "disconnected", func() bool { return s.State() == Disconnected })
	time.Sleep(20 * time.Millisecond)
	if n := d.dials.Load(); n != 1 {
		t.Fatalf("transport close must not redial, got %d dials", n)
	}
	select {
	case err := <-r.errs:
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("expected ErrTransport, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected transport error report")
	}

	if !s.Open() {
		t.Fatalf("explicit Open should reconnect")
	}
	connected(t, s, d, 1)
	if n := d.dials.Load(); n != 2 {
		t.Fatalf("expected 2 dials, got %d", n)
	}
}

func TestDialFailure(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	r := newRecorder()
	s := newTestSession(t, d, RestartKeepsGameOver, r)
	s.Open()
	waitFor(t, "dial failure", func() bool { return s.Stats().TransportErrors == 1 })
	if s.State() != Disconnected {
		t.Fatalf("expected disconnected, got %s", s.State())
	}
	if err := <-r.errs; !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestMalformedFramesKeepLastGoodState(t *testing.T) {
	d := &fakeDialer{}
	r := newRecorder()
	s := newTestSession(t, d, RestartKeepsGameOver, r)
	s.Open()
	c := connected(t, s, d, 0)

	c.in <- startFEN
	nextBoard(t, r)
	c.in <- "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP w KQkq - 0 1"
	c.in <- "eval not-a-number"
	c.in <- "hello"
	c.in <- "eval 0"
	if e := nextEval(t, r); e.Score != 50 {
		t.Fatalf("eval 0: %+v", e)
	}

	st := s.Stats()
	if st.MalformedPlacement != 1 || st.MalformedEval != 1 || st.ProtocolViolations != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.Errors() != 3 || st.FramesIn != 5 || st.BoardUpdates != 1 || st.EvalUpdates != 1 {
		t.Fatalf("unexpected totals %+v", st)
	}
	if !s.Board().Equal(boardcodec.StartingBoard()) {
		t.Fatalf("last good board must be retained")
	}
	select {
	case u := <-r.boards:
		t.Fatalf("malformed frame produced board update %+v", u)
	default:
	}
	for i := 0; i < 3; i++ {
		select {
		case <-r.errs:
		case <-time.After(time.Second):
			t.Fatalf("expected 3 error reports, got %d", i)
		}
	}
	if s.State() != Connected {
		t.Fatalf("bad frames must not drop the session, got %s", s.State())
	}
}

func TestRestartClosesOldTransportFirst(t *testing.T) {
	d := &fakeDialer{}
	r := newRecorder()
	s := newTestSession(t, d, RestartKeepsGameOver, r)
	s.Open()
	old := connected(t, s, d, 0)

	if !s.Restart() {
		t.Fatalf("Restart returned false")
	}
	fresh := connected(t, s, d, 1)
	if !old.isClosed() {
		t.Fatalf("old transport not closed")
	}
	d.mu.Lock()
	closedFirst := d.prevClosed[1]
	d.mu.Unlock()
	if !closedFirst {
		t.Fatalf("new dial started before the old transport was closed")
	}
	waitFor(t, "second handshake", func() bool { return len(fresh.written()) == 1 })

	// the discarded transport's loss is not reported as a transport error
	time.Sleep(20 * time.Millisecond)
	if s.Stats().TransportErrors != 0 {
		t.Fatalf("stale transport counted: %+v", s.Stats())
	}
	if s.State() != Connected {
		t.Fatalf("expected connected, got %s", s.State())
	}
}

func TestRestartAbortsDialInFlight(t *testing.T) {
	d := &fakeDialer{gate: make(chan struct{})}
	r := newRecorder()
	s := newTestSession(t, d, RestartKeepsGameOver, r)
	s.Open()
	waitFor(t, "first dial", func() bool { return d.dials.Load() == 1 })

	if !s.Restart() {
		t.Fatalf("Restart returned false")
	}
	waitFor(t, "second dial", func() bool { return d.dials.Load() == 2 })
	d.mu.Lock()
	firstErr := d.ctxs[0].Err()
	canceledFirst := d.prevCanceled[1]
	d.mu.Unlock()
	if firstErr == nil || !canceledFirst {
		t.Fatalf("discarded dial still running when the new dial started (err=%v)", firstErr)
	}

	close(d.gate)
	c := connected(t, s, d, 0)
	waitFor(t, "handshake", func() bool { return len(c.written()) == 1 })
	if d.dials.Load() != 2 {
		t.Fatalf("expected 2 dials, got %d", d.dials.Load())
	}
	if s.Stats().TransportErrors != 0 {
		t.Fatalf("aborted dial counted as a transport error: %+v", s.Stats())
	}
}

func TestRestartPolicy(t *testing.T) {
	d := &fakeDialer{}
	r := newRecorder()
	s := newTestSession(t, d, RestartKeepsGameOver, r)
	s.Open()
	c := connected(t, s, d, 0)
	c.in <- "Checkmate"
	nextBoard(t, r)
	if s.Restart() {
		t.Fatalf("restart must be refused in game over with keep policy")
	}
	if s.State() != GameOver || d.dials.Load() != 1 {
		t.Fatalf("state %s dials %d", s.State(), d.dials.Load())
	}

	d2 := &fakeDialer{}
	r2 := newRecorder()
	s2 := newTestSession(t, d2, RestartClearsGameOver, r2)
	s2.Open()
	c2 := connected(t, s2, d2, 0)
	c2.in <- "Checkmate"
	nextBoard(t, r2)
	if !s2.Restart() {
		t.Fatalf("restart must leave game over with clear policy")
	}
	connected(t, s2, d2, 1)
	if !c2.isClosed() {
		t.Fatalf("old transport must be closed on restart")
	}
}

func TestSend(t *testing.T) {
	d := &fakeDialer{}
	r := newRecorder()
	s := newTestSession(t, d, RestartKeepsGameOver, r)
	if err := s.Send(context.Background(), "wP-e2-e4"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	s.Open()
	c := connected(t, s, d, 0)
	if err := s.Send(context.Background(), "wP-e2-e4"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := c.written()
	if len(got) != 2 || got[0] != "white" || got[1] != "wP-e2-e4" {
		t.Fatalf("unexpected outbound frames %v", got)
	}
	if s.Stats().FramesOut != 2 {
		t.Fatalf("FramesOut: %+v", s.Stats())
	}
}

func TestCloseIsFinal(t *testing.T) {
	d := &fakeDialer{}
	r := newRecorder()
	s := newTestSession(t, d, RestartKeepsGameOver, r)
	s.Open()
	c := connected(t, s, d, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !c.isClosed() {
		t.Fatalf("transport not closed")
	}
	if s.Open() || s.Restart() {
		t.Fatalf("closed session must not reopen")
	}
	if s.State() != Disconnected {
		t.Fatalf("expected disconnected, got %s", s.State())
	}
	if s.Stats().TransportErrors != 0 {
		t.Fatalf("shutdown counted as transport error")
	}
}

func TestParseRestartPolicy(t *testing.T) {
	if p, err := ParseRestartPolicy(""); err != nil || p != RestartKeepsGameOver {
		t.Fatalf("default: %v %v", p, err)
	}
	if p, err := ParseRestartPolicy("clear-game-over"); err != nil || p != RestartClearsGameOver {
		t.Fatalf("clear: %v %v", p, err)
	}
	if _, err := ParseRestartPolicy("sometimes"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(nil, Options{Endpoint: "ws://x:1/a", Side: "white"}, Handlers{}); err == nil {
		t.Fatalf("nil dialer accepted")
	}
	if _, err := New(&fakeDialer{}, Options{Side: "white"}, Handlers{}); err == nil {
		t.Fatalf("empty endpoint accepted")
	}
	if _, err := New(&fakeDialer{}, Options{Endpoint: "ws://x:1/a"}, Handlers{}); err == nil {
		t.Fatalf("empty side accepted")
	}
}
