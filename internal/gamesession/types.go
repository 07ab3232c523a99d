package gamesession

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/park285/chessboard-client/internal/boardcodec"
	"github.com/park285/chessboard-client/internal/protocol"
	"go.uber.org/zap"
)

// State is the session lifecycle state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	// GameOver is terminal for Open; only Restart under RestartClearsGameOver leaves it.
	GameOver
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case GameOver:
		return "game_over"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// RestartPolicy decides whether Restart may leave GameOver.
type RestartPolicy int

const (
	RestartKeepsGameOver RestartPolicy = iota
	RestartClearsGameOver
)

func (p RestartPolicy) String() string {
	if p == RestartClearsGameOver {
		return "clear-game-over"
	}
	return "keep-game-over"
}

// ParseRestartPolicy accepts "keep-game-over" (also "") and "clear-game-over".
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep-game-over", "keep":
		return RestartKeepsGameOver, nil
	case "clear-game-over", "clear":
		return RestartClearsGameOver, nil
	default:
		return RestartKeepsGameOver, fmt.Errorf("unknown restart policy %q", s)
	}
}

// BoardUpdate is an authoritative snapshot pushed by the server.
// A Final update carries the terminal payload in Raw and the last good board.
type BoardUpdate struct {
	Seq     uint64
	Board   boardcodec.Board
	State   boardcodec.GameState
	Raw     string
	Final   bool
	Outcome protocol.Outcome
}

// EvalUpdate carries the raw engine value and its 0..100 display score.
type EvalUpdate struct {
	Raw   float64
	Score float64
}

// Handlers are invoked from the session's read goroutine, in frame order.
// They must not call Close.
type Handlers struct {
	Board func(BoardUpdate)
	Eval  func(EvalUpdate)
	State func(State)
	Error func(error)
}

// Options configures a Session. Endpoint and Side are required.
type Options struct {
	Endpoint      string
	Side          string
	EvalLimit     float64
	RestartPolicy RestartPolicy
	DialTimeout   time.Duration
	WriteTimeout  time.Duration
	// PingInterval > 0 enables heartbeats on transports that support them.
	PingInterval time.Duration
	Logger       *zap.Logger
}

const (
	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// Stats counts frames and failures over the session's lifetime.
type Stats struct {
	FramesIn           uint64
	FramesOut          uint64
	BoardUpdates       uint64
	EvalUpdates        uint64
	Terminals          uint64
	Ignored            uint64
	MalformedPlacement uint64
	MalformedEval      uint64
	ProtocolViolations uint64
	TransportErrors    uint64
}

// Errors is the number of rejected inbound frames.
func (s Stats) Errors() uint64 {
	return s.MalformedPlacement + s.MalformedEval + s.ProtocolViolations
}

type counters struct {
	framesIn, framesOut             atomic.Uint64
	board, eval, terminal, ignored  atomic.Uint64
	malformedPlacement, malformedEv atomic.Uint64
	violations, transport           atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		FramesIn:           c.framesIn.Load(),
		FramesOut:          c.framesOut.Load(),
		BoardUpdates:       c.board.Load(),
		EvalUpdates:        c.eval.Load(),
		Terminals:          c.terminal.Load(),
		Ignored:            c.ignored.Load(),
		MalformedPlacement: c.malformedPlacement.Load(),
		MalformedEval:      c.malformedEv.Load(),
		ProtocolViolations: c.violations.Load(),
		TransportErrors:    c.transport.Load(),
	}
}

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

var (
	ErrNotConnected = errf("session not connected")
	ErrTransport    = errf("transport error")
)
