// Package protocol holds the plain-text wire grammar spoken with the game server.
//
// Outbound: the handshake (side string) and moves ("wP-e2-e4").
// Inbound: "eval <float>", terminal sentinels, and game-state snapshots whose
// first token is a placement string. Every inbound frame is classified into a
// tagged Message; frames that fit no kind are rejected rather than guessed.
package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/park285/chessboard-client/internal/boardcodec"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

var (
	ErrMalformedEval     = errf("malformed eval message")
	ErrProtocolViolation = errf("unrecognized message")
)

// Kind tags an inbound frame.
type Kind int

const (
	KindUnknown Kind = iota
	KindBoard
	KindEval
	KindTerminal
)

func (k Kind) String() string {
	switch k {
	case KindBoard:
		return "board"
	case KindEval:
		return "eval"
	case KindTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Outcome names the terminal signal the server sent.
type Outcome string

const (
	OutcomeCheckmate Outcome = "checkmate"
	OutcomeDraw      Outcome = "draw"
	OutcomeStalemate Outcome = "stalemate"
)

// terminal sentinels are matched exactly, as the server writes them.
var terminals = map[string]Outcome{
	"Checkmate": OutcomeCheckmate,
	"Draw":      OutcomeDraw,
	"stalemate": OutcomeStalemate,
}

const evalToken = "eval"

// Message is one classified inbound frame. Only the fields of its Kind are set.
type Message struct {
	Kind    Kind
	Raw     string
	State   boardcodec.GameState
	Eval    float64
	Outcome Outcome
}

// Parse classifies and decodes a frame. On error the returned Message still carries
// Raw and the Kind the frame was recognized as, so callers can count failures per kind.
func Parse(frame string) (Message, error) {
	msg := Message{Raw: frame}
	if o, ok := terminals[frame]; ok {
		msg.Kind = KindTerminal
		msg.Outcome = o
		return msg, nil
	}
	fields := strings.Fields(frame)
	if len(fields) == 0 {
		return msg, fmt.Errorf("%w: empty frame", ErrProtocolViolation)
	}
	if fields[0] == evalToken {
		msg.Kind = KindEval
		if len(fields) != 2 {
			return msg, fmt.Errorf("%w: %q", ErrMalformedEval, frame)
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || math.IsNaN(v) {
			return msg, fmt.Errorf("%w: %q", ErrMalformedEval, frame)
		}
		msg.Eval = v
		return msg, nil
	}
	if strings.Contains(fields[0], "/") {
		msg.Kind = KindBoard
		gs, err := boardcodec.ParseGameState(frame)
		if err != nil {
			return msg, err
		}
		msg.State = gs
		return msg, nil
	}
	return msg, fmt.Errorf("%w: %q", ErrProtocolViolation, frame)
}

// EncodeHandshake returns the first outbound frame: the side string with no framing.
func EncodeHandshake(side string) string { return side }

// EncodeMove returns "<pieceCode>-<source>-<target>".
func EncodeMove(piece boardcodec.PieceCode, source, target boardcodec.Square) string {
	return string(piece) + "-" + string(source) + "-" + string(target)
}

// DefaultEvalLimit is the raw magnitude mapped to the ends of the display range.
const DefaultEvalLimit = 2000.0

// NormalizeEval clamps raw to ±limit and maps it onto 0..100, 50 being level.
func NormalizeEval(raw, limit float64) float64 {
	if limit <= 0 || math.IsNaN(limit) || math.IsInf(limit, 0) {
		limit = DefaultEvalLimit
	}
	clamped := math.Max(-limit, math.Min(limit, raw))
	return ((clamped/limit)/2 + 0.5) * 100
}
