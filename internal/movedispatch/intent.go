package movedispatch

import (
	"fmt"
	"strings"

	"github.com/park285/chessboard-client/internal/boardcodec"
	"github.com/park285/chessboard-client/internal/protocol"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

var ErrInvalidMove = errf("invalid move intent")

// MoveIntent is one locally proposed move, consumed once by the dispatcher.
type MoveIntent struct {
	Piece  boardcodec.PieceCode
	Source boardcodec.Square
	Target boardcodec.Square
}

// ParseIntent builds an intent from raw view input.
func ParseIntent(piece, source, target string) (MoveIntent, error) {
	m := MoveIntent{
		Piece:  boardcodec.PieceCode(strings.TrimSpace(piece)),
		Source: boardcodec.Square(strings.ToLower(strings.TrimSpace(source))),
		Target: boardcodec.Square(strings.ToLower(strings.TrimSpace(target))),
	}
	if err := m.Validate(); err != nil {
		return MoveIntent{}, err
	}
	return m, nil
}

func (m MoveIntent) Validate() error {
	if !m.Piece.Valid() {
		return fmt.Errorf("%w: piece %q", ErrInvalidMove, string(m.Piece))
	}
	if !m.Source.Valid() {
		return fmt.Errorf("%w: source %q", ErrInvalidMove, string(m.Source))
	}
	if !m.Target.Valid() {
		return fmt.Errorf("%w: target %q", ErrInvalidMove, string(m.Target))
	}
	return nil
}

// Noop reports a drop back onto the source square.
func (m MoveIntent) Noop() bool { return m.Source == m.Target }

// Frame is the outbound wire form, e.g. "wP-e2-e4".
func (m MoveIntent) Frame() string { return protocol.EncodeMove(m.Piece, m.Source, m.Target) }

func (m MoveIntent) String() string { return m.Frame() }

// ApplyOptimistic returns a copy of board with the source vacated and the piece on
// target. Whatever stood on target is replaced. The input is not modified.
func ApplyOptimistic(board boardcodec.Board, m MoveIntent) boardcodec.Board {
	out := board.Clone()
	if out == nil {
		out = boardcodec.Board{}
	}
	if m.Noop() {
		return out
	}
	delete(out, m.Source)
	out[m.Target] = m.Piece
	return out
}
