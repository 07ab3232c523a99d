// Package boardstate holds the view model the renderers draw from.
package boardstate

import (
	"sync"
	"time"

	"github.com/park285/chessboard-client/internal/boardcodec"
	"github.com/park285/chessboard-client/internal/gamesession"
	"github.com/park285/chessboard-client/internal/movedispatch"
	"github.com/park285/chessboard-client/pkg/sessiondto"
)

// Store is the displayed board, last evaluation and session state.
// Server snapshots always replace the board wholesale; optimistic moves mutate it
// until the next snapshot arrives.
type Store struct {
	mu sync.RWMutex

	sessionID string
	side      string
	opponent  string

	board      boardcodec.Board
	fen        string
	seq        uint64
	version    uint64
	optimistic bool
	final      bool
	outcome    string

	eval      sessiondto.EvalView
	state     gamesession.State
	updatedAt time.Time

	now func() time.Time
}

func New(sessionID, side, opponent string) *Store {
	s := &Store{
		sessionID: sessionID,
		side:      side,
		opponent:  opponent,
		board:     boardcodec.StartingBoard(),
		eval:      sessiondto.EvalView{Score: 50},
		now:       time.Now,
	}
	s.updatedAt = s.now()
	return s
}

// Replace applies a server update. A final update without a board keeps the displayed one.
func (s *Store) Replace(u gamesession.BoardUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Final {
		s.final = true
		s.outcome = string(u.Outcome)
		if u.Board != nil {
			s.board = u.Board.Clone()
			s.optimistic = false
		}
	} else {
		s.board = u.Board.Clone()
		s.fen = u.State.FEN
		s.optimistic = false
	}
	if u.Seq > s.seq {
		s.seq = u.Seq
	}
	s.version++
	s.updatedAt = s.now()
}

// Reset returns the view to the starting position for a fresh game.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board = boardcodec.StartingBoard()
	s.fen = ""
	s.optimistic = false
	s.final = false
	s.outcome = ""
	s.eval = sessiondto.EvalView{Score: 50}
	s.version++
	s.updatedAt = s.now()
}

// Version changes on every authoritative update and reset.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// ApplyOptimistic moves the piece locally unless the board was replaced since
// version was read.
func (s *Store) ApplyOptimistic(m movedispatch.MoveIntent, version uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		return false
	}
	s.board = movedispatch.ApplyOptimistic(s.board, m)
	s.optimistic = true
	s.updatedAt = s.now()
	return true
}

func (s *Store) SetEval(u gamesession.EvalUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eval = sessiondto.EvalView{Raw: u.Raw, Score: u.Score, Known: true}
	s.updatedAt = s.now()
}

// SetState records a lifecycle change. Leaving GameOver clears the final marker.
func (s *Store) SetState(st gamesession.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == gamesession.GameOver && st != gamesession.GameOver {
		s.final = false
		s.outcome = ""
	}
	s.state = st
	s.updatedAt = s.now()
}

func (s *Store) State() gamesession.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// FEN is the last full game-state payload from the server, empty before the first one.
func (s *Store) FEN() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fen
}

func (s *Store) Board() boardcodec.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.board.Clone()
}

func (s *Store) PieceAt(sq boardcodec.Square) (boardcodec.PieceCode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.board[sq]
	return p, ok
}

func (s *Store) Eval() sessiondto.EvalView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eval
}

func (s *Store) Snapshot() sessiondto.SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	placement, err := boardcodec.Encode(s.board)
	if err != nil {
		placement = ""
	}
	return sessiondto.SessionView{
		SessionID: s.sessionID,
		Side:      s.side,
		Opponent:  s.opponent,
		State:     s.state.String(),
		Board: sessiondto.BoardView{
			Pieces:     s.board.Strings(),
			Placement:  placement,
			FEN:        s.fen,
			Seq:        s.seq,
			Optimistic: s.optimistic,
			Final:      s.final,
			Outcome:    s.outcome,
		},
		Eval:      s.eval,
		UpdatedAt: s.updatedAt.Unix(),
	}
}
