package movedispatch

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/chessboard-client/internal/boardcodec"
)

// LegalityAdvisor replays a move against the last full FEN the server sent.
// Without a six-field FEN it has no opinion.
type LegalityAdvisor struct {
	fen func() string
}

func NewLegalityAdvisor(fen func() string) *LegalityAdvisor {
	return &LegalityAdvisor{fen: fen}
}

func (a *LegalityAdvisor) Advise(m MoveIntent) error {
	if a == nil || a.fen == nil {
		return nil
	}
	fen := strings.TrimSpace(a.fen())
	if len(strings.Fields(fen)) != 6 {
		return nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil
	}
	game := nchess.NewGame(opt)
	if err := game.PushNotationMove(uciOf(m), nchess.UCINotation{}, nil); err != nil {
		return fmt.Errorf("%s rejected in %q: %w", m.Frame(), fen, err)
	}
	return nil
}

// uciOf promotes pawns reaching the last rank to a queen, as the board view has no picker.
func uciOf(m MoveIntent) string {
	uci := string(m.Source) + string(m.Target)
	if m.Piece.Type() != 'P' {
		return uci
	}
	if (m.Piece.Color() == boardcodec.ColorWhite && m.Target.Rank() == 8) ||
		(m.Piece.Color() == boardcodec.ColorBlack && m.Target.Rank() == 1) {
		uci += "q"
	}
	return uci
}
