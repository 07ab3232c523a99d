package boardcodec

import (
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// GameState is a decoded server snapshot. Only Board and Placement are guaranteed;
// the remaining fields are filled when the payload is a complete FEN record.
type GameState struct {
	Board     Board
	Placement string
	FEN       string
	Turn      byte // 'w', 'b' or 0 when unknown
	Castling  string
	Detailed  bool
}

// ParseGameState decodes the placement token of a game-state payload and, when the
// payload carries all six FEN fields, reads side-to-move and castling rights from it.
func ParseGameState(payload string) (GameState, error) {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return GameState{}, &PlacementError{Placement: payload, Reason: "empty payload"}
	}
	board, err := Decode(fields[0])
	if err != nil {
		return GameState{}, err
	}
	gs := GameState{
		Board:     board,
		Placement: fields[0],
		FEN:       strings.Join(fields, " "),
	}
	if len(fields) != 6 {
		return gs, nil
	}
	opt, err := nchess.FEN(gs.FEN)
	if err != nil {
		// trailing fields are informational; a bad tail never rejects the board
		return gs, nil
	}
	pos := nchess.NewGame(opt).Position()
	if pos.Turn() == nchess.White {
		gs.Turn = ColorWhite
	} else {
		gs.Turn = ColorBlack
	}
	gs.Castling = pos.CastleRights().String()
	gs.Detailed = true
	return gs, nil
}
