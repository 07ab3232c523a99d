package boardcodec

import (
	"fmt"
	"sort"
)

// Square is a board cell label such as "e4".
type Square string

// ParseSquare normalizes and validates a square label.
func ParseSquare(s string) (Square, error) {
	sq := Square(s)
	if !sq.Valid() {
		return "", fmt.Errorf("invalid square %q", s)
	}
	return sq, nil
}

// Valid reports whether the label is one of the 64 squares.
func (s Square) Valid() bool {
	if len(s) != 2 {
		return false
	}
	return s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

// File returns 0..7 for files a..h.
func (s Square) File() int { return int(s[0] - 'a') }

// Rank returns 1..8.
func (s Square) Rank() int { return int(s[1] - '0') }

func squareAt(file, rank int) Square {
	return Square([]byte{byte('a' + file), byte('0' + rank)})
}

// PieceCode is the two-character "<color><type>" form used by the view layer, e.g. "wP".
type PieceCode string

const (
	ColorWhite byte = 'w'
	ColorBlack byte = 'b'
)

const pieceTypes = "PNBRQK"

// Valid reports whether the code is one of the 16 color/type combinations.
func (p PieceCode) Valid() bool {
	if len(p) != 2 {
		return false
	}
	if p[0] != ColorWhite && p[0] != ColorBlack {
		return false
	}
	for i := 0; i < len(pieceTypes); i++ {
		if p[1] == pieceTypes[i] {
			return true
		}
	}
	return false
}

// Color returns 'w' or 'b'.
func (p PieceCode) Color() byte { return p[0] }

// Type returns the upper-case piece letter.
func (p PieceCode) Type() byte { return p[1] }

// Letter returns the placement letter: upper case for white, lower case for black.
func (p PieceCode) Letter() byte {
	if p.Color() == ColorBlack {
		return p.Type() + ('a' - 'A')
	}
	return p.Type()
}

// PieceCodeFromLetter converts a placement letter into its piece code.
func PieceCodeFromLetter(ch byte) (PieceCode, bool) {
	color := ColorWhite
	typ := ch
	if ch >= 'a' && ch <= 'z' {
		color = ColorBlack
		typ = ch - ('a' - 'A')
	}
	code := PieceCode([]byte{color, typ})
	if !code.Valid() {
		return "", false
	}
	return code, true
}

// Board is the sparse square → piece mapping. Empty squares have no entry.
type Board map[Square]PieceCode

// Clone returns an independent copy.
func (b Board) Clone() Board {
	out := make(Board, len(b))
	for sq, p := range b {
		out[sq] = p
	}
	return out
}

// Equal reports whether both boards hold the same pieces on the same squares.
func (b Board) Equal(o Board) bool {
	if len(b) != len(o) {
		return false
	}
	for sq, p := range b {
		if q, ok := o[sq]; !ok || q != p {
			return false
		}
	}
	return true
}

// Squares returns the occupied squares in a8..h1 reading order.
func (b Board) Squares() []Square {
	out := make([]Square, 0, len(b))
	for sq := range b {
		out = append(out, sq)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank() != out[j].Rank() {
			return out[i].Rank() > out[j].Rank()
		}
		return out[i].File() < out[j].File()
	})
	return out
}

// Strings converts the board to plain string keys and values, the shape the views serialize.
func (b Board) Strings() map[string]string {
	out := make(map[string]string, len(b))
	for sq, p := range b {
		out[string(sq)] = string(p)
	}
	return out
}

// BoardFromStrings is the inverse of Strings. Entries with invalid keys or codes are rejected.
func BoardFromStrings(m map[string]string) (Board, error) {
	out := make(Board, len(m))
	for k, v := range m {
		sq, p := Square(k), PieceCode(v)
		if !sq.Valid() {
			return nil, fmt.Errorf("invalid square %q", k)
		}
		if !p.Valid() {
			return nil, fmt.Errorf("invalid piece code %q on %s", v, k)
		}
		out[sq] = p
	}
	return out, nil
}

var backRank = [8]byte{'R', 'N', 'B', 'Q', 'K', 'B', 'N', 'R'}

// StartingBoard returns the initial position shown before the first server snapshot.
func StartingBoard() Board {
	b := make(Board, 32)
	for f := 0; f < 8; f++ {
		b[squareAt(f, 1)] = PieceCode([]byte{ColorWhite, backRank[f]})
		b[squareAt(f, 2)] = "wP"
		b[squareAt(f, 7)] = "bP"
		b[squareAt(f, 8)] = PieceCode([]byte{ColorBlack, backRank[f]})
	}
	return b
}
