// Package boardcodec converts between placement strings and sparse square → piece mappings.
package boardcodec

import (
	"fmt"
	"strings"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// ErrMalformedPlacement is matched by every PlacementError.
var ErrMalformedPlacement = errf("malformed placement")

// PlacementError describes why a placement string was rejected.
// Rank is the offending rank number (8..1), or 0 when the whole string is at fault.
type PlacementError struct {
	Placement string
	Rank      int
	Reason    string
}

func (e *PlacementError) Error() string {
	if e.Rank > 0 {
		return fmt.Sprintf("malformed placement %q: rank %d: %s", e.Placement, e.Rank, e.Reason)
	}
	return fmt.Sprintf("malformed placement %q: %s", e.Placement, e.Reason)
}

func (e *PlacementError) Unwrap() error { return ErrMalformedPlacement }

// Decode parses the piece-placement field. Ranks are listed 8 → 1, files a → h.
// Only the canonical form is accepted: gap runs are single digits 1..8 and never adjacent.
func Decode(placement string) (Board, error) {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return nil, &PlacementError{Placement: placement, Reason: fmt.Sprintf("expected 8 ranks, got %d", len(ranks))}
	}
	b := make(Board, 32)
	for i, group := range ranks {
		rank := 8 - i
		file := 0
		prevDigit := false
		for j := 0; j < len(group); j++ {
			ch := group[j]
			switch {
			case ch >= '0' && ch <= '9':
				if ch == '0' || ch == '9' {
					return nil, &PlacementError{Placement: placement, Rank: rank, Reason: fmt.Sprintf("invalid gap %q", ch)}
				}
				if prevDigit {
					return nil, &PlacementError{Placement: placement, Rank: rank, Reason: "adjacent gap runs"}
				}
				file += int(ch - '0')
				prevDigit = true
			default:
				code, ok := PieceCodeFromLetter(ch)
				if !ok {
					return nil, &PlacementError{Placement: placement, Rank: rank, Reason: fmt.Sprintf("unrecognized character %q", ch)}
				}
				if file >= 8 {
					return nil, &PlacementError{Placement: placement, Rank: rank, Reason: "more than 8 files"}
				}
				b[squareAt(file, rank)] = code
				file++
				prevDigit = false
			}
			if file > 8 {
				return nil, &PlacementError{Placement: placement, Rank: rank, Reason: "more than 8 files"}
			}
		}
		if file != 8 {
			return nil, &PlacementError{Placement: placement, Rank: rank, Reason: fmt.Sprintf("rank has %d files", file)}
		}
	}
	return b, nil
}

// Encode writes the canonical placement string for b.
func Encode(b Board) (string, error) {
	for sq, p := range b {
		if !sq.Valid() {
			return "", fmt.Errorf("encode: invalid square %q", sq)
		}
		if !p.Valid() {
			return "", fmt.Errorf("encode: invalid piece code %q on %s", p, sq)
		}
	}
	var sb strings.Builder
	sb.Grow(71)
	for rank := 8; rank >= 1; rank-- {
		gap := 0
		for file := 0; file < 8; file++ {
			p, ok := b[squareAt(file, rank)]
			if !ok {
				gap++
				continue
			}
			if gap > 0 {
				sb.WriteByte(byte('0' + gap))
				gap = 0
			}
			sb.WriteByte(p.Letter())
		}
		if gap > 0 {
			sb.WriteByte(byte('0' + gap))
		}
		if rank > 1 {
			sb.WriteByte('/')
		}
	}
	return sb.String(), nil
}
