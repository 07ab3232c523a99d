// Package console draws the board and status lines for the interactive client.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/park285/chessboard-client/internal/boardcodec"
)

type Renderer struct {
	out io.Writer
	// black sees rank 1 at the top
	flipped bool

	white, black, coord, empty *color.Color
	info, warn, fail           *color.Color
}

// NewRenderer draws from side's point of view. useColor forces escapes on or off
// regardless of whether out is a terminal.
func NewRenderer(out io.Writer, side string, useColor bool) *Renderer {
	r := &Renderer{
		out:     out,
		flipped: strings.EqualFold(side, "black"),
		white:   color.New(color.FgHiWhite, color.Bold),
		black:   color.New(color.FgRed, color.Bold),
		coord:   color.New(color.FgCyan),
		empty:   color.New(color.FgHiBlack),
		info:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed),
	}
	for _, c := range []*color.Color{r.white, r.black, r.coord, r.empty, r.info, r.warn, r.fail} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Board renders b as 8 rows of letters, white upper case, '.' for empty squares.
func (r *Renderer) Board(b boardcodec.Board, note string) {
	files := "abcdefgh"
	if r.flipped {
		files = "hgfedcba"
	}
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		rank := 8 - i
		if r.flipped {
			rank = i + 1
		}
		sb.WriteString(r.coord.Sprint(rank))
		for j := 0; j < 8; j++ {
			sq := boardcodec.Square([]byte{files[j], byte('0' + rank)})
			sb.WriteByte(' ')
			p, ok := b[sq]
			switch {
			case !ok:
				sb.WriteString(r.empty.Sprint("."))
			case p.Color() == boardcodec.ColorWhite:
				sb.WriteString(r.white.Sprint(string(p.Letter())))
			default:
				sb.WriteString(r.black.Sprint(string(p.Letter())))
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(" ")
	for j := 0; j < 8; j++ {
		sb.WriteByte(' ')
		sb.WriteString(r.coord.Sprint(string(files[j])))
	}
	sb.WriteByte('\n')
	if note != "" {
		sb.WriteString(r.warn.Sprint(note))
		sb.WriteByte('\n')
	}
	fmt.Fprint(r.out, sb.String())
}

func (r *Renderer) Info(msg string)  { r.info.Fprintln(r.out, msg) }
func (r *Renderer) Warn(msg string)  { r.warn.Fprintln(r.out, msg) }
func (r *Renderer) Error(msg string) { r.fail.Fprintln(r.out, msg) }

// Plain writes msg without styling.
func (r *Renderer) Plain(msg string) { fmt.Fprintln(r.out, msg) }
