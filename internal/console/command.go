package console

import (
	"strings"

	"github.com/park285/chessboard-client/internal/boardcodec"
)

// ParseMove accepts "e2e4", "e2 e4" and "e2-e4" in any case.
func ParseMove(input string) (source, target boardcodec.Square, ok bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(s)
	if len(s) != 4 {
		return "", "", false
	}
	source, target = boardcodec.Square(s[:2]), boardcodec.Square(s[2:])
	if !source.Valid() || !target.Valid() {
		return "", "", false
	}
	return source, target, true
}
