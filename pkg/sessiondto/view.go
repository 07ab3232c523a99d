package sessiondto

// BoardView is the displayed position. Pieces maps square labels to piece codes and
// never holds empty squares.
type BoardView struct {
	Pieces    map[string]string `json:"pieces"`
	Placement string            `json:"placement"`
	FEN       string            `json:"fen,omitempty"`
	Seq       uint64            `json:"seq"`
	// Optimistic is set while a local move has not yet been confirmed by the server.
	Optimistic bool   `json:"optimistic"`
	Final      bool   `json:"final"`
	Outcome    string `json:"outcome,omitempty"`
}

type EvalView struct {
	Raw   float64 `json:"raw"`
	Score float64 `json:"score"`
	Known bool    `json:"known"`
}

type SessionView struct {
	SessionID string    `json:"session_id"`
	Side      string    `json:"side"`
	Opponent  string    `json:"opponent"`
	State     string    `json:"state"`
	Board     BoardView `json:"board"`
	Eval      EvalView  `json:"eval"`
	UpdatedAt int64     `json:"updated_at"`
}

// Event is what the view bridge publishes on every change.
type Event struct {
	Kind      string `json:"kind"` // board | eval | state
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`
}
