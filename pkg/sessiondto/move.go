package sessiondto

// MoveRequest is a move proposed by a view (HTTP body or Redis message).
type MoveRequest struct {
	Piece  string `json:"piece" validate:"required,len=2"`
	Source string `json:"source" validate:"required,len=2"`
	Target string `json:"target" validate:"required,len=2"`
}

type MoveResponse struct {
	Sent  bool   `json:"sent"`
	Frame string `json:"frame,omitempty"`
}
