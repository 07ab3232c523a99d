package sessiondto

// DomainError is the error shape exposed to view clients.
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "session error"
}

const (
	CodeInvalidMove  = "invalid_move"
	CodeNotConnected = "not_connected"
	CodeBadRequest   = "bad_request"
	CodeGameOver     = "game_over"
)
