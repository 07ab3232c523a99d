// Package viewhttp serves the session view and accepts moves over local HTTP.
package viewhttp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/park285/chessboard-client/internal/gamesession"
	"github.com/park285/chessboard-client/internal/movedispatch"
	"github.com/park285/chessboard-client/pkg/sessiondto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const submitTimeout = 5 * time.Second

type Viewer interface {
	Snapshot() sessiondto.SessionView
}

type Submitter interface {
	Submit(ctx context.Context, m movedispatch.MoveIntent) (bool, error)
}

type Restarter interface {
	Restart() bool
}

type Handler struct {
	view    Viewer
	moves   Submitter
	session Restarter
	logger  *zap.Logger
}

func NewHandler(view Viewer, moves Submitter, session Restarter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{view: view, moves: moves, session: session, logger: logger}
}

// Handle routes:
//
//	GET  /view     full SessionView
//	GET  /board    BoardView
//	GET  /eval     EvalView
//	POST /move     MoveRequest → 202 sent, 204 dropped, 400 invalid, 503 not connected
//	POST /restart  202 restarted, 409 refused
func (h *Handler) Handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	switch path {
	case "/view", "/board", "/eval":
		if !ctx.IsGet() {
			h.methodNotAllowed(ctx, fasthttp.MethodGet)
			return
		}
		v := h.view.Snapshot()
		switch path {
		case "/board":
			writeJSON(ctx, fasthttp.StatusOK, v.Board)
		case "/eval":
			writeJSON(ctx, fasthttp.StatusOK, v.Eval)
		default:
			writeJSON(ctx, fasthttp.StatusOK, v)
		}
	case "/move":
		if !ctx.IsPost() {
			h.methodNotAllowed(ctx, fasthttp.MethodPost)
			return
		}
		h.handleMove(ctx)
	case "/restart":
		if !ctx.IsPost() {
			h.methodNotAllowed(ctx, fasthttp.MethodPost)
			return
		}
		if !h.session.Restart() {
			writeJSON(ctx, fasthttp.StatusConflict, sessiondto.DomainError{Code: sessiondto.CodeGameOver, Message: "restart refused"})
			return
		}
		h.logger.Info("view_restart")
		writeJSON(ctx, fasthttp.StatusAccepted, map[string]bool{"restarted": true})
	default:
		writeJSON(ctx, fasthttp.StatusNotFound, sessiondto.DomainError{Code: "not_found", Message: "no such resource"})
	}
}

func (h *Handler) handleMove(ctx *fasthttp.RequestCtx) {
	var req sessiondto.MoveRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeJSON(ctx, fasthttp.StatusBadRequest, sessiondto.DomainError{Code: sessiondto.CodeBadRequest, Message: "invalid request body"})
		return
	}
	if err := sessiondto.Validate(req); err != nil {
		writeJSON(ctx, fasthttp.StatusBadRequest, err)
		return
	}
	intent, err := movedispatch.ParseIntent(req.Piece, req.Source, req.Target)
	if err != nil {
		writeJSON(ctx, fasthttp.StatusBadRequest, sessiondto.DomainError{Code: sessiondto.CodeInvalidMove, Message: err.Error()})
		return
	}

	sctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	sent, err := h.moves.Submit(sctx, intent)
	switch {
	case errors.Is(err, gamesession.ErrNotConnected):
		writeJSON(ctx, fasthttp.StatusServiceUnavailable, sessiondto.DomainError{Code: sessiondto.CodeNotConnected, Message: err.Error(), Retryable: true})
	case errors.Is(err, movedispatch.ErrInvalidMove):
		writeJSON(ctx, fasthttp.StatusBadRequest, sessiondto.DomainError{Code: sessiondto.CodeInvalidMove, Message: err.Error()})
	case err != nil:
		h.logger.Warn("view_move_failed", zap.String("move", intent.Frame()), zap.Error(err))
		writeJSON(ctx, fasthttp.StatusServiceUnavailable, sessiondto.DomainError{Code: sessiondto.CodeNotConnected, Message: err.Error(), Retryable: true})
	case !sent:
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	default:
		writeJSON(ctx, fasthttp.StatusAccepted, sessiondto.MoveResponse{Sent: true, Frame: intent.Frame()})
	}
}

func (h *Handler) methodNotAllowed(ctx *fasthttp.RequestCtx, allow string) {
	ctx.Response.Header.Set("Allow", allow)
	writeJSON(ctx, fasthttp.StatusMethodNotAllowed, sessiondto.DomainError{Code: "method_not_allowed", Message: "method not allowed"})
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		ctx.Error("encode response", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}
