package viewhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/park285/chessboard-client/internal/gamesession"
	"github.com/park285/chessboard-client/internal/movedispatch"
	"github.com/park285/chessboard-client/pkg/sessiondto"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type fakeView struct{ v sessiondto.SessionView }

func (f *fakeView) Snapshot() sessiondto.SessionView { return f.v }

type fakeSubmitter struct {
	got  []movedispatch.MoveIntent
	sent bool
	err  error
}

func (f *fakeSubmitter) Submit(ctx context.Context, m movedispatch.MoveIntent) (bool, error) {
	f.got = append(f.got, m)
	return f.sent, f.err
}

type fakeRestarter struct{ ok bool }

func (f *fakeRestarter) Restart() bool { return f.ok }

func newHandler(sub *fakeSubmitter, restart bool) *Handler {
	view := &fakeView{v: sessiondto.SessionView{
		SessionID: "sess-1",
		State:     "connected",
		Board:     sessiondto.BoardView{Pieces: map[string]string{"e1": "wK"}, Seq: 2},
		Eval:      sessiondto.EvalView{Raw: 1000, Score: 75, Known: true},
	}}
	return NewHandler(view, sub, &fakeRestarter{ok: restart}, nil)
}

func do(h *Handler, method, path, body string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	h.Handle(&ctx)
	return &ctx
}

func TestGetViews(t *testing.T) {
	h := newHandler(&fakeSubmitter{}, true)

	ctx := do(h, fasthttp.MethodGet, "/view", "")
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("/view status %d", ctx.Response.StatusCode())
	}
	var v sessiondto.SessionView
	if err := json.Unmarshal(ctx.Response.Body(), &v); err != nil || v.SessionID != "sess-1" {
		t.Fatalf("/view body %s (%v)", ctx.Response.Body(), err)
	}

	ctx = do(h, fasthttp.MethodGet, "/eval", "")
	var e sessiondto.EvalView
	if err := json.Unmarshal(ctx.Response.Body(), &e); err != nil || e.Score != 75 {
		t.Fatalf("/eval body %s (%v)", ctx.Response.Body(), err)
	}

	ctx = do(h, fasthttp.MethodGet, "/board", "")
	var b sessiondto.BoardView
	if err := json.Unmarshal(ctx.Response.Body(), &b); err != nil || b.Pieces["e1"] != "wK" || b.Seq != 2 {
		t.Fatalf("/board body %s (%v)", ctx.Response.Body(), err)
	}

	if ctx := do(h, fasthttp.MethodPost, "/view", ""); ctx.Response.StatusCode() != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("POST /view status %d", ctx.Response.StatusCode())
	}
	if ctx := do(h, fasthttp.MethodGet, "/nope", ""); ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("/nope status %d", ctx.Response.StatusCode())
	}
}

func TestPostMove(t *testing.T) {
	cases := []struct {
		name   string
		sub    *fakeSubmitter
		body   string
		status int
	}{
		{"sent", &fakeSubmitter{sent: true}, `{"piece":"wP","source":"e2","target":"e4"}`, fasthttp.StatusAccepted},
		{"noop", &fakeSubmitter{}, `{"piece":"wP","source":"e2","target":"e2"}`, fasthttp.StatusNoContent},
		{"bad json", &fakeSubmitter{}, `{`, fasthttp.StatusBadRequest},
		{"missing target", &fakeSubmitter{}, `{"piece":"wP","source":"e2"}`, fasthttp.StatusBadRequest},
		{"bad square", &fakeSubmitter{}, `{"piece":"wP","source":"e2","target":"z9"}`, fasthttp.StatusBadRequest},
		{"not connected", &fakeSubmitter{err: gamesession.ErrNotConnected}, `{"piece":"wP","source":"e2","target":"e4"}`, fasthttp.StatusServiceUnavailable},
		{"transport", &fakeSubmitter{err: fmt.Errorf("%w: write: eof", gamesession.ErrTransport)}, `{"piece":"wP","source":"e2","target":"e4"}`, fasthttp.StatusServiceUnavailable},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ctx := do(newHandler(c.sub, true), fasthttp.MethodPost, "/move", c.body)
			if ctx.Response.StatusCode() != c.status {
				t.Fatalf("status %d, want %d (%s)", ctx.Response.StatusCode(), c.status, ctx.Response.Body())
			}
		})
	}

	sub := &fakeSubmitter{sent: true}
	ctx := do(newHandler(sub, true), fasthttp.MethodPost, "/move", `{"piece":"bN","source":"G8","target":"f6"}`)
	var resp sessiondto.MoveResponse
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil || resp.Frame != "bN-g8-f6" {
		t.Fatalf("unexpected response %s (%v)", ctx.Response.Body(), err)
	}
	if len(sub.got) != 1 || sub.got[0].Source != "g8" {
		t.Fatalf("unexpected intents %v", sub.got)
	}
}

func TestNotConnectedIsRetryable(t *testing.T) {
	ctx := do(newHandler(&fakeSubmitter{err: gamesession.ErrNotConnected}, true), fasthttp.MethodPost, "/move", `{"piece":"wP","source":"e2","target":"e4"}`)
	var de sessiondto.DomainError
	if err := json.Unmarshal(ctx.Response.Body(), &de); err != nil {
		t.Fatalf("body: %v", err)
	}
	if de.Code != sessiondto.CodeNotConnected || !de.Retryable {
		t.Fatalf("unexpected error body %+v", de)
	}
}

func TestRestart(t *testing.T) {
	if ctx := do(newHandler(&fakeSubmitter{}, true), fasthttp.MethodPost, "/restart", ""); ctx.Response.StatusCode() != fasthttp.StatusAccepted {
		t.Fatalf("restart status %d", ctx.Response.StatusCode())
	}
	if ctx := do(newHandler(&fakeSubmitter{}, false), fasthttp.MethodPost, "/restart", ""); ctx.Response.StatusCode() != fasthttp.StatusConflict {
		t.Fatalf("refused restart status %d", ctx.Response.StatusCode())
	}
}

func TestServerOverInmemoryListener(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	srv := NewServer("inmemory", newHandler(&fakeSubmitter{sent: true}, true))
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	client := &fasthttp.Client{Dial: func(addr string) (net.Conn, error) { return ln.Dial() }}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://view.local/move")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetBodyString(`{"piece":"wP","source":"e2","target":"e4"}`)
	if err := client.DoTimeout(req, resp, 2*time.Second); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode() != fasthttp.StatusAccepted {
		t.Fatalf("status %d", resp.StatusCode())
	}
	if string(resp.Header.ContentType()) != "application/json" {
		t.Fatalf("content type %q", resp.Header.ContentType())
	}
}
