package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/park285/chessboard-client/internal/boardstate"
	appcfg "github.com/park285/chessboard-client/internal/config"
	"github.com/park285/chessboard-client/internal/console"
	"github.com/park285/chessboard-client/internal/gamesession"
	"github.com/park285/chessboard-client/internal/movedispatch"
	"github.com/park285/chessboard-client/internal/msgcat"
	"github.com/park285/chessboard-client/internal/obslog"
	"github.com/park285/chessboard-client/internal/transport"
	"github.com/park285/chessboard-client/internal/viewbridge"
	"github.com/park285/chessboard-client/internal/viewhttp"
	"github.com/park285/chessboard-client/pkg/sessiondto"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("log init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		log.Fatalf("messages error: %v", err)
	}
	endpoint, err := transport.Endpoint(cfg.Origin, cfg.Session.Opponent)
	if err != nil {
		log.Fatalf("endpoint error: %v", err)
	}
	policy, err := gamesession.ParseRestartPolicy(cfg.RestartPolicy)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Session.Side + "> ",
		HistoryFile:     ".chess_client_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		log.Fatalf("readline error: %v", err)
	}
	defer rl.Close()
	rl.SetPrompt(cat.Text("cli.prompt", map[string]any{"Side": cfg.Session.Side}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := console.NewRenderer(rl.Stdout(), cfg.Session.Side, !color.NoColor)
	a := &app{cfg: cfg, cat: cat, out: out, logger: logger}

	sess, err := gamesession.New(transport.NewWSDialer(), gamesession.Options{
		Endpoint:      endpoint,
		Side:          cfg.Session.Side,
		EvalLimit:     cfg.EvalLimit,
		RestartPolicy: policy,
		DialTimeout:   cfg.DialTimeout(),
		PingInterval:  cfg.PingInterval(),
		Logger:        logger,
	}, gamesession.Handlers{
		Board: a.onBoard,
		Eval:  a.onEval,
		State: a.onState,
		Error: a.onError,
	})
	if err != nil {
		log.Fatalf("session init error: %v", err)
	}
	a.sess = sess
	a.store = boardstate.New(sess.ID(), cfg.Session.Side, cfg.Session.Opponent)

	opts := []movedispatch.Option{movedispatch.WithLogger(logger)}
	if cfg.Optimistic {
		opts = append(opts, movedispatch.WithOptimist(a.store))
	}
	if cfg.AdvisoryLegality {
		opts = append(opts, movedispatch.WithAdvisor(movedispatch.NewLegalityAdvisor(a.store.FEN)))
	}
	a.moves = movedispatch.New(sess, opts...)

	if cfg.RedisURL != "" {
		rdb, err := viewbridge.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis error: %v", err)
		}
		defer rdb.Close()
		a.bridge = viewbridge.New(rdb, sess.ID(), cfg.ViewTTL(), logger)
		feed, err := a.bridge.SubscribeMoves(ctx)
		if err != nil {
			log.Fatalf("redis subscribe error: %v", err)
		}
		defer feed.Close()
		go func() {
			err := feed.Run(ctx, func(req sessiondto.MoveRequest) {
				intent, err := movedispatch.ParseIntent(req.Piece, req.Source, req.Target)
				if err != nil {
					logger.Warn("view_move_rejected", zap.Error(err))
					return
				}
				_, _ = a.Submit(ctx, intent)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("view_move_feed_stopped", zap.Error(err))
			}
		}()
	}

	if cfg.ViewAddr != "" {
		srv := viewhttp.NewServer(cfg.ViewAddr, viewhttp.NewHandler(a.store, a, sess, logger))
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				logger.Error("view_http_stopped", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	out.Info(cat.Text("cli.banner", map[string]any{
		"SessionID": sess.ID(), "Side": cfg.Session.Side, "Opponent": cfg.Session.Opponent, "Endpoint": endpoint,
	}))
	sess.Open()

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || !a.command(ctx, strings.TrimSpace(line)) {
				break loop
			}
		}
	}

	cctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sess.Close(cctx); err != nil {
		logger.Warn("session_close_timeout", zap.Error(err))
	}
}

type app struct {
	cfg    *appcfg.AppConfig
	cat    *msgcat.Catalog
	out    *console.Renderer
	logger *zap.Logger

	sess   *gamesession.Session
	store  *boardstate.Store
	moves  *movedispatch.Dispatcher
	bridge *viewbridge.Bridge
}

// command runs one input line; false means quit.
func (a *app) command(ctx context.Context, line string) bool {
	switch strings.ToLower(line) {
	case "":
		return true
	case "quit", "exit", "q":
		return false
	case "help", "?":
		a.out.Plain(a.cat.Text("cli.help", nil))
	case "board":
		a.drawBoard()
	case "eval":
		a.showEval()
	case "stats":
		st := a.sess.Stats()
		a.out.Plain(a.cat.Text("stats.show", map[string]any{
			"FramesIn": st.FramesIn, "FramesOut": st.FramesOut, "BoardUpdates": st.BoardUpdates,
			"EvalUpdates": st.EvalUpdates, "Rejected": st.Errors(), "TransportErrors": st.TransportErrors,
		}))
	case "restart":
		if !a.sess.Restart() {
			a.out.Warn(a.cat.Text("state.restart_refused", nil))
		}
	case "connect":
		a.sess.Open()
	default:
		src, dst, ok := console.ParseMove(line)
		if !ok {
			a.out.Warn(a.cat.Text("cli.unknown_command", map[string]any{"Input": line}))
			return true
		}
		piece, ok := a.store.PieceAt(src)
		if !ok {
			a.out.Warn(a.cat.Text("move.no_piece", map[string]any{"Square": string(src)}))
			return true
		}
		_, _ = a.Submit(ctx, movedispatch.MoveIntent{Piece: piece, Source: src, Target: dst})
	}
	return true
}

// Submit dispatches a move from any input (console, Redis feed, HTTP) and
// refreshes every view when the optimistic update applied.
func (a *app) Submit(ctx context.Context, m movedispatch.MoveIntent) (bool, error) {
	sent, err := a.moves.Submit(ctx, m)
	switch {
	case err != nil:
		a.out.Error(a.cat.Text("move.failed", map[string]any{"Error": err.Error()}))
	case !sent:
		a.out.Plain(a.cat.Text("move.noop", nil))
	default:
		a.out.Info(a.cat.Text("move.sent", map[string]any{"Frame": m.Frame()}))
		if a.cfg.Optimistic {
			a.drawBoard()
			a.publish(viewbridge.KindBoard)
		}
	}
	return sent, err
}

func (a *app) onBoard(u gamesession.BoardUpdate) {
	a.store.Replace(u)
	if u.Final {
		a.out.Warn(a.cat.Text("state.game_over", map[string]any{"Outcome": string(u.Outcome)}))
	}
	a.drawBoard()
	a.publish(viewbridge.KindBoard)
}

func (a *app) onEval(u gamesession.EvalUpdate) {
	a.store.SetEval(u)
	a.publish(viewbridge.KindEval)
}

// onState resets the view on Connecting: the server starts a new game for every
// connection, and after a restart it sends no board until the first move.
func (a *app) onState(st gamesession.State) {
	if st == gamesession.Connecting {
		a.store.Reset()
	}
	a.store.SetState(st)
	a.out.Info(a.cat.Text("state.changed", map[string]any{"State": st.String()}))
	if st == gamesession.Connecting {
		a.drawBoard()
		a.publish(viewbridge.KindBoard)
	}
	a.publish(viewbridge.KindState)
}

func (a *app) onError(err error) {
	if errors.Is(err, gamesession.ErrTransport) {
		a.out.Error(a.cat.Text("error.transport", map[string]any{"Error": err.Error()}))
		return
	}
	a.out.Warn(a.cat.Text("error.frame", map[string]any{"Error": err.Error()}))
}

func (a *app) drawBoard() {
	v := a.store.Snapshot()
	note := ""
	if v.Board.Optimistic {
		note = "(awaiting server)"
	}
	if v.Eval.Known {
		note = strings.TrimSpace(note + " " + fmt.Sprintf("eval %.0f/100", v.Eval.Score))
	}
	a.out.Board(a.store.Board(), note)
}

func (a *app) showEval() {
	e := a.store.Eval()
	if !e.Known {
		a.out.Plain(a.cat.Text("eval.unknown", nil))
		return
	}
	a.out.Plain(a.cat.Text("eval.show", map[string]any{"Raw": e.Raw, "Score": e.Score}))
}

func (a *app) publish(kind string) {
	if a.bridge == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v := a.store.Snapshot()
	var err error
	switch kind {
	case viewbridge.KindEval:
		err = a.bridge.PublishEval(ctx, v)
	case viewbridge.KindState:
		err = a.bridge.PublishState(ctx, v)
	default:
		err = a.bridge.PublishBoard(ctx, v)
	}
	if err != nil {
		a.logger.Warn("view_publish_failed", zap.String("kind", kind), zap.Error(err))
	}
}
