package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/chessboard-client/internal/boardcodec"
	appcfg "github.com/park285/chessboard-client/internal/config"
	"github.com/park285/chessboard-client/internal/gamesession"
	"github.com/park285/chessboard-client/internal/obslog"
	"github.com/park285/chessboard-client/internal/transport"
)

func main() {
	window := flag.Duration("window", 10*time.Second, "how long to observe inbound frames")
	move := flag.String("move", "", "optional move frame to send after the handshake, e.g. wP-e2-e4")
	flag.Parse()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logCfg := obslog.ApplyEnv(obslog.Config{Level: "debug", Console: true, Format: "console"}, os.Getenv)
	if err := obslog.Init(logCfg); err != nil {
		log.Fatalf("log init error: %v", err)
	}

	endpoint, err := transport.Endpoint(cfg.Origin, cfg.Session.Opponent)
	if err != nil {
		log.Fatalf("endpoint error: %v", err)
	}

	connected := make(chan struct{}, 1)
	sess, err := gamesession.New(transport.NewWSDialer(), gamesession.Options{
		Endpoint:    endpoint,
		Side:        cfg.Session.Side,
		EvalLimit:   cfg.EvalLimit,
		DialTimeout: cfg.DialTimeout(),
		Logger:      obslog.L(),
	}, gamesession.Handlers{
		State: func(st gamesession.State) {
			log.Printf("session state: %s", st)
			if st == gamesession.Connected {
				select {
				case connected <- struct{}{}:
				default:
				}
			}
		},
		Board: func(u gamesession.BoardUpdate) {
			if u.Final {
				fmt.Printf("terminal %q (%s)\n", u.Raw, u.Outcome)
				return
			}
			placement, _ := boardcodec.Encode(u.Board)
			fmt.Printf("board #%d %s (%d pieces)\n", u.Seq, placement, len(u.Board))
		},
		Eval: func(u gamesession.EvalUpdate) {
			fmt.Printf("eval raw=%.5f score=%.1f\n", u.Raw, u.Score)
		},
		Error: func(err error) {
			log.Printf("error: %v", err)
		},
	})
	if err != nil {
		log.Fatalf("session init error: %v", err)
	}

	log.Printf("dialing %s as %s", endpoint, cfg.Session.Side)
	sess.Open()

	select {
	case <-connected:
		if *move != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := sess.Send(ctx, *move); err != nil {
				log.Printf("send error: %v", err)
			}
			cancel()
		}
	case <-time.After(cfg.DialTimeout() + time.Second):
		log.Printf("not connected after %s", cfg.DialTimeout())
	}

	// observe for a short window
	t := time.NewTimer(*window)
	<-t.C

	st := sess.Stats()
	log.Printf("frames in=%d out=%d boards=%d evals=%d rejected=%d transport_errors=%d",
		st.FramesIn, st.FramesOut, st.BoardUpdates, st.EvalUpdates, st.Errors(), st.TransportErrors)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = sess.Close(ctx)
}
