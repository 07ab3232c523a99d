// Package viewbridge mirrors the session view into Redis for out-of-process
// renderers and relays the moves they publish back.
package viewbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/chessboard-client/pkg/sessiondto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	KindBoard = "board"
	KindEval  = "eval"
	KindState = "state"

	defaultTTL = time.Hour
)

type Bridge struct {
	rdb       *redis.Client
	sessionID string
	ttl       time.Duration
	logger    *zap.Logger
}

func New(rdb *redis.Client, sessionID string, ttl time.Duration, logger *zap.Logger) *Bridge {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{rdb: rdb, sessionID: strings.TrimSpace(sessionID), ttl: ttl, logger: logger}
}

// Connect parses redisURL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url required for view bridge")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// ParseRedisURL accepts redis:// and rediss:// URLs; the path selects the DB and
// rediss enables TLS with the URL host as server name.
func ParseRedisURL(raw string) (*redis.Options, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}

func (b *Bridge) prefix() string        { return "chessview:" + b.sessionID }
func (b *Bridge) keyView() string       { return b.prefix() + ":view" }
func (b *Bridge) channelEvents() string { return b.prefix() + ":events" }
func (b *Bridge) channelMoves() string  { return b.prefix() + ":moves" }

func (b *Bridge) PublishBoard(ctx context.Context, v sessiondto.SessionView) error {
	return b.publish(ctx, KindBoard, v)
}

func (b *Bridge) PublishEval(ctx context.Context, v sessiondto.SessionView) error {
	return b.publish(ctx, KindEval, v)
}

func (b *Bridge) PublishState(ctx context.Context, v sessiondto.SessionView) error {
	return b.publish(ctx, KindState, v)
}

// publish stores the full view, then announces the change.
func (b *Bridge) publish(ctx context.Context, kind string, v sessiondto.SessionView) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := b.rdb.Set(ctx, b.keyView(), raw, b.ttl).Err(); err != nil {
		return err
	}
	ev, err := json.Marshal(sessiondto.Event{Kind: kind, SessionID: b.sessionID, Seq: v.Board.Seq})
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channelEvents(), ev).Err(); err != nil {
		return err
	}
	b.logger.Debug("view_published", zap.String("kind", kind), zap.Uint64("seq", v.Board.Seq))
	return nil
}

// Latest returns the stored view, or nil when none is stored.
func (b *Bridge) Latest(ctx context.Context) (*sessiondto.SessionView, error) {
	raw, err := b.rdb.Get(ctx, b.keyView()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v sessiondto.SessionView
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// RequestMove publishes a move on behalf of a view.
func (b *Bridge) RequestMove(ctx context.Context, req sessiondto.MoveRequest) error {
	if err := sessiondto.Validate(req); err != nil {
		return err
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channelMoves(), raw).Err()
}

// SubscribeEvents is for views that want change notifications.
func (b *Bridge) SubscribeEvents(ctx context.Context) (*redis.PubSub, error) {
	ps := b.rdb.Subscribe(ctx, b.channelEvents())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return ps, nil
}

// SubscribeMoves returns once the subscription is confirmed, so no move published
// afterwards is missed.
func (b *Bridge) SubscribeMoves(ctx context.Context) (*MoveFeed, error) {
	ps := b.rdb.Subscribe(ctx, b.channelMoves())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe moves: %w", err)
	}
	return &MoveFeed{ps: ps, logger: b.logger}, nil
}

// MoveFeed delivers validated move requests from the moves channel.
type MoveFeed struct {
	ps     *redis.PubSub
	logger *zap.Logger
}

// Run calls fn for each valid request until ctx ends or the feed is closed.
// Malformed messages are logged and skipped.
func (f *MoveFeed) Run(ctx context.Context, fn func(sessiondto.MoveRequest)) error {
	ch := f.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var req sessiondto.MoveRequest
			if err := json.Unmarshal([]byte(msg.Payload), &req); err != nil {
				f.logger.Warn("view_move_malformed", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			if err := sessiondto.Validate(req); err != nil {
				f.logger.Warn("view_move_invalid", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			fn(req)
		}
	}
}

func (f *MoveFeed) Close() error { return f.ps.Close() }
