package viewhttp

import (
	"context"
	"net"
	"time"

	"github.com/valyala/fasthttp"
)

type Server struct {
	addr string
	srv  *fasthttp.Server
}

func NewServer(addr string, h *Handler) *Server {
	return &Server{
		addr: addr,
		srv: &fasthttp.Server{
			Handler:            h.Handle,
			Name:               "chessboard-client",
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       10 * time.Second,
			MaxRequestBodySize: 4 << 10,
		},
	}
}

func (s *Server) ListenAndServe() error { return s.srv.ListenAndServe(s.addr) }

func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }
