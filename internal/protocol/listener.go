package protocol

import (
	"context"
	"net"

	"github.com/sheinberglab/dserv/pkg/workerpool"
)

// Listener is the acceptor (§5): it spawns one bounded worker-pool task per
// accepted connection instead of an unbounded goroutine per connection, so
// a connection flood degrades into queueing rather than unbounded memory
// growth.
type Listener struct {
	hub  *Hub
	pool *workerpool.Pool
	ln   net.Listener
}

// Listen binds addr and starts accepting. The returned Listener's Close
// stops accepting new connections; in-flight ones run to completion.
func Listen(addr string, hub *Hub, pool *workerpool.Pool) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{hub: hub, pool: pool, ln: ln}
	go l.acceptLoop()
	return l, nil
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return
		}
		id := conn.RemoteAddr().String()
		task := workerpool.Task{
			ID: id,
			Execute: func(ctx context.Context) {
				l.hub.ServeConn(conn)
			},
		}
		if err := l.pool.Submit(task); err != nil {
			l.hub.Log.WithError(err).Warn("protocol: connection dropped, pool saturated")
			conn.Close()
		}
	}
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

func (l *Listener) Close() error { return l.ln.Close() }
