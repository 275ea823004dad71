package smtp

import (
	"bytes"
	"context"
	"net"
	"sync"
	"time"

	"github.com/platy/smtp-dump/internal/cache"
	"github.com/platy/smtp-dump/internal/inbox"
	"github.com/platy/smtp-dump/internal/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Store persists completed messages. *inbox.Inbox implements it.
type Store interface {
	Publish(ctx context.Context, msg *inbox.Message) (string, error)
}

// Server accepts SMTP connections and writes every received message
// to its Store. It never relays.
type Server struct {
	cfg   Config
	store Store

	// reverse dns of peers
	cache      *cache.Cache
	lookupAddr func(addr string) ([]string, error)

	// optional delivery events
	logPublisher Publisher
	logMu        sync.Mutex
	bufferPool   sync.Pool

	sessions sync.WaitGroup
}

type Option func(*Server)

// WithLogPublisher publishes a logger.Entry for every delivery outcome.
func WithLogPublisher(p Publisher) Option {
	return func(s *Server) {
		s.logPublisher = p
	}
}

// WithResolver replaces net.LookupAddr for reverse lookups.
func WithResolver(fn func(addr string) ([]string, error)) Option {
	return func(s *Server) {
		s.lookupAddr = fn
	}
}

// WithCache shares a cache for reverse lookups.
func WithCache(c *cache.Cache) Option {
	return func(s *Server) {
		s.cache = c
	}
}

func NewServer(cfg Config, store Store, opts ...Option) *Server {
	server := &Server{
		cfg:        cfg,
		store:      store,
		lookupAddr: net.LookupAddr,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}

	for _, opt := range opts {
		opt(server)
	}

	return server
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.WithMessage(err, "Listen")
	}

	log.Printf("Listening on %s as %s", l.Addr(), s.cfg.Domain)

	return s.Serve(ctx, l)
}

// Serve accepts connections on l and serves each on its own goroutine.
// Accept errors are logged and retried. It returns once ctx is done and
// every session has ended.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		l.Close()
	})
	defer stop()
	defer s.sessions.Wait()

	var delay time.Duration

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return errors.WithMessage(err, "Accept")
			}

			metrics.AcceptErrors.Inc()

			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}

			log.Printf("Accept error: %s; retrying in %s", err, delay)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}

		delay = 0

		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn runs one session on conn and closes it when the session ends.
func (s *Server) ServeConn(ctx context.Context, conn Conn) {
	metrics.Connections.Inc()
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	session, err := s.newInboundSession(conn)
	if err != nil {
		log.Printf("ServeConn; unable to create new InboundSession: %s", err)
		conn.Close()
		return
	}

	session.serve(ctx)
}
