package e2etest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/logging"
)

// Server is a running web sink together with a first visitor.
type Server struct {
	url    string
	client *Client
}

// LogAddrKey is the log attribute the web sink announces its listen address with.
const LogAddrKey = "addr"

// readyPath answers 200 once the session store accepts queries.
const readyPath = "/api/healthy"

// RunFunc has the signature of the web sink's run function.
type RunFunc func(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error

// StartServer runs the web sink until ctx is cancelled and returns once it is ready to serve visitors.
//
// Server logs go to logSink. lookupEnv replaces [os.LookupEnv]; use localhost:0 as the address so that parallel
// tests get their own port, which is picked up from the log attribute [LogAddrKey].
func StartServer(ctx context.Context, logSink io.Writer, lookupEnv func(string) (string, bool), run RunFunc) (
	*Server, error,
) {
	ctx, cancel := context.WithCancelCause(ctx)

	addrCh := make(chan string, 1)
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == LogAddrKey {
				select {
				case addrCh <- a.Value.String():
				default:
				}
			}
			return a
		},
	})))

	go func() {
		if err := run(ctx, logger, lookupEnv); err != nil {
			cancel(err)
		}
	}()

	var addr string
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(context.Cause(ctx), "web sink stopped before listening")
	case addr = <-addrCh:
	}

	s := &Server{url: fmt.Sprintf("http://%s", addr), client: nil}
	client, err := s.NewVisitor()
	if err != nil {
		return nil, err
	}
	if err = client.WaitForReady(ctx, readyPath); err != nil {
		return nil, errors.Wrap(err, "wait for ready", slog.String("url", s.url))
	}
	s.client = client
	return s, nil
}

// Client is the first visitor of the server.
func (s *Server) Client() *Client {
	return s.client
}

// NewVisitor returns a client without cookies, so the server treats it as a new visitor with a run of its own.
func (s *Server) NewVisitor() (*Client, error) {
	client, err := NewClient(s.url)
	if err != nil {
		return nil, errors.Wrap(err, "new visitor")
	}
	return client, nil
}

func (s *Server) URL() string {
	return s.url
}
