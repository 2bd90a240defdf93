package di

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/omarluq/skin-relay/internal/server"
)

// serverShutdownTimeout bounds draining of in-flight transformations.
const serverShutdownTimeout = 30 * time.Second

// ServerService wraps the HTTP server.
type ServerService struct {
	Server *server.Server
}

// NewHTTPServer creates the HTTP server. The listen address and HTTP/2
// setting are read once; changing them needs a restart.
func NewHTTPServer(i do.Injector) (*ServerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	handlerSvc := do.MustInvoke[*HandlerService](i)
	cfg := cfgSvc.Get()

	srv := server.NewServer(cfg.Server.GetListen(), handlerSvc.Handler, cfg.Server.EnableHTTP2)
	return &ServerService{Server: srv}, nil
}

// Shutdown implements do.Shutdowner.
func (s *ServerService) Shutdown() error {
	if s.Server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	return s.Server.Shutdown(ctx)
}
