package factory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/relaygate/internal/api"
	"github.com/mcoot/relaygate/internal/cryptobox"
	"github.com/mcoot/relaygate/internal/session"
	"github.com/mcoot/relaygate/internal/transport"
)

const shutdownGrace = 2 * time.Second

// Servers are the listeners of a running relay. A nil field is disabled.
type Servers struct {
	TCP   *transport.TCPServer
	WS    *transport.WSServer
	Admin *api.Server
}

// Router builds the admin API handler for this app
func (a *App) Router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:         a.Logger,
		AdminPassword:  a.Server.AdminPassword,
		Standalone:     a.Gateway.Standalone(),
		CentralManaged: a.Bridge != nil,
		ServerKey:      cryptobox.EncodeKey(a.Keys.Public),
		Profiles:       a.Profiles,
		Roles:          a.Roles,
		Registry:       a.Registry,
		Hub:            a.Hub,
		Central:        a.Central,
		Events:         a.Events,
		Gatherer:       a.MetricsRegistry,
	})
}

// Listen binds every configured listener so addresses are known before Serve
func (a *App) Listen() (*Servers, error) {
	srv := &Servers{}

	tcpCfg := transport.DefaultTCPConfig()
	tcpCfg.Addr = a.Server.TCPAddr
	srv.TCP = transport.NewTCPServer(tcpCfg, a.Hub, a.Logger)
	if err := srv.TCP.Listen(); err != nil {
		return nil, err
	}

	if a.Server.WSAddr != "" {
		wsCfg := transport.DefaultWSConfig()
		wsCfg.Addr = a.Server.WSAddr
		srv.WS = transport.NewWSServer(wsCfg, a.Hub, a.Logger)
		if err := srv.WS.Listen(); err != nil {
			_ = srv.TCP.Close()
			return nil, err
		}
	}

	if a.Server.AdminAddr != "" {
		adminCfg := api.DefaultServerConfig()
		adminCfg.Addr = a.Server.AdminAddr
		srv.Admin = api.NewServer(a.Router(), adminCfg, a.Logger)
		if err := srv.Admin.Listen(); err != nil {
			_ = srv.TCP.Close()
			if srv.WS != nil {
				_ = srv.WS.Close()
			}
			return nil, err
		}
	}

	return srv, nil
}

// Serve runs the bound listeners and the central refresh loop until ctx is
// cancelled or one of them fails. Live sessions are told the server is going
// away and given shutdownGrace to drain before the transports stop.
func (a *App) Serve(ctx context.Context, srv *Servers) error {
	serveCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()

	g, gctx := errgroup.WithContext(serveCtx)

	g.Go(func() error { return srv.TCP.Serve(gctx) })
	if srv.WS != nil {
		g.Go(func() error { return srv.WS.Serve(gctx) })
	}
	if srv.Admin != nil {
		g.Go(srv.Admin.Start)
		g.Go(func() error {
			<-gctx.Done()
			return srv.Admin.Shutdown(context.Background())
		})
	}
	if a.Bridge != nil {
		g.Go(func() error {
			a.Bridge.Run(gctx)
			return nil
		})
	}

	select {
	case <-ctx.Done():
	case <-gctx.Done():
	}

	a.Logger.Info("relay shutting down", slog.Int("sessions", a.Hub.Count()))
	a.Hub.CloseAll(session.MsgServerShutdown)
	a.drain(shutdownGrace)
	a.Events.Close()
	stop()

	err := g.Wait()
	if cerr := srv.TCP.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// drain waits until every session has ended or timeout passes
func (a *App) drain(timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for a.Hub.Count() > 0 {
		select {
		case <-deadline.C:
			a.Logger.Warn("sessions still open after shutdown grace", slog.Int("sessions", a.Hub.Count()))
			return
		case <-ticker.C:
		}
	}
}

// Run listens on every configured address and serves until ctx is done
func (a *App) Run(ctx context.Context) error {
	srv, err := a.Listen()
	if err != nil {
		return err
	}
	return a.Serve(ctx, srv)
}
