// Package app wires the portal runtime: config, logging, the HTTP listener,
// the session lifecycle, and the optional tunnel.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"secretportal/cmd/internal/portal"
	"secretportal/cmd/internal/tunnel"
)

// shutdownDelay lets the success response flush before the listener closes.
const shutdownDelay = time.Second

// terminateEvent is one reason to stop serving. The timeout timer and the
// post-submission delay both produce one; Run consumes exactly one, so
// whichever fires first wins without a double-shutdown race.
type terminateEvent struct {
	reason string
	err    error
}

// App owns one portal run: a session, a listener, and the terminate signal.
type App struct {
	cfg     Config
	log     Logger
	sess    *portal.Session
	metrics *Metrics

	terminate chan terminateEvent
}

// New constructs a wired App with a fresh single-use session.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	sess, err := portal.NewSession(cfg.EnvFile, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		sess:      sess,
		terminate: make(chan terminateEvent, 1),
	}
	if cfg.MetricsEnabled {
		a.metrics = NewMetrics()
	}
	return a, nil
}

// Run binds the listener, prints the access URL, and serves until a
// submission, the timeout, or an interrupt stops it. The returned error is
// nil for every normal completion including timeout.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port)))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	var tun *tunnel.Tunnel
	if a.cfg.Tunnel != tunnel.ProviderNone {
		tun, err = tunnel.Start(ctx, a.cfg.Tunnel, port)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("tunnel: %w", err)
		}
		defer tun.Stop()
	}

	handler := portal.NewHandler(a.log, a.sess, portal.PageConfig{
		DisplayPath:  a.cfg.EnvFileDisplay,
		KeyName:      a.cfg.KeyName,
		Instructions: a.cfg.Instructions,
		Link:         a.cfg.Link,
		LinkText:     a.cfg.LinkText,
	}, a.onSaved, a.onFatal)

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	if a.metrics != nil {
		mux.Handle("/metrics", a.metrics.Handler())
	}

	srv := &http.Server{
		Handler:           WithRequestLogging(WithMetrics(mux, a.metrics), a.log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	accessURL, baseURL := a.accessURLs(ctx, tun, port)

	a.log.Info("portal.start",
		"url", accessURL,
		"file", a.cfg.EnvFileDisplay,
		"timeout", a.cfg.Timeout,
	)
	a.log.Info("portal.waiting")

	if tun == nil {
		go func() {
			if err := selfCheck(ctx, baseURL); err != nil {
				a.log.Warn("portal.selfcheck.unreachable",
					"port", port,
					"hint", "use --tunnel cloudflared or open the port in your firewall",
				)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if a.cfg.Timeout > 0 {
		timer := time.AfterFunc(a.cfg.Timeout, func() {
			if a.sess.State() == portal.StateActive {
				a.signal("timeout", nil)
			}
		})
		defer timer.Stop()
	}

	var fatal error
	select {
	case <-ctx.Done():
		a.log.Info("portal.stop", "reason", "interrupt")
	case ev := <-a.terminate:
		a.log.Info("portal.stop", "reason", ev.reason)
		fatal = ev.err
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("portal.shutdown.fail", "err", err)
	}

	if a.sess.State() == portal.StateConsumed {
		a.log.Info("portal.done", "file", a.cfg.EnvFileDisplay)
	} else {
		a.log.Info("portal.done.nothing_saved")
	}
	return fatal
}

// accessURLs returns the token-bearing URL printed for the human and the
// bare base URL used by the reachability self-check.
func (a *App) accessURLs(ctx context.Context, tun *tunnel.Tunnel, port int) (string, string) {
	if tun != nil {
		return fmt.Sprintf("%s/?t=%s", tun.PublicURL, a.sess.Token()), tun.PublicURL + "/"
	}
	host := resolveDisplayHost(ctx, a.cfg.PublicHost, port)
	return fmt.Sprintf("http://%s/?t=%s", host, a.sess.Token()), fmt.Sprintf("http://%s/", host)
}

func (a *App) onSaved(count int) {
	if a.metrics != nil {
		a.metrics.observeSaved(count)
	}
	time.AfterFunc(shutdownDelay, func() { a.signal("submitted", nil) })
}

func (a *App) onFatal(err error) {
	a.signal("write_failure", err)
}

// signal offers one terminate event; later producers are dropped.
func (a *App) signal(reason string, err error) {
	select {
	case a.terminate <- terminateEvent{reason: reason, err: err}:
	default:
	}
}
