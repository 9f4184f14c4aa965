package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/arko-chat/jsbridge/internal/bridge"
	"github.com/arko-chat/jsbridge/internal/config"
	"github.com/arko-chat/jsbridge/internal/diagnostics"
	"github.com/arko-chat/jsbridge/internal/handlers"
	"github.com/arko-chat/jsbridge/internal/headless"
	"github.com/arko-chat/jsbridge/internal/logger"
	"github.com/arko-chat/jsbridge/internal/middleware"
	"github.com/arko-chat/jsbridge/internal/router"
	"github.com/arko-chat/jsbridge/internal/service"
	"github.com/arko-chat/jsbridge/internal/webview"
	"github.com/arko-chat/jsbridge/internal/ws"
	"github.com/tidwall/gjson"
	"github.com/toqueteos/webbrowser"
	"golang.org/x/sync/errgroup"
)

type environment interface {
	bridge.Environment
	Close() error
}

// The window must be driven from the main thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slogger, err := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		slog.Error("failed to build logger", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, slogger); err != nil {
		slogger.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, slogger *slog.Logger) error {
	mode, err := bridge.ParseCorrelationMode(cfg.Correlation)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.DevtoolsAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	addr := fmt.Sprintf("http://%s", listener.Addr().String())

	var (
		env    environment
		window *webview.Window
	)
	switch cfg.Mode {
	case config.ModeHeadless:
		loader, err := headless.NewLoader(headless.LoaderOptions{
			Retries:   cfg.Headless.FetchRetries,
			Timeout:   cfg.Headless.FetchTimeout.Duration,
			CacheSize: cfg.Headless.ScriptCacheSize,
			CacheTTL:  cfg.Headless.ScriptCacheTTL.Duration,
		}, slogger)
		if err != nil {
			return err
		}
		env = headless.New(loader, headless.Options{
			EvalTimeout: cfg.Headless.EvalTimeout.Duration,
		}, slogger)
	default:
		window = webview.NewWindow(webview.WindowOptions{
			Title:  cfg.Window.Title,
			Width:  cfg.Window.Width,
			Height: cfg.Window.Height,
			Debug:  cfg.Window.Debug,
		})
		env, err = webview.New(window.WebView(), slogger)
		if err != nil {
			return err
		}
	}
	defer env.Close()

	journal := diagnostics.New(cfg.JournalLimit)
	defer journal.Close()

	hub := ws.NewHub(slogger)
	svcs := service.New(env, journal, hub, mode, slogger)
	defer svcs.Close()

	for _, name := range cfg.Handlers {
		if err := svcs.Bridge.AddCallbackHandler(name); err != nil {
			return fmt.Errorf("handler %q: %w", name, err)
		}
	}
	if window != nil {
		if err := svcs.Bridge.AddHandler("setTitle", func(body json.RawMessage) {
			window.SetTitle(gjson.ParseBytes(body).String())
		}); err != nil {
			return err
		}
	}

	codec := middleware.NewCookieCodec(cfg.CookieHashKey, cfg.CookieBlockKey)
	h := handlers.New(svcs, slogger)
	srv := &http.Server{
		Handler:           router.New(h, cfg.DevtoolsToken, codec),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slogger.Info("devtools server starting", "addr", addr)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if window != nil {
			window.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	startURL := cfg.StartURL
	if startURL == "" {
		startURL = addr + "/demo/"
	}
	if err := svcs.Bridge.Load(startURL); err != nil {
		stop()
		return errors.Join(err, g.Wait())
	}

	consoleURL := addr + "/?" + url.Values{middleware.TokenParam: {cfg.DevtoolsToken}}.Encode()
	slogger.Info("devtools console", "url", consoleURL)
	if cfg.OpenConsole {
		if err := webbrowser.Open(consoleURL); err != nil {
			slogger.Warn("failed to open console", "err", err)
		}
	}

	if window != nil {
		window.Run()
		slogger.Info("window closed, shutting down")
		stop()
	}

	return g.Wait()
}
