package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/modtrack/modtrack/internal/cache"
	"github.com/modtrack/modtrack/internal/reddit"
	"github.com/modtrack/modtrack/internal/report"
	"github.com/modtrack/modtrack/internal/store"
	"github.com/modtrack/modtrack/internal/track"
	"github.com/modtrack/modtrack/pkg/config"
	"github.com/modtrack/modtrack/pkg/logging"
	"github.com/modtrack/modtrack/pkg/telemetry"
)

// runTracker executes one full poll cycle. Only a rejected credential or
// an unwritable primary store yields a non-zero exit; everything else is
// logged and survived so the next cron invocation can catch up.
func runTracker(skipRecheck bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err := logging.InitLogger(&cfg.Logging); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logging.GetLogger().Sync()
	logger := logging.GetLogger()

	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Warn("Telemetry init failed, continuing without tracing", zap.Error(err))
		telemetryShutdown = func() {}
	}
	defer telemetryShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokenCache, err := cache.New(&cfg.Redis)
	if err != nil {
		// The token cache is advisory; fall back to a per-run refresh.
		logger.Warn("Redis unavailable, token will be refreshed this run", zap.Error(err))
		tokenCache = nil
	}
	defer tokenCache.Close()

	primary, err := store.OpenPrimary(cfg.Sqlite.Path)
	if err != nil {
		return fmt.Errorf("open primary store: %w", err)
	}
	defer primary.Close()

	mirror, err := store.OpenMirror(&cfg.Postgres, cfg.Logging.Level)
	if err != nil {
		// The mirror is advisory; the run proceeds primary-only.
		logger.Warn("Mirror unavailable for this run", zap.Error(err))
		mirror = nil
	}
	defer mirror.Close()

	tokens := reddit.NewTokenSource(&cfg.Reddit, tokenCache)
	client := reddit.NewClient(&cfg.Reddit, tokens)
	sink := store.NewSink(primary, mirror)

	var mirrorReader track.MirrorReader
	if mirror != nil {
		mirrorReader = mirror
	}
	engine := track.NewEngine(cfg.Tracker, cfg.Series, client, primary, mirrorReader, sink)

	// The summary is the last line of output even when the run dies
	// mid-phase: the cron caller reads it to tell "ran cleanly" from
	// "ran with the mirror degraded" from "aborted after N pages".
	var (
		scanStats    track.ScanStats
		recheckStats track.RecheckStats
	)
	defer func() {
		logRunSummary(logger, scanStats, recheckStats, sink.MirrorActive(), sink.MirrorErrors())
	}()

	scanStats, err = engine.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	if !skipRecheck {
		windowStart, _ := cfg.Tracker.Window(time.Now().Unix())
		recheckStats, err = engine.Recheck(ctx, windowStart)
		if err != nil {
			return fmt.Errorf("recheck: %w", err)
		}
	}

	return nil
}

func logRunSummary(logger *zap.Logger, scan track.ScanStats, recheck track.RecheckStats, mirrorActive bool, mirrorErrs int) {
	logger.Info("Run summary",
		zap.Int("pages", scan.Pages),
		zap.Int("posts", scan.Posts),
		zap.Int("new_posts", scan.NewPosts),
		zap.Int("scan_comments", scan.Comments),
		zap.Int("recheck_candidates", recheck.Candidates),
		zap.Int("recheck_refetched", recheck.Refetched),
		zap.Int("recheck_comments", recheck.Comments),
		zap.Int("recheck_failed_batches", recheck.FailedBatches),
		zap.Bool("mirror_active", mirrorActive),
		zap.Int("mirror_errors", mirrorErrs))
}

func runReport(jsonOutput bool, sinceDays int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	primary, err := store.OpenPrimary(cfg.Sqlite.Path)
	if err != nil {
		return fmt.Errorf("open primary store: %w", err)
	}
	defer primary.Close()

	since := time.Now().Unix() - int64(sinceDays)*86400
	r, err := report.Build(context.Background(), primary.DB(), since)
	if err != nil {
		return err
	}

	if jsonOutput {
		return r.WriteJSON(os.Stdout)
	}
	return r.WriteText(os.Stdout)
}

// runAuth performs the one-time authorization-code bootstrap: it serves
// a localhost callback, hands the user the authorize URL, and exchanges
// the returned code for a refresh token.
func runAuth(port int, scopes string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return fmt.Errorf("generate state: %w", err)
	}
	state := hex.EncodeToString(stateBytes)
	redirectURI := fmt.Sprintf("http://localhost:%d/callback", port)

	codeCh := make(chan string, 1)
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.GET("/callback", func(c *gin.Context) {
		if c.Query("state") != state {
			c.String(http.StatusBadRequest, "state mismatch")
			return
		}
		code := c.Query("code")
		if code == "" {
			c.String(http.StatusBadRequest, "authorization denied: %s", c.Query("error"))
			return
		}
		c.String(http.StatusOK, "Authorized. You can close this tab.")
		codeCh <- code
	})

	srv := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", port), Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "callback server: %v\n", err)
		}
	}()

	fmt.Printf("Open this URL in a browser and authorize the app:\n\n  %s\n\n",
		reddit.AuthorizeURL(&cfg.Reddit, state, redirectURI, scopes))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var code string
	select {
	case code = <-codeCh:
	case <-ctx.Done():
		srv.Shutdown(context.Background())
		return fmt.Errorf("timed out waiting for authorization")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	refreshToken, err := reddit.ExchangeCode(ctx, &cfg.Reddit, code, redirectURI)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	fmt.Printf("Refresh token (set MODTRACK_REFRESH_TOKEN):\n\n  %s\n", refreshToken)
	return nil
}
