package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/config"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/controlplane"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/diag"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/feed"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/logging"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/state"
)

var version = "0.1.0"

// #region cli
// CLI defines the command-line interface.
type CLI struct {
	Config string `short:"c" type:"path" help:"Path to YAML config file (optional)"`

	Serve ServeCmd `cmd:"" default:"1" help:"Run the control plane"`
	Check CheckCmd `cmd:"" help:"Validate the config and print a summary"`
}

type ServeCmd struct {
	Tick       time.Duration `default:"250ms" help:"Period of the low-frequency timers"`
	InboxSize  int           `default:"256" help:"Scheduler inbox capacity"`
	WriteQueue int           `default:"512" help:"Pending persistence writes before new ones are dropped"`
	Pretty     bool          `help:"Human-readable console logs"`
}

type CheckCmd struct{}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("controlplane"),
		kong.Description("Audio-reactive visual control plane"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	ctx.FatalIfErrorf(ctx.Run(cli))
}

// #endregion cli

// #region serve
func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogPretty || c.Pretty, os.Stderr)
	if err != nil {
		return err
	}
	mainLog := logging.Component(logger, "main")

	store, err := state.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	writer := state.NewWriter(c.WriteQueue, logger)
	defer writer.Close()

	hub := feed.NewHub(cfg.FeedOrigins, cfg.LoadAckTimeout, logger)
	sched := controlplane.NewScheduler(cfg, controlplane.Deps{
		Catalog: preset.NewStaticCatalog(cfg.Catalog),
		Fetcher: preset.NewHTTPFetcher(cfg.FetchTimeout),
		Loader:  hub,
		Store:   store.Async(writer),
		DB:      store.DB(),
		Writer:  writer,
		Logger:  logger,
	})
	defer sched.Close()
	if err := sched.Restore(time.Now()); err != nil {
		mainLog.Warn().Err(err).Msg("restore persisted state")
	}

	runner := controlplane.NewRunner(sched, c.Tick, c.InboxSize, logger)
	hub.Attach(runner)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 2)

	httpSrv := &http.Server{Addr: cfg.FeedAddr, Handler: hub.Routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		mainLog.Info().Str("addr", cfg.FeedAddr).Msg("feed listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("feed server: %w", err)
		}
	}()

	lis, err := net.Listen("tcp", cfg.DiagAddr)
	if err != nil {
		return fmt.Errorf("diag listen %s: %w", cfg.DiagAddr, err)
	}
	diagSrv := diag.NewServer(diag.RunnerBackend{Runner: runner}, logger)
	go func() {
		if err := diagSrv.Serve(lis); err != nil {
			errc <- fmt.Errorf("diag server: %w", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case err := <-errc:
			mainLog.Error().Err(err).Msg("server failed, shutting down")
			cancel()
		case <-runCtx.Done():
		}
	}()

	mainLog.Info().
		Bool("enabled", cfg.Enabled).
		Int("catalog", len(cfg.Catalog)).
		Str("db", cfg.DBPath).
		Msg("control plane ready")
	if err := runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		mainLog.Warn().Err(err).Msg("feed shutdown")
	}
	diagSrv.Stop()
	mainLog.Info().Msg("control plane stopped")
	return nil
}

// #endregion serve

// #region check
var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FAFFF"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	valueStyle = lipgloss.NewStyle().Bold(true)
)

func (c *CheckCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	fmt.Println(titleStyle.Render("config ok"))
	row := func(k string, v any) {
		fmt.Printf("  %s %s\n", keyStyle.Render(fmt.Sprintf("%-16s", k)), valueStyle.Render(fmt.Sprint(v)))
	}
	row("enabled", cfg.Enabled)
	row("auto cycle", cfg.AutoCycle)
	row("feed", cfg.FeedAddr)
	row("diagnostics", cfg.DiagAddr)
	row("db", cfg.DBPath)
	row("presets", len(cfg.Catalog))
	row("anchors", cfg.Preset.Anchors)
	row("resolution", cfg.Resolution.Ladder)
	return nil
}

// #endregion check
