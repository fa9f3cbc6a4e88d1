package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bytemomo/narwhal/internal/adapter/eventbus"
	"bytemomo/narwhal/internal/adapter/jsonreport"
	"bytemomo/narwhal/internal/adapter/logger"
	"bytemomo/narwhal/internal/analyzer"
	"bytemomo/narwhal/internal/api"
	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/normalize"
	"bytemomo/narwhal/internal/pipeline/consolidator"
	"bytemomo/narwhal/internal/usecase"
	"bytemomo/narwhal/internal/wcag"

	"github.com/sirupsen/logrus"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var (
		urlArg       = flag.String("url", "", "Page URL to scan (required unless -serve)")
		profilePath  = flag.String("profile", "", "Path to scan profile YAML (optional)")
		outDir       = flag.String("out", "", "Output directory (overrides profile)")
		timeout      = flag.Duration("timeout", 0, "Per-analyzer timeout, e.g. 90s (overrides profile)")
		enable       = flag.String("enable", "", "Comma-separated analyzers to enable")
		disable      = flag.String("disable", "", "Comma-separated analyzers to disable")
		logLevel     = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides profile)")
		serve        = flag.Bool("serve", false, "Run the HTTP scan API instead of a single scan")
		listAdapters = flag.Bool("list-adapters", false, "Print the analyzers and whether they can run")
		versionFlag  = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Printf("narwhal accessibility scanner v%s (%s)\n", version, commit)
		return
	}
	if *urlArg == "" && !*serve && !*listAdapters {
		fmt.Fprintf(os.Stderr, "Error: -url is required\n\n")
		flag.Usage()
		os.Exit(2)
	}

	config.LoadDotEnv()
	profile, err := config.NewLoader(".").Load(*profilePath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load profile")
	}
	if err := applyFlags(profile, *outDir, *timeout, *enable, *disable, *logLevel); err != nil {
		logrus.WithError(err).Fatal("Invalid command line")
	}

	lvl, err := logger.ParseLevel(profile.Log.Level)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid log level")
	}
	closer := logger.SetLoggerToStructured(lvl, profile.Log.Format, profile.Log.File)
	defer closer.Close()

	if *listAdapters {
		fmt.Println(renderAdapters(profile))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, profile, *urlArg, *serve); err != nil {
		logrus.WithError(err).Error("narwhal failed")
		stop()
		closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, profile *config.Profile, target string, serve bool) error {
	log := logrus.WithField("version", version)

	uc, cleanup, err := setupScan(log, profile)
	if err != nil {
		return err
	}
	defer cleanup()

	if serve {
		return serveAPI(ctx, log, profile, uc)
	}

	res, err := uc.Execute(ctx, usecase.ScanRequest{URL: target})
	if err != nil {
		return err
	}
	fmt.Println(renderSummary(res))
	return nil
}

func setupScan(log *logrus.Entry, profile *config.Profile) (usecase.ScanUC, func(), error) {
	cleanup := func() {}

	ref, err := wcag.Load(profile.Reference)
	if err != nil {
		return usecase.ScanUC{}, cleanup, fmt.Errorf("load WCAG reference: %w", err)
	}
	registry, err := normalize.DefaultRegistry(ref)
	if err != nil {
		return usecase.ScanUC{}, cleanup, fmt.Errorf("load mapping tables: %w", err)
	}
	policy, err := consolidator.ParsePageLevelMatch(profile.PageLevelMatch)
	if err != nil {
		return usecase.ScanUC{}, cleanup, err
	}
	engine, err := consolidator.New(ref, registry,
		consolidator.WithPageLevelMatch(policy),
		consolidator.WithLogger(log),
	)
	if err != nil {
		return usecase.ScanUC{}, cleanup, err
	}

	factory := analyzer.NewFactory(log)
	uc := usecase.ScanUC{
		Log:     log,
		Engine:  engine,
		Sinks:   jsonreport.New(profile.OutDir),
		Tools:   profile.EnabledTools(),
		Timeout: profile.Timeout,
		Build: func(tool domain.ToolName) (domain.Analyzer, error) {
			return factory.New(tool, profile.AnalyzerOptions(tool))
		},
	}

	if profile.NATS.URL != "" {
		pub, err := eventbus.NewPublisher(profile.NATS.URL, profile.NATS.Subject, log)
		if err != nil {
			log.WithError(err).Warn("Scan events disabled")
		} else {
			uc.Publisher = pub
			cleanup = pub.Close
		}
	}

	log.WithFields(logrus.Fields{
		"tools":     profile.EnabledTools(),
		"timeout":   profile.Timeout.String(),
		"out_dir":   profile.OutDir,
		"reference": ref.Version(),
	}).Info("Scanner ready")
	return uc, cleanup, nil
}

func serveAPI(ctx context.Context, log *logrus.Entry, profile *config.Profile, uc usecase.ScanUC) error {
	enabled := map[domain.ToolName]bool{}
	for _, t := range profile.EnabledTools() {
		enabled[t] = true
	}
	var adapters []api.AdapterInfo
	for _, t := range domain.AllTools() {
		adapters = append(adapters, api.AdapterInfo{Name: t, Category: t.Category(), Enabled: enabled[t]})
	}

	srv := &http.Server{
		Addr:              profile.Listen,
		Handler:           api.NewServer(uc, adapters, 2, log.WithField("component", "api")).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("listen", profile.Listen).Info("Serving scan API")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down scan API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), profile.Timeout+10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func applyFlags(p *config.Profile, outDir string, timeout time.Duration, enable, disable, logLevel string) error {
	if outDir != "" {
		p.OutDir = outDir
	}
	if timeout > 0 {
		p.Timeout = timeout
	}
	if logLevel != "" {
		p.Log.Level = logLevel
	}
	for _, pair := range []struct {
		list string
		on   bool
	}{{enable, true}, {disable, false}} {
		for _, name := range splitCSV(pair.list) {
			tool, err := domain.ParseToolName(name)
			if err != nil {
				return err
			}
			p.SetEnabled(tool, pair.on)
		}
	}
	return p.Validate()
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
