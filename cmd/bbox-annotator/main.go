package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/medveriground/bbox-annotator/internal/bootstrap"
	"github.com/medveriground/bbox-annotator/internal/config"
	"github.com/medveriground/bbox-annotator/internal/metrics"
	"github.com/medveriground/bbox-annotator/internal/server"
)

func main() {
	var cfgPath, proposals, images, annotator, outDir, host string
	var port int
	var saveConfig bool

	flag.StringVar(&cfgPath, "config", config.GetConfigPath(), "config file (JSON); missing is fine")
	flag.StringVar(&proposals, "proposals", "", "default proposals JSON for new sessions")
	flag.StringVar(&images, "images", "", "default images directory for new sessions")
	flag.StringVar(&annotator, "annotator", "", "default annotator id")
	flag.StringVar(&outDir, "out", "", "directory for local annotation files")
	flag.StringVar(&host, "host", "", "listen host")
	flag.IntVar(&port, "port", 0, "listen port")
	flag.BoolVar(&saveConfig, "save-config", false, "write the effective config (without secrets) to -config and exit")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if proposals != "" {
		cfg.Session.ProposalsPath = proposals
	}
	if images != "" {
		cfg.Session.ImagesDir = images
	}
	if annotator != "" {
		cfg.Session.AnnotatorID = annotator
	}
	if outDir != "" {
		cfg.Session.OutputDir = outDir
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	if saveConfig {
		if err := cfg.Validate(); err != nil {
			log.Fatal(err)
		}
		if err := cfg.SaveToFile(cfgPath); err != nil {
			log.Fatal(err)
		}
		color.Green("wrote %s", cfgPath)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := bootstrap.New(ctx, cfg)
	if err != nil {
		color.Red("startup failed: %v", err)
		os.Exit(1)
	}
	defer container.Close()

	srv := server.New(server.Deps{
		Config:    cfg,
		Logger:    container.Logger,
		Metrics:   metrics.New(),
		Local:     container.Local,
		Persister: container.Persister,
	})

	color.Cyan("bbox-annotator on http://%s", cfg.Server.Addr())
	if container.Remote != nil {
		color.Green("saving to %s@%s under %s/", cfg.Remote.Repo, cfg.Remote.Branch, cfg.Remote.Prefix)
	} else {
		color.Yellow("saving locally to %s", cfg.Session.OutputDir)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Run() }()

	select {
	case err := <-errc:
		if err != nil {
			container.Logger.Error("main", "server stopped", map[string]interface{}{"error": err})
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			container.Logger.Error("main", "shutdown failed", map[string]interface{}{"error": err})
		}
	}
}
