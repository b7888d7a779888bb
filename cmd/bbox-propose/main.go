package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/medveriground/bbox-annotator/internal/bootstrap"
	"github.com/medveriground/bbox-annotator/internal/config"
	"github.com/medveriground/bbox-annotator/internal/logger"
	"github.com/medveriground/bbox-annotator/internal/utils"
	"github.com/medveriground/bbox-annotator/pkg/imagery"
	"github.com/medveriground/bbox-annotator/pkg/proposer"
	"github.com/medveriground/bbox-annotator/pkg/session"
)

func main() {
	var cfgPath, in, images, out, backend, url, model string
	var maxDim, quality int
	var overwrite bool

	flag.StringVar(&cfgPath, "config", config.GetConfigPath(), "config file (JSON); missing is fine")
	flag.StringVar(&in, "in", "", "proposal set JSON; evidence without bbox is grounded")
	flag.StringVar(&images, "images", "", "images directory")
	flag.StringVar(&out, "out", "", "output JSON (default: <in>.proposed.json)")
	flag.StringVar(&backend, "backend", "", "backend to use: ollama or llamacpp")
	flag.StringVar(&url, "url", "", "server URL")
	flag.StringVar(&model, "model", "", "model name")
	flag.IntVar(&maxDim, "sendsize", 0, "max long side sent to the model (px)")
	flag.IntVar(&quality, "sendq", 0, "JPEG quality for the image sent to the model (1-100)")
	flag.BoolVar(&overwrite, "overwrite", false, "re-ground evidence that already has a box or the sentinel")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	pc := cfg.Proposer
	if backend != "" {
		pc.Backend = backend
	}
	if url != "" {
		pc.URL = url
	}
	if model != "" {
		pc.Model = model
	}
	if maxDim > 0 {
		pc.MaxDim = maxDim
	}
	if quality > 0 {
		pc.Quality = quality
	}
	if in == "" {
		in = cfg.Session.ProposalsPath
	}
	if images == "" {
		images = cfg.Session.ImagesDir
	}
	if in == "" || images == "" {
		log.Fatalf("usage: %s -in proposals.json -images dir [-backend ollama|llamacpp] [-url server_url] [-model name] [-out file]", filepath.Base(os.Args[0]))
	}
	if out == "" {
		out = in[:len(in)-len(filepath.Ext(in))] + ".proposed.json"
	}

	lg := logger.NewZapLogger(logger.Options{File: cfg.Log.File, Level: cfg.Log.Level, Production: cfg.Log.Production})
	defer lg.Sync()

	data, err := os.ReadFile(in)
	if err != nil {
		log.Fatal(err)
	}
	examples, err := session.DecodeProposals(data)
	if err != nil {
		log.Fatal(err)
	}

	vc, err := bootstrap.VisionClient(pc)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := vc.Ping(pingCtx); err != nil {
		cancel()
		color.Red("%s backend unreachable: %v", pc.Backend, err)
		os.Exit(1)
	}
	cancel()

	p := proposer.New(vc, imagery.NewLoader(images, 0), proposer.Config{
		Model:     pc.Model,
		MaxDim:    pc.MaxDim,
		Quality:   pc.Quality,
		Overwrite: overwrite,
	})

	started := time.Now()
	proposed, st, err := p.Propose(ctx, examples)
	if err != nil {
		lg.Error("propose", "run aborted", map[string]interface{}{"error": err})
		os.Exit(1)
	}

	if err := utils.EnsureDir(filepath.Dir(out)); err != nil {
		log.Fatal(err)
	}
	encoded, err := json.MarshalIndent(proposed, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(out, encoded, 0o644); err != nil {
		log.Fatal(err)
	}

	lg.Info("propose", "done", map[string]interface{}{
		"out":      out,
		"stats":    st,
		"duration": time.Since(started).String(),
	})
	color.Green("wrote %s: %d boxed, %d sentinel, %d kept", out, st.Boxed, st.Sentinel, st.Kept)
	if st.Failed > 0 || st.NoImage > 0 {
		color.Yellow("%d model failures, %d evidences without image", st.Failed, st.NoImage)
	}
}
