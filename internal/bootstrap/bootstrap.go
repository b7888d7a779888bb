// Package bootstrap wires configuration into the concrete logger, stores and
// model clients shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/medveriground/bbox-annotator/internal/config"
	"github.com/medveriground/bbox-annotator/internal/logger"
	"github.com/medveriground/bbox-annotator/pkg/client"
	"github.com/medveriground/bbox-annotator/pkg/github"
	"github.com/medveriground/bbox-annotator/pkg/llamacpp"
	"github.com/medveriground/bbox-annotator/pkg/ollama"
	"github.com/medveriground/bbox-annotator/pkg/store"
)

// Container holds the collaborators built from one configuration
type Container struct {
	Config *config.Config
	Logger *logger.ZapLogger
	Local  *store.LocalStore
	// Remote is nil unless a token is configured
	Remote    *store.RemoteStore
	Persister store.Persister
}

// New builds the container. When a token is configured the remote
// repository is pinged once; an unreachable repository is an error so that
// misconfiguration shows up before the first decision.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		Config: cfg,
		Logger: logger.NewZapLogger(logger.Options{
			File:       cfg.Log.File,
			Level:      cfg.Log.Level,
			Production: cfg.Log.Production,
		}),
		Local: store.NewLocalStore(cfg.Session.OutputDir),
	}
	c.Persister = c.Local

	if !cfg.Remote.Enabled() {
		c.Logger.Info("bootstrap", "persisting locally", map[string]interface{}{
			"dir": cfg.Session.OutputDir,
		})
		return c, nil
	}

	gh, err := github.NewClient(github.Config{
		APIURL:  cfg.Remote.APIURL,
		Repo:    cfg.Remote.Repo,
		Branch:  cfg.Remote.Branch,
		Token:   cfg.Remote.Token,
		Timeout: cfg.Remote.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("remote store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Remote.Timeout())
	defer cancel()
	if err := gh.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("remote store: %w", err)
	}

	c.Remote = store.NewRemoteStore(gh, store.RemoteConfig{
		Prefix:      cfg.Remote.Prefix,
		Timeout:     cfg.Remote.Timeout(),
		MaxAttempts: cfg.Remote.MaxAttempts,
	})
	c.Persister = c.Remote
	c.Logger.Info("bootstrap", "persisting to remote repository", map[string]interface{}{
		"repo":   cfg.Remote.Repo,
		"branch": cfg.Remote.Branch,
		"prefix": cfg.Remote.Prefix,
	})
	return c, nil
}

// ModelClient is a vision client that can check its server
type ModelClient interface {
	client.VisionClient
	client.Pinger
}

// VisionClient creates the proposer backend named in cfg
func VisionClient(cfg config.ProposerConfig) (ModelClient, error) {
	switch cfg.Backend {
	case "ollama":
		c, err := ollama.NewClient(cfg.URL)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "llamacpp":
		url := cfg.URL
		if url == "" || url == config.Default().Proposer.URL {
			url = "http://localhost:8080"
		}
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (use ollama or llamacpp)", cfg.Backend)
	}
}

// Close flushes the logger
func (c *Container) Close() {
	_ = c.Logger.Sync()
}
