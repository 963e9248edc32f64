package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haukened/splitdns/internal/dns/common/clock"
	"github.com/haukened/splitdns/internal/dns/common/log"
	"github.com/haukened/splitdns/internal/dns/config"
	"github.com/haukened/splitdns/internal/dns/ipset"
	"github.com/haukened/splitdns/internal/dns/relay"
	"github.com/haukened/splitdns/internal/dns/repos/nametag"
	"github.com/haukened/splitdns/internal/dns/transport"
	"github.com/haukened/splitdns/internal/dns/wire"
)

const (
	version = "0.1.0-dev"
	appName = "splitdnsd"

	// target false-positive rate for the domain tag Bloom prefilter
	tagBloomFPRate = 0.01
)

// Application holds the composed relay components.
type Application struct {
	config    *config.AppConfig
	transport *transport.UDPRelay
	relay     *relay.Relay
	tagStore  nametag.Store
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":       version,
		"env":           cfg.Env,
		"log_level":     cfg.LogLevel,
		"bind":          cfg.Bind,
		"china_servers": cfg.ChinaServers,
		"trust_servers": cfg.TrustServers,
		"default_tag":   cfg.DefaultTag,
	}, "starting splitdns relay")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "relay failed")
	}

	log.Info(nil, "splitdns relay stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()

	parser := wire.NewParser(logger)

	chnroute, err := ipset.LoadFiles(cfg.ChnRouteFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to load chnroute files: %w", err)
	}
	v4, v6 := chnroute.Len()
	log.Info(map[string]any{"ipv4_ranges": v4, "ipv6_ranges": v6}, "chnroute set loaded")

	tags, tagStore, err := buildTagRepository(cfg, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to build tag repository: %w", err)
	}

	udpRelay, err := transport.NewUDPRelay(cfg.Bind, cfg.ChinaServers, cfg.TrustServers, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	relayService := relay.New(relay.Options{
		Parser:      parser,
		Sender:      udpRelay,
		ChnRoute:    chnroute,
		Tags:        tags,
		Clock:       clk,
		Logger:      logger,
		Timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
		DefaultTag:  nametag.ParseTag(cfg.DefaultTag),
		AcceptNoIP:  cfg.AcceptNoIP,
		FilterAAAA:  cfg.FilterAAAA,
		RepeatTimes: cfg.RepeatTimes,
	})

	return &Application{
		config:    cfg,
		transport: udpRelay,
		relay:     relayService,
		tagStore:  tagStore,
	}, nil
}

// buildTagRepository loads the gfwlist/chnlist files into the Bolt-backed
// tag index. With no list files configured, tagging is disabled entirely.
func buildTagRepository(cfg *config.AppConfig, clk clock.Clock) (relay.Tagger, nametag.Store, error) {
	if len(cfg.GFWListFiles) == 0 && len(cfg.ChnListFiles) == 0 {
		log.Info(nil, "no domain list files configured, tagging disabled")
		return nil, nil, nil
	}

	store, err := nametag.NewBoltStore(cfg.TagDB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open tag database: %w", err)
	}

	cache, err := nametag.NewCache(cfg.TagCacheSize)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	repo := nametag.NewRepository(store, cache, tagBloomFPRate)

	var rules []nametag.Rule
	for _, group := range []struct {
		tag   nametag.Tag
		files []string
	}{
		{nametag.TagGFW, cfg.GFWListFiles},
		{nametag.TagChn, cfg.ChnListFiles},
	} {
		for _, path := range group.files {
			f, err := os.Open(path)
			if err != nil {
				_ = store.Close()
				return nil, nil, err
			}
			parsed, err := nametag.ParseList(f, group.tag, log.GetLogger())
			_ = f.Close()
			if err != nil {
				_ = store.Close()
				return nil, nil, fmt.Errorf("%s: %w", path, err)
			}
			rules = append(rules, parsed...)
		}
	}

	now := clk.Now().Unix()
	if err := repo.UpdateAll(rules, uint64(now), now); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to index domain lists: %w", err)
	}

	log.Info(map[string]any{"rules": len(rules), "db": cfg.TagDB}, "domain tag index built")
	return repo, store, nil
}

// Run starts the relay and blocks until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	if err := app.transport.Start(ctx, app.relay); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}

	// pending-query timeout sweeper
	go app.relay.Run(ctx)

	log.Info(map[string]any{
		"address": app.transport.Address(),
		"app":     appName,
	}, "relay started")

	<-ctx.Done()
	log.Info(nil, "shutdown initiated")

	if err := app.transport.Stop(); err != nil {
		log.Warn(map[string]any{"error": err}, "error during transport shutdown")
	}
	if app.tagStore != nil {
		if err := app.tagStore.Close(); err != nil {
			log.Warn(map[string]any{"error": err}, "error closing tag database")
		}
	}
	return nil
}
