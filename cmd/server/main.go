package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"termbridge/internal/config"
	"termbridge/internal/realtime"
	"termbridge/internal/router"
	"termbridge/internal/session"
	"termbridge/internal/store"
)

func main() {
	configPath := flag.String("config", "termbridge.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		log.Fatalf("data dir: %v", err)
	}
	st, err := store.Open(filepath.Join(cfg.DataDir, "termbridge.db"))
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	mgr := session.NewManager(session.Limits{
		MaxPerToken:      cfg.MaxSessionsPerToken,
		MaxGlobal:        cfg.MaxSessionsGlobal,
		IdleTimeout:      cfg.IdleTimeout,
		AggressiveIdle:   cfg.IdleTimeout,
		PerSessionBudget: cfg.PerSessionBudget,
	}, session.DefaultSpawner())

	rt := router.New(cfg.HistoryLimit)

	var agentsWatch *router.AgentsWatcher
	if cfg.AgentsFile != "" {
		agentsWatch, err = router.WatchAgentsFile(rt.Agents(), cfg.AgentsFile)
		if err != nil {
			log.Printf("agents file %s: %v (continuing with defaults)", cfg.AgentsFile, err)
		}
	}

	srv := realtime.New(mgr, rt, st, realtime.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
		ReclaimInterval:   cfg.ReclaimInterval,
		IdleTimeout:       cfg.IdleTimeout,
		AutoAuth:          cfg.AutoAuth,
		StaticDir:         cfg.StaticDir,
	})
	srv.Start()

	handler := srv.Handler()
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	go func() {
		if err := realtime.ServeSecure(handler, cfg.TLSPort, cfg.CertDir); err != http.ErrServerClosed {
			log.Printf("secure listener: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		if agentsWatch != nil {
			agentsWatch.Close()
		}
		srv.Close()
		mgr.Shutdown()
		httpServer.Close()
	}()

	log.Printf("termbridge running on http://localhost:%d", cfg.Port)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}
