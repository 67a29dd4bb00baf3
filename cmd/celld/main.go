package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamware/multicell/internal/app"
	"github.com/dreamware/multicell/internal/cluster"
	"github.com/dreamware/multicell/internal/config"
	"github.com/dreamware/multicell/internal/health"
	"github.com/dreamware/multicell/internal/topology"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	a, err := app.Open(cfg, "celld")
	if err != nil {
		log.Fatalf("open topology: %v", err)
	}
	defer a.Close()

	a.Service.AddPropertyListener(topology.ListenerFunc(func(ev topology.PropertyChange) {
		log.Printf("local cell %s changed: %q -> %q", ev.Property, ev.Old, ev.New)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor := health.NewMonitor(cfg.HealthInterval)
	monitor.SetOnUnhealthy(func(cellID int) {
		log.Printf("cell %d is unreachable", cellID)
	})
	if cfg.Multicell() {
		monitor.Start(ctx, func() []cluster.CellInfo {
			return app.Infos(a.Service.Cells())
		})
		defer monitor.Stop()
	}

	srv := newServer(a.Service, monitor)
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("celld listening on %s (cell %d)", cfg.Addr, a.Service.LocalCellID())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Println("celld stopped")
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/cells", s.handleCells)
	mux.HandleFunc("/cells/remove", s.handleRemoveCells)
	mux.HandleFunc("/cells/properties", s.handleProperties)
	mux.HandleFunc("/cells/service-tag", s.handleServiceTag)
	mux.HandleFunc("/cells/health", s.handleCellHealth)
	mux.HandleFunc("/route", s.handleRoute)
	mux.HandleFunc("/silo", s.handleSilo)
	mux.HandleFunc("/master", s.handleMaster)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
