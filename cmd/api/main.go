package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"busquest/internal/api"
	"busquest/internal/buildinfo"
	"busquest/internal/config"
	"busquest/internal/loop"
	"busquest/internal/metrics"
	"busquest/internal/network"
	"busquest/internal/planner"
	"busquest/internal/realtime"
	"busquest/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	metrics.RegisterDefault()
	log.Printf("busquest %s starting", buildinfo.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	buildOpts := network.BuildOptions{
		HubKeywords:    cfg.HubKeywords,
		HubFallbackLat: cfg.HubFallbackLat,
		HubFallbackLon: cfg.HubFallbackLon,
	}
	loader := &network.Loader{DataDir: cfg.DataDir}
	snap, err := loader.Load(buildOpts)
	if err != nil {
		log.Fatalf("load network from %s: %v", cfg.DataDir, err)
	}
	log.Printf("network %s loaded: %d stops, %d edges, %d eligible lines",
		snap.Version, len(snap.Stops), len(snap.Edges), len(snap.EligibleLines))

	var overlay *realtime.Overlay
	if cfg.RealtimeFeedURL != "" {
		overlay = realtime.NewOverlay(realtime.NewHTTPFeed(cfg.RealtimeFeedURL), realtime.Options{
			CacheTTL: cfg.RealtimeCacheTTL,
		})
	}

	overrides, err := cfg.LoadChallengeOverrides()
	if err != nil {
		log.Fatalf("challenge overrides: %v", err)
	}
	presentation := map[string]planner.Presentation{}
	for id, ov := range overrides {
		presentation[id] = planner.Presentation{
			Title:     ov.Title,
			Tagline:   ov.Tagline,
			ThemeTags: ov.ThemeTags,
			Badge:     ov.Badge,
		}
	}

	svc := planner.NewService(snap, planner.Options{
		Loader:       loader,
		BuildOptions: buildOpts,
		Overlay:      overlay,
		Store:        st,
		Loop:         loop.Options{QuadrantMinimum: cfg.QuadrantMinimum},
		Presentation: presentation,
	})

	var broker api.EventBroker
	if cfg.RedisURL != "" {
		if rb, err := api.NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			log.Printf("redis broker unavailable, using in-memory: %v", err)
			broker = api.NewBroker()
		}
	} else {
		broker = api.NewBroker()
	}

	server := api.NewServer(svc, st, broker, cfg.AdminToken, log.Default())

	if cfg.RecomputeInterval > 0 {
		go recomputeWorker(ctx, svc, broker, cfg.RecomputeInterval)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           logMiddleware(metricsMiddleware(server.Routes())),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("API listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// recomputeWorker keeps plans warm and announces fresh ones on the broker.
func recomputeWorker(ctx context.Context, svc *planner.Service, broker api.EventBroker, interval time.Duration) {
	svc.ComputeAll(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.ComputeAll(ctx)
			for _, info := range svc.ListChallenges() {
				plan, err := svc.GetChallenge(ctx, info.ID)
				if err != nil {
					continue
				}
				broker.Publish(info.ID, api.Event{Type: "plan.recomputed", Data: map[string]any{
					"challengeId":     info.ID,
					"planId":          plan.PlanID,
					"engine":          plan.Engine,
					"networkVersion":  plan.NetworkVersion,
					"realtimeVersion": plan.RealtimeVersion,
				}})
			}
		}
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// streaming endpoints hold the connection open and would skew the
		// duration histogram
		if r.URL.Path == "/v1/events/stream" || r.URL.Path == "/v1/events/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		code := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, code).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, code).Observe(time.Since(start).Seconds())
	})
}
