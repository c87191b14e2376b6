package main

import (
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/podiumhq/podium/backend/internal/api"
	"github.com/podiumhq/podium/backend/internal/config"
	"github.com/podiumhq/podium/backend/internal/reaper"
	"github.com/podiumhq/podium/backend/internal/room"
	"github.com/podiumhq/podium/backend/internal/store"
	"github.com/podiumhq/podium/backend/internal/ws"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	var logger *zap.Logger
	if cfg.Dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	docs, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("open document store", zap.Error(err))
	}
	defer docs.Close()

	rooms := room.NewStore()

	hub := ws.NewHub(rooms, logger)
	go hub.Run()

	janitor := reaper.New(rooms, cfg.RoomGrace, logger)
	janitor.Start()

	apiHandler := api.New(hub, rooms, docs, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, logger, w, r)
	})
	mux.HandleFunc("/health", apiHandler.HealthHandler)
	mux.HandleFunc("/api/stats", apiHandler.StatsHandler)
	mux.HandleFunc("/api/polls", apiHandler.PollsRouter)
	mux.HandleFunc("/api/polls/", apiHandler.PollsRouter)
	mux.HandleFunc("/api/presentations", apiHandler.PresentationsRouter)
	mux.HandleFunc("/api/presentations/", apiHandler.PresentationsRouter)
	mux.HandleFunc("/qr.png", apiHandler.QRHandler)
	mux.HandleFunc("/qr.svg", apiHandler.QRSVGHandler)
	mux.HandleFunc("/qr", apiHandler.QRPageHandler)
	mux.HandleFunc("/j", apiHandler.JoinHandler)
	mux.HandleFunc("/j/", apiHandler.JoinHandler)
	mux.Handle("/", http.FileServer(http.Dir(cfg.PublicDir)))

	server := http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: corsMiddleware(mux),
	}

	// signal.Notify requires a buffered channel
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctrlc
		logger.Info("shutting down")
		janitor.Stop()
		server.Close()
	}()

	logger.Info("🎤 podium server starting",
		zap.Int("port", cfg.Port),
		zap.String("db", cfg.DBPath),
		zap.String("public", cfg.PublicDir))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("listen", zap.Error(err))
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
