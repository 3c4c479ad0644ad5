package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"insight-backend/internal/api"
	"insight-backend/internal/config"
	"insight-backend/internal/logging"
	"insight-backend/internal/state"
)

func main() {
	cfg := config.LoadConfig()
	logging.Init(cfg.Env)

	store := state.NewStore()
	handler := api.NewHandler(cfg, store)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Insight Backend is Running"))
	})

	handler.RegisterRoutes(r)

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting server")

	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}
