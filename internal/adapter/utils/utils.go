package utils

import (
	"net/http"
	"sync"

	_ "github.com/akolanti/ResearchAssistant/cmd/api/docs"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggo/http-swagger"
)

var (
	once   sync.Once
	router *chi.Mux
)

func GetNewUUID() string {
	return uuid.New().String()
}

func GetChiURLParam(request *http.Request, key string) string {
	return chi.URLParam(request, key)
}

// GetRouter returns the process wide router.
func GetRouter() *chi.Mux {
	once.Do(func() {
		router = NewRouter()
	})
	return router
}

// NewRouter returns a router with panic recovery, swagger and /metrics mounted.
func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
	})
	r.Get("/swagger/*", httpSwagger.WrapHandler)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
