package controllers

import (
	"net/http"

	"github.com/bijaykarki/meromart-backend/api/responses"
	"github.com/bijaykarki/meromart-backend/pkg/config"
	"github.com/bijaykarki/meromart-backend/pkg/db"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
	"github.com/bijaykarki/meromart-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MeroMart-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady checks the datastores the API cannot serve without.
func HealthReady(cfg *config.Config, database db.Pinger, cache redis.Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MeroMart-Env", cfg.App.Env)

		if database != nil {
			if err := database.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unreachable"))
				return
			}
		}
		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unreachable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
