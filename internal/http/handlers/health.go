package handlers

import (
	"net/http"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Model   string `json:"model"`
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	if err := a.Generator.HealthCheck(r.Context()); err != nil {
		a.log(r).Warn().Err(err).Msg("health check failed")
		a.error(w, http.StatusServiceUnavailable, "Gemini service is not available")
		return
	}
	a.json(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		Version: a.Config.AppVersion,
		Model:   a.Generator.Model(),
	})
}
