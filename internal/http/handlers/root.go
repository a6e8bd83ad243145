package handlers

import "net/http"

type rootResponse struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Status        string            `json:"status"`
	Documentation string            `json:"documentation"`
	Endpoints     map[string]string `json:"endpoints"`
}

func (a *App) Root(w http.ResponseWriter, _ *http.Request) {
	a.json(w, http.StatusOK, rootResponse{
		Name:          a.Config.AppTitle,
		Version:       a.Config.AppVersion,
		Status:        "running",
		Documentation: "/docs",
		Endpoints: map[string]string{
			"generate": "/api/generate",
			"health":   "/api/health",
		},
	})
}
