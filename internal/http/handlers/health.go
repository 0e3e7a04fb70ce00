package handlers

import (
	"context"
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	database := "disabled"
	if a.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Ping(ctx); err != nil {
			database = "unavailable"
		} else {
			database = "ok"
		}
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "database": database})
}
