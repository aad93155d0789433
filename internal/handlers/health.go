package handlers

import (
	"net/http"

	"github.com/gluk-w/grbbs/internal/database"
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "unhealthy"
	}

	resp := map[string]interface{}{
		"status":   status,
		"database": dbStatus,
	}
	if Registry != nil {
		resp["sessions"] = Registry.Count()
		resp["ceiling"] = Registry.Ceiling()
	}
	writeJSON(w, http.StatusOK, resp)
}
