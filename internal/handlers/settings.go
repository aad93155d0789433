package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gluk-w/grbbs/internal/database"
	"github.com/gluk-w/grbbs/internal/logging"
)

func GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := database.ListSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	result := make(map[string]interface{}, len(settings)+2)
	for _, s := range settings {
		result[s.Key] = s.Value
	}
	if Registry != nil {
		result["active_sessions"] = Registry.Count()
		result["speed_profiles"] = Registry.Rates().Profiles()
	}
	writeJSON(w, http.StatusOK, result)
}

type settingsUpdateRequest struct {
	MaxConcurrentClients *int    `json:"max_concurrent_clients,omitempty"`
	DefaultSpeed         *string `json:"default_speed,omitempty"`
}

// UpdateSettings persists runtime settings and applies them to the live
// registry. Sessions already admitted are not affected.
func UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if body.MaxConcurrentClients != nil && *body.MaxConcurrentClients < 0 {
		writeError(w, http.StatusBadRequest, "max_concurrent_clients must be >= 0")
		return
	}
	if body.DefaultSpeed != nil && Registry != nil && !Registry.Rates().Has(*body.DefaultSpeed) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown speed profile %q", *body.DefaultSpeed))
		return
	}

	if body.MaxConcurrentClients != nil {
		n := *body.MaxConcurrentClients
		if err := database.SetSetting(database.SettingMaxConcurrentClients, strconv.Itoa(n)); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
		if Registry != nil {
			Registry.SetCeiling(n)
		}
		log.Printf("[settings] max concurrent clients set to %d", n)
	}

	if body.DefaultSpeed != nil {
		speed := *body.DefaultSpeed
		if err := database.SetSetting(database.SettingDefaultSpeed, speed); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
		if Registry != nil {
			Registry.SetDefaultSpeed(speed)
		}
		log.Printf("[settings] default speed set to %s", logging.Sanitize(speed))
	}

	GetSettings(w, r)
}
