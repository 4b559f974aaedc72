package ratelimit

import "net/http"

// HealthHandler responde UP com o status informado, ou 503 DOWN quando
// status é nil (gateway sem limiter configurado).
func HealthHandler(status func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if status == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "DOWN",
				"reason": "API Sheriff not available",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":     "UP",
			"apiSheriff": status(),
		})
	}
}

func InfoHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "API Sheriff gateway",
			"version": version,
		})
	}
}
