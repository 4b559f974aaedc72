package ratelimit

import (
	"encoding/json"
	"net/http"

	"api-sheriff/middleware/ratelimit/domain"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminRoutes monta as rotas administrativas sobre o estado por cliente:
//
//	GET    /clients       -> {"tracked_clients": n}
//	DELETE /clients       -> {"cleared": n}
//	GET    /clients/{id}  -> {"client": id, "remaining": r, "limit": max}
//	DELETE /clients/{id}  -> 204
//
// Não há autenticação aqui; monte atrás de algo que proteja /admin.
func AdminRoutes(r domain.ClientResetter, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := admin{resetter: r, logger: logger}

	router := chi.NewRouter()
	router.Get("/clients", a.count)
	router.Delete("/clients", a.resetAll)
	router.Get("/clients/{id}", a.remaining)
	router.Delete("/clients/{id}", a.resetClient)
	return router
}

type admin struct {
	resetter domain.ClientResetter
	logger   *zap.Logger
}

func (a admin) count(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"tracked_clients": a.resetter.TrackedClients()})
}

func (a admin) resetAll(w http.ResponseWriter, _ *http.Request) {
	n := a.resetter.ResetAll()
	a.logger.Info("admin reset all clients", zap.Int("cleared", n))
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (a admin) remaining(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q, ok := a.resetter.(domain.QuotaReporter)
	if !ok {
		http.Error(w, "limiter does not report remaining quota", http.StatusNotFound)
		return
	}
	rem, err := q.Remaining(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client":    id,
		"remaining": rem,
		"limit":     q.MaxRequests(),
	})
}

func (a admin) resetClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.resetter.ResetClient(id); err != nil {
		writeError(w, err)
		return
	}
	a.logger.Info("admin reset client", zap.String("client", id))
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if domain.IsInvalidArgument(err) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
