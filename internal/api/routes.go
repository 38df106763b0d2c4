package api

import "net/http"

// Routes registers the versioned management surface on a fresh mux. Health
// and metrics handlers are mounted by the caller so they can sit outside the
// auth middleware.
func Routes(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/endpoints", h.createEndpoint)
	mux.HandleFunc("GET /v1/endpoints", h.listEndpoints)
	mux.HandleFunc("GET /v1/endpoints/{id}", h.getEndpoint)
	mux.HandleFunc("PATCH /v1/endpoints/{id}", h.updateEndpoint)
	mux.HandleFunc("DELETE /v1/endpoints/{id}", h.deleteEndpoint)
	mux.HandleFunc("POST /v1/endpoints/{id}/test", h.testEndpoint)

	mux.HandleFunc("GET /v1/deliveries", h.listDeliveries)
	mux.HandleFunc("GET /v1/deliveries/{id}", h.getDelivery)
	mux.HandleFunc("POST /v1/deliveries/{id}/retry", h.retryDelivery)

	mux.HandleFunc("POST /v1/events", h.publishEvent)

	return mux
}
