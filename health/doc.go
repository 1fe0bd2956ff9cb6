// Package health describes component health for the /health endpoint.
//
// Components implement Reporter and return a Status in one of three states.
// Aggregate and Collect roll sub-statuses up: one unhealthy part makes the
// service unhealthy (HTTP 503), a degraded part (for example a lost NATS
// mirror connection) only degrades it.
//
//	status := health.Collect("semblog", store, broker, mirror)
//	w.WriteHeader(status.HTTPStatus())
//	json.NewEncoder(w).Encode(status)
package health
