package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves every promauto-registered metric.
func Handler() http.Handler {
	return promhttp.Handler()
}
