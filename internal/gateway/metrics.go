package gateway

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты обновления токенов (label result): rejected означает ответ с кодом ошибки, failed означает отсутствие ответа, битое тело или сбой хранилища.
const (
	refreshOK       = "ok"
	refreshRejected = "rejected"
	refreshNoToken  = "no_token"
	refreshFailed   = "failed"
)

type metrics struct {
	requests *prometheus.CounterVec
	refresh  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "upravdom",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Outgoing backend requests by method and HTTP status (code=\"error\" when no response).",
		}, []string{"method", "code"}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "upravdom",
			Subsystem: "gateway",
			Name:      "refresh_total",
			Help:      "Token refresh attempts by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.refresh)
	}

	return m
}

// request учитывает попытку запроса; status 0 означает, что ответа не было.
func (m *metrics) request(method string, status int) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}

	m.requests.WithLabelValues(method, code).Inc()
}

func (m *metrics) refreshResult(result string) {
	m.refresh.WithLabelValues(result).Inc()
}
