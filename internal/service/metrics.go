package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/tkivite/knowledgestore-api/pkg/errors"
	"github.com/tkivite/knowledgestore-api/pkg/validator"
)

var authEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_events_total",
	Help: "Auth flow outcomes by event.",
}, []string{"event", "outcome"})

// observe counts the outcome of an auth flow. Rejections caused by the
// caller are kept apart from server failures.
func observe(event string, err *error) {
	authEvents.WithLabelValues(event, outcome(*err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		return "rejected"
	}
	if apperrors.HTTPStatus(err) < 500 {
		return "rejected"
	}
	return "error"
}
