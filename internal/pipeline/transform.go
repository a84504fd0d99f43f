package pipeline

import (
	"context"

	"github.com/couchcryptid/storm-data-timeline/internal/domain"
)

// IncidentTransformer decodes Kafka messages carrying one upstream incident
// row each.
type IncidentTransformer struct{}

// NewTransformer creates an IncidentTransformer.
func NewTransformer() *IncidentTransformer {
	return &IncidentTransformer{}
}

func (t *IncidentTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.Incident, error) {
	return domain.ParseRawEvent(raw)
}
