package sim

import (
	"drift-and-mend/client/internal/telemetry"
	"drift-and-mend/client/logging"
)

// Deps carries shared infrastructure dependencies required by the tick pipeline.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Clock     logging.Clock
	Publisher logging.Publisher
}

func (d Deps) clock() logging.Clock {
	if d.Clock == nil {
		return logging.SystemClock{}
	}
	return d.Clock
}
