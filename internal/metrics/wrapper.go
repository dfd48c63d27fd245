package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the narrow interfaces the ml, screening
// and web packages depend on.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// ML metrics methods

func (w *MetricsWrapper) MLPredictionsAdd(n int) {
	w.m.MLPredictions.Add(float64(n))
}

func (w *MetricsWrapper) MLFailuresInc() {
	w.m.MLFailures.Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(v float64) {
	w.m.MLLatency.Observe(v)
}

func (w *MetricsWrapper) MLExplainLatencyObserve(v float64) {
	w.m.MLExplainLatency.Observe(v)
}

func (w *MetricsWrapper) MLPredictionScoresObserve(v float64) {
	w.m.MLPredictionScores.Observe(v)
}

func (w *MetricsWrapper) MLModelAgeSet(v float64) {
	w.m.MLModelAge.Set(v)
}

// Screening metrics methods

func (w *MetricsWrapper) UploadsInc() {
	w.m.UploadsTotal.Inc()
}

func (w *MetricsWrapper) ScreeningObserve(rows int) {
	w.m.ScreeningsTotal.Inc()
	w.m.ScreeningRows.Observe(float64(rows))
}

func (w *MetricsWrapper) AtRiskAdd(n int) {
	w.m.AtRiskTotal.Add(float64(n))
}

func (w *MetricsWrapper) StageFailureInc(stage string) {
	w.m.ScreeningFailures.WithLabelValues(stage).Inc()
}

func (w *MetricsWrapper) ExportsInc() {
	w.m.ExportsTotal.Inc()
}

// Session metrics methods

func (w *MetricsWrapper) ActiveSessionsSet(n int) {
	w.m.ActiveSessions.Set(float64(n))
}

func (w *MetricsWrapper) SessionsPurgedAdd(n int) {
	w.m.SessionsPurged.Add(float64(n))
}

// HTTP metrics methods

func (w *MetricsWrapper) HTTPRequestObserve(route, method string, status int, seconds float64) {
	w.m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}
