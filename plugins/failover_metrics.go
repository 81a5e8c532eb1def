/*
  Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.

  Licensed under the Apache License, Version 2.0 (the "License").
  You may not use this file except in compliance with the License.
  You may obtain a copy of the License at

  http://www.apache.org/licenses/LICENSE-2.0

  Unless required by applicable law or agreed to in writing, software
  distributed under the License is distributed on an "AS IS" BASIS,
  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
  See the License for the specific language governing permissions and
  limitations under the License.
*/

package plugins

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	failoverSubsystem = "failover"
	writerMode        = "writer"
	readerMode        = "reader"
)

// FailoverMetrics counts failover attempts and their outcomes.
type FailoverMetrics struct {
	WriterTriggered prometheus.Counter
	WriterSuccess   prometheus.Counter
	WriterFailed    prometheus.Counter
	ReaderTriggered prometheus.Counter
	ReaderSuccess   prometheus.Counter
	ReaderFailed    prometheus.Counter
	Duration        *prometheus.SummaryVec
}

var defaultFailoverMetrics *FailoverMetrics
var defaultFailoverMetricsOnce sync.Once

// DefaultFailoverMetrics returns metrics registered with the prometheus default registerer.
func DefaultFailoverMetrics() *FailoverMetrics {
	defaultFailoverMetricsOnce.Do(func() {
		defaultFailoverMetrics = NewFailoverMetrics(prometheus.DefaultRegisterer)
	})
	return defaultFailoverMetrics
}

// NewFailoverMetrics builds the counters and registers them with registerer unless it is nil.
func NewFailoverMetrics(registerer prometheus.Registerer) *FailoverMetrics {
	m := &FailoverMetrics{
		WriterTriggered: newFailoverCounter("writer_triggered_total", "Total number of writer failovers started"),
		WriterSuccess:   newFailoverCounter("writer_success_total", "Total number of writer failovers that reconnected"),
		WriterFailed:    newFailoverCounter("writer_failed_total", "Total number of writer failovers that gave up"),
		ReaderTriggered: newFailoverCounter("reader_triggered_total", "Total number of reader failovers started"),
		ReaderSuccess:   newFailoverCounter("reader_success_total", "Total number of reader failovers that reconnected"),
		ReaderFailed:    newFailoverCounter("reader_failed_total", "Total number of reader failovers that gave up"),
		Duration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Subsystem:  failoverSubsystem,
			Name:       "duration_seconds",
			Help:       "Failover latencies in seconds",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"mode"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.WriterTriggered, m.WriterSuccess, m.WriterFailed,
			m.ReaderTriggered, m.ReaderSuccess, m.ReaderFailed, m.Duration)
	}
	return m
}

func newFailoverCounter(name string, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: failoverSubsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *FailoverMetrics) observeDuration(mode string, start time.Time) {
	m.Duration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}
