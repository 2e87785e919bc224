/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics wraps a connector.Connector's event loop with
// Prometheus counters and gauges: one counter vector over loop.EventType,
// incremented by a loop.Receiver registered alongside any caller's own
// receiver, and a connection-count gauge sampled from
// connector.Connector.ConnCount on every scrape.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nabbar/carbon/connector"
	"github.com/nabbar/carbon/loop"
)

// Collector registers connector/loop instrumentation against a Prometheus
// registry. The zero value is not usable; use New.
type Collector struct {
	events prometheus.CounterVec
	conns  prometheus.GaugeFunc
}

// New builds a Collector for cn, labelled with name (e.g. the connector's
// logical role: "echo-server", "upstream-client"). Registering the
// Collector does not start anything: Collector.Attach still needs to be
// called to hook the loop.Receiver that feeds the counters.
func New(name string, cn *connector.Connector) *Collector {
	c := &Collector{
		events: *prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "carbon",
				Subsystem:   "connector",
				Name:        "events_total",
				Help:        "Total loop events dispatched through a connector's event loop, by event type.",
				ConstLabels: prometheus.Labels{"connector": name},
			},
			[]string{"event"},
		),
	}

	c.conns = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "carbon",
			Subsystem:   "connector",
			Name:        "connections",
			Help:        "Number of connections currently tracked by a connector (dialed or accepted).",
			ConstLabels: prometheus.Labels{"connector": name},
		},
		func() float64 { return float64(cn.ConnCount()) },
	)

	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.events.Describe(ch)
	c.conns.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.events.Collect(ch)
	c.conns.Collect(ch)
}

// Register adds the Collector to reg.
func (c *Collector) Register(reg *prometheus.Registry) error {
	return reg.Register(c)
}

// Receiver returns a loop.Receiver that counts every event it sees and
// never claims to have handled it, so it can be registered on a
// connector's Loop alongside the caller's own receiver(s) without
// interfering with dispatch order or short-circuiting later receivers.
func (c *Collector) Receiver() loop.Receiver {
	return loop.ReceiverFunc(func(e loop.Event) bool {
		c.events.WithLabelValues(e.Type.String()).Inc()
		return false
	})
}

// Attach registers the Collector's counting receiver on cn's Loop. Call
// once per Collector. For counting scoped to a single exchange instead of
// the whole connector, pass Receiver() directly to connector.IO.
func (c *Collector) Attach(cn *connector.Connector) {
	cn.Loop().Register(c.Receiver())
}
