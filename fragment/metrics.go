// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package fragment

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricStatements    = "statements_total"
	MetricRowsInserted  = "rows_inserted_total"
	MetricBytesInserted = "bytes_inserted_total"
	MetricReconnects    = "reconnects_total"
)

var CounterStatements = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cubestore",
		Subsystem: "fragment",
		Name:      MetricStatements,
		Help:      "Statements executed against storage backends.",
	},
	[]string{
		"op",
	},
)

var CounterRowsInserted = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "cubestore",
		Subsystem: "fragment",
		Name:      MetricRowsInserted,
		Help:      "Fragment rows inserted.",
	},
)

var CounterBytesInserted = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "cubestore",
		Subsystem: "fragment",
		Name:      MetricBytesInserted,
		Help:      "Measure bytes bound to insert statements.",
	},
)

var CounterReconnects = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "cubestore",
		Subsystem: "fragment",
		Name:      MetricReconnects,
		Help:      "Connections (re)established to DBMS instances.",
	},
)

func init() {
	prometheus.MustRegister(CounterStatements)
	prometheus.MustRegister(CounterRowsInserted)
	prometheus.MustRegister(CounterBytesInserted)
	prometheus.MustRegister(CounterReconnects)
}
