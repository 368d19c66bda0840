// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package importer

import "github.com/prometheus/client_golang/prometheus"

const MetricFragments = "fragments_total"

var CounterFragments = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cubestore",
		Subsystem: "importer",
		Name:      MetricFragments,
		Help:      "Fragments populated from source variables.",
	},
	[]string{
		"strategy",
	},
)

func init() {
	prometheus.MustRegister(CounterFragments)
}
