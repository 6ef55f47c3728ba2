// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package comm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	exchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jitbuild_comm_exchanges_total",
			Help: "Total number of collective exchanges issued by this process",
		},
		[]string{"group", "result"}, // group: world, sub
	)

	exchangeWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jitbuild_comm_exchange_wait_seconds",
			Help:    "Time spent blocked in collective exchanges",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 60, 300, 1800},
		},
		[]string{"group"},
	)

	abortsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jitbuild_comm_aborts_total",
			Help: "Total number of job aborts issued by this process",
		},
	)
)

type exchangeTimer struct {
	group string
	start time.Time
}

func newExchangeTimer(world bool) exchangeTimer {
	group := "sub"
	if world {
		group = "world"
	}
	return exchangeTimer{group: group, start: time.Now()}
}

func (t exchangeTimer) observe(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	exchangesTotal.WithLabelValues(t.group, result).Inc()
	exchangeWait.WithLabelValues(t.group).Observe(time.Since(t.start).Seconds())
}
