// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package rpcproxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpcproxy",
		Name:      "requests_total",
		Help:      "Requests handled, by command and status.",
	}, []string{"command", "status"})

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rpcproxy",
		Name:      "active_connections",
		Help:      "Currently connected controllers.",
	})

	callbackEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rpcproxy",
		Name:      "callback_events_total",
		Help:      "invoke_callback events written to controllers.",
	})
)
