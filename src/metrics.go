package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inboundEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_inbound_events_total",
			Help: "Inbound webhook updates by classified kind.",
		},
		[]string{"kind"},
	)

	gatingRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_gating_rejections_total",
			Help: "Messages rejected by the gating engine, by path and reason.",
		},
		[]string{"path", "reason"},
	)

	dispatchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_dispatch_failures_total",
			Help: "Failed sends to the bot platform, by path.",
		},
		[]string{"path"},
	)

	trialConsumedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_trial_messages_consumed_total",
			Help: "Trial quota units consumed by unauthorized bots.",
		},
	)
)

const (
	pathInbound = "inbound"
	pathForward = "forward"
	pathGreet   = "greeting"
	pathReply   = "admin_reply"
	pathConsole = "console"
)
