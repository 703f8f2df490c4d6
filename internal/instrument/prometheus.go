// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

//go:build prometheus

package instrument

import (
	"log"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtproto_rpc_calls_total",
			Help: "Number of RPC calls sent",
		},
		[]string{"method"},
	)
	rpcErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtproto_rpc_errors_total",
			Help: "Number of RPC errors received, by kind",
		},
		[]string{"kind"},
	)
	floodWaits = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mtproto_flood_wait_seconds",
			Help:    "Flood waits honoured by the client",
			Buckets: []float64{1, 2, 5, 10, 30, 60},
		},
	)
	reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtproto_reconnects_total",
			Help: "Number of reconnect attempts",
		},
		[]string{"dc", "kind"},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtproto_handshakes_total",
			Help: "Number of auth key exchanges",
		},
		[]string{"dc", "temporary", "result"},
	)
	integrityFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mtproto_integrity_failures_total",
			Help: "Number of dropped envelopes that failed validation",
		},
	)
	transportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtproto_transport_errors_total",
			Help: "Number of transport error codes received",
		},
		[]string{"code"},
	)
	containerSize = prometheus.NewSummary(
		prometheus.SummaryOpts{
			Name: "mtproto_container_messages",
			Help: "Number of messages per outgoing packet",
		},
	)
	updateGaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtproto_update_gaps_total",
			Help: "Number of update gaps detected",
		},
		[]string{"scope"},
	)
	differenceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtproto_difference_fetches_total",
			Help: "Number of difference requests issued",
		},
		[]string{"scope"},
	)
)

// Init registers the metrics and serves them on address.  Server errors
// go to errLog.
func Init(address string, errLog *log.Logger) {
	prometheus.MustRegister(rpcCalls)
	prometheus.MustRegister(rpcErrors)
	prometheus.MustRegister(floodWaits)
	prometheus.MustRegister(reconnects)
	prometheus.MustRegister(handshakes)
	prometheus.MustRegister(integrityFailures)
	prometheus.MustRegister(transportErrors)
	prometheus.MustRegister(containerSize)
	prometheus.MustRegister(updateGaps)
	prometheus.MustRegister(differenceFetches)

	if address == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: address, Handler: mux, ErrorLog: errLog}
	go func() {
		if err := srv.ListenAndServe(); err != nil && errLog != nil {
			errLog.Printf("metrics endpoint stopped: %v", err)
		}
	}()
}

func RPCCall(method string) {
	rpcCalls.With(prometheus.Labels{"method": method}).Inc()
}

func RPCError(kind string) {
	rpcErrors.With(prometheus.Labels{"kind": kind}).Inc()
}

func FloodWait(seconds float64) {
	floodWaits.Observe(seconds)
}

func Reconnect(dc int, kind string) {
	reconnects.With(prometheus.Labels{"dc": strconv.Itoa(dc), "kind": kind}).Inc()
}

func Handshake(dc int, temporary bool, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	handshakes.With(prometheus.Labels{
		"dc":        strconv.Itoa(dc),
		"temporary": strconv.FormatBool(temporary),
		"result":    result,
	}).Inc()
}

func IntegrityFailure() {
	integrityFailures.Inc()
}

func TransportError(code int32) {
	transportErrors.With(prometheus.Labels{"code": strconv.Itoa(int(code))}).Inc()
}

func ContainerSize(n int) {
	containerSize.Observe(float64(n))
}

func UpdateGap(scope string) {
	updateGaps.With(prometheus.Labels{"scope": scope}).Inc()
}

func DifferenceFetch(scope string) {
	differenceFetches.With(prometheus.Labels{"scope": scope}).Inc()
}
