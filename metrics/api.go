// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package metrics exports writer and memory progress as Prometheus metrics.
//
// A Collector is both a stream.Observer and a memsampler.Observer, so a run
// can feed it directly. Each Collector owns its own registry.
package metrics

import (
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/logger"
	"github.com/NVIDIA/fsstream/memsampler"
	"github.com/NVIDIA/fsstream/stream"
)

const namespace = "fsstream"

type Collector struct {
	registry             *prometheus.Registry
	writes               *prometheus.CounterVec
	writeFailures        *prometheus.CounterVec
	bytesWritten         *prometheus.CounterVec
	writeLatency         *prometheus.HistogramVec
	bytesSwapped         *prometheus.CounterVec
	writersFinished      prometheus.Counter
	memoryResidentGB     prometheus.Gauge
	memorySwapGB         prometheus.Gauge
	memorySampleFailures prometheus.Counter
}

func New() (collector *Collector) {
	collector = &Collector{
		registry: prometheus.NewRegistry(),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Write attempts (sync) or flushes (buffered) that succeeded.",
		}, []string{"writer"}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Write attempts or flushes that failed.",
		}, []string{"writer"}),
		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes successfully written.",
		}, []string{"writer"}),
		writeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_latency_seconds",
			Help:      "Latency of successful writes.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"writer"}),
		bytesSwapped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_swapped_bytes_total",
			Help:      "Bytes handed from a double buffer to its flusher.",
		}, []string{"writer"}),
		writersFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writers_finished_total",
			Help:      "Writers that have reported a result.",
		}),
		memoryResidentGB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_resident_gb",
			Help:      "System memory in use at the last sample.",
		}),
		memorySwapGB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_swap_gb",
			Help:      "Swap in use at the last sample.",
		}),
		memorySampleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_sample_failures_total",
			Help:      "Memory samples that could not be taken.",
		}),
	}

	collector.registry.MustRegister(
		collector.writes,
		collector.writeFailures,
		collector.bytesWritten,
		collector.writeLatency,
		collector.bytesSwapped,
		collector.writersFinished,
		collector.memoryResidentGB,
		collector.memorySwapGB,
		collector.memorySampleFailures,
	)

	return
}

func (collector *Collector) Registry() *prometheus.Registry {
	return collector.registry
}

func (collector *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(collector.registry, promhttp.HandlerOpts{})
}

func (collector *Collector) WriteCompleted(writer string, sample stream.Sample) {
	collector.writes.WithLabelValues(writer).Inc()
	collector.bytesWritten.WithLabelValues(writer).Add(float64(sample.BytesWritten))
	collector.writeLatency.WithLabelValues(writer).Observe(sample.Latency().Seconds())
}

func (collector *Collector) WriteFailed(writer string, sample stream.Sample, err error) {
	collector.writeFailures.WithLabelValues(writer).Inc()
}

func (collector *Collector) BufferSwapped(writer string, bytes int) {
	collector.bytesSwapped.WithLabelValues(writer).Add(float64(bytes))
}

func (collector *Collector) WriterFinished(result stream.WriterResult) {
	collector.writersFinished.Inc()
}

func (collector *Collector) MemorySampled(sample memsampler.MemorySample) {
	collector.memoryResidentGB.Set(sample.ResidentGB)
	collector.memorySwapGB.Set(sample.SwapGB)
}

func (collector *Collector) MemorySampleFailed(err error) {
	collector.memorySampleFailures.Inc()
}

// Server serves a Collector's /metrics until Close is called.
type Server struct {
	sync.WaitGroup
	listener   net.Listener
	httpServer *http.Server
}

// Serve starts serving collector on addr ("host:port"; port 0 picks one).
func (collector *Collector) Serve(addr string) (server *Server, err error) {
	var (
		serveMux *http.ServeMux
	)

	server = &Server{}

	server.listener, err = net.Listen("tcp", addr)
	if nil != err {
		server = nil
		err = blunder.AddError(err, blunder.InvalidArgError)
		return
	}

	serveMux = http.NewServeMux()
	serveMux.Handle("/metrics", collector.Handler())

	server.httpServer = &http.Server{Handler: serveMux}

	server.Add(1)
	go func() {
		defer server.Done()
		serveErr := server.httpServer.Serve(server.listener)
		if http.ErrServerClosed != serveErr {
			logger.WarnfWithError(serveErr, "metrics server on %s exited", server.listener.Addr())
		}
	}()

	logger.Infof("serving metrics on http://%s/metrics", server.listener.Addr())

	err = nil
	return
}

func (server *Server) Addr() string {
	return server.listener.Addr().String()
}

func (server *Server) Close() (err error) {
	err = server.httpServer.Close()
	server.Wait()
	return
}
