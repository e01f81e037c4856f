package stats

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	BYTE = 1 << (10 * iota)
	KILOBYTE
	MEGABYTE
	GIGABYTE
)

const namespace = "broker"

var (
	// MultiTrades counts the multi trades reaching a terminal status.
	MultiTrades = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "multitrades_total",
		Help:      "Number of processed multi trades by final status.",
	}, []string{"status"})
	// SingleTrades counts the single trades reaching a terminal status.
	SingleTrades = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "singletrades_total",
		Help:      "Number of processed single trades by result.",
	}, []string{"result"})
	// PlatformRequests counts the outbound calls to the trading platform.
	PlatformRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "platform_requests_total",
		Help:      "Number of trading platform requests by operation and outcome.",
	}, []string{"operation", "outcome"})
	// Challenges counts the two-step verification challenges met.
	Challenges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "challenges_total",
		Help:      "Number of two-step verification challenges by outcome.",
	}, []string{"outcome"})
	// JobsInFlight is the number of scheduler jobs currently running.
	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scheduler_jobs_inflight",
		Help:      "Number of scheduled steps currently being processed.",
	})
	// JobsPending is the number of persisted scheduler jobs, due or not.
	JobsPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scheduler_jobs_pending",
		Help:      "Number of persisted scheduler wake-ups.",
	})
)

func init() {
	prometheus.MustRegister(
		MultiTrades, SingleTrades, PlatformRequests, Challenges,
		JobsInFlight, JobsPending,
	)
}

// EnableMemoryStatistics enables go routine that periodically prints memory
// usage of the go process.
func EnableMemoryStatistics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				PrintMemoryStatistics()
				PrintNumOfRoutines()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// toMegabytes returns given memory in bytes to megabytes.
func toMegabytes(bytes uint64) float64 {
	return float64(bytes) / MEGABYTE
}

// PrintMemoryStatistics prints memory statistics using go runtime library.
func PrintMemoryStatistics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	log.Infof(
		"total allocated: %.3fMB, heap allocated: %.3fMB, "+
			"allocated objects count: %v, freed objects count: %v",
		toMegabytes(memStats.TotalAlloc),
		toMegabytes(memStats.HeapAlloc),
		memStats.Mallocs,
		memStats.Frees,
	)
}

// PrintNumOfRoutines prints number of go routines currently running
func PrintNumOfRoutines() {
	log.Infof("num of go routines: %v", runtime.NumGoroutine())
}
