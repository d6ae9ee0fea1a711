package metrics

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// MetricsManager owns the gateway registry and the host gauges sampled into it
type MetricsManager struct {
	cpuUsage    *prometheus.GaugeVec
	memoryUsage *prometheus.GaugeVec

	goroutines    prometheus.Gauge
	heapAlloc     prometheus.Gauge
	heapSys       prometheus.Gauge
	gcPauseNs     prometheus.Histogram
	gcCPUFraction prometheus.Gauge

	openFDs   prometheus.Gauge
	startTime prometheus.Gauge

	proc     *process.Process
	registry *prometheus.Registry

	initialized bool
	mu          sync.RWMutex
}

var (
	instance *MetricsManager
	once     sync.Once
)

// GetInstance returns the singleton instance of MetricsManager
func GetInstance() *MetricsManager {
	once.Do(func() {
		instance = &MetricsManager{
			registry: prometheus.NewRegistry(),
		}
	})
	return instance
}

// InitializeMetrics registers the host gauges (thread-safe)
func (mm *MetricsManager) InitializeMetrics() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.initialized {
		return
	}

	mm.cpuUsage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "system_cpu_usage_percent",
		Help: "Current CPU usage percentage",
	}, []string{"core"})
	mm.memoryUsage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "system_memory_usage_bytes",
		Help: "Current memory usage in bytes",
	}, []string{"type"})

	mm.goroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_goroutines",
		Help: "Number of goroutines that currently exist",
	})
	mm.heapAlloc = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_heap_alloc_bytes",
		Help: "Heap memory usage in bytes",
	})
	mm.heapSys = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_heap_sys_bytes",
		Help: "Heap memory reserved in bytes",
	})
	mm.gcPauseNs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_gc_pause_nanoseconds",
		Help:    "GC pause time in nanoseconds",
		Buckets: prometheus.ExponentialBuckets(1000, 2, 20),
	})
	mm.gcCPUFraction = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_gc_cpu_fraction",
		Help: "Fraction of CPU time used by GC",
	})

	mm.openFDs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_open_fds",
		Help: "Number of open file descriptors",
	})
	mm.startTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_start_time_seconds",
		Help: "Start time of the process since unix epoch in seconds",
	})

	mm.registry.MustRegister(
		mm.cpuUsage,
		mm.memoryUsage,
		mm.goroutines,
		mm.heapAlloc,
		mm.heapSys,
		mm.gcPauseNs,
		mm.gcCPUFraction,
		mm.openFDs,
		mm.startTime,
	)

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn().Err(err).Msg("Process metrics unavailable")
	} else {
		mm.proc = proc
		if created, err := proc.CreateTime(); err == nil {
			mm.startTime.Set(float64(created) / 1000)
		}
	}

	mm.initialized = true
}

// Handler serves the gateway registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(GetInstance().registry, promhttp.HandlerOpts{})
}

// StartSystemMetrics samples host metrics every interval until ctx is done
func StartSystemMetrics(ctx context.Context, interval time.Duration) {
	if !options.System {
		return
	}

	mm := GetInstance()
	mm.InitializeMetrics()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mm.collectSystemMetrics()
				mm.collectRuntimeMetrics()
			}
		}
	}()
}

func (mm *MetricsManager) collectSystemMetrics() {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	if !mm.initialized {
		return
	}

	if percentages, err := cpu.Percent(0, true); err == nil {
		for i, percentage := range percentages {
			mm.cpuUsage.WithLabelValues(fmt.Sprintf("cpu%d", i)).Set(percentage)
		}
	}

	if vmstat, err := mem.VirtualMemory(); err == nil {
		mm.memoryUsage.WithLabelValues("total").Set(float64(vmstat.Total))
		mm.memoryUsage.WithLabelValues("available").Set(float64(vmstat.Available))
		mm.memoryUsage.WithLabelValues("used").Set(float64(vmstat.Used))
	}

	if mm.proc != nil {
		if fds, err := mm.proc.NumFDs(); err == nil {
			mm.openFDs.Set(float64(fds))
		}
	}
}

func (mm *MetricsManager) collectRuntimeMetrics() {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	if !mm.initialized {
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.goroutines.Set(float64(runtime.NumGoroutine()))
	mm.heapAlloc.Set(float64(m.HeapAlloc))
	mm.heapSys.Set(float64(m.HeapSys))
	mm.gcPauseNs.Observe(float64(m.PauseNs[(m.NumGC+255)%256]))
	mm.gcCPUFraction.Set(m.GCCPUFraction)
}
