package mtl

import (
	"strconv"

	"github.com/gomlx/gomtl/handles"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "gomtl"

var (
	liveHandlesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "", "live_handles"),
		"Number of live handles, per object kind.",
		[]string{"kind"}, nil)
	allocatedBytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "", "device_allocated_bytes"),
		"Bytes currently allocated on the device, for runtimes that track it.",
		[]string{"device", "index"}, nil)
	errorsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "", "errors_total"),
		"Number of failed operations, per error kind.",
		[]string{"kind"}, nil)
)

// registryCollector exports the state of a Registry as Prometheus metrics.
type registryCollector struct {
	r *Registry
}

// Collector returns a prometheus.Collector with the live handles per kind, the device allocated memory, the
// error counts and the command buffer completion times of the registry.
func (r *Registry) Collector() prometheus.Collector {
	return &registryCollector{r: r}
}

// Describe implements prometheus.Collector.
func (c *registryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- liveHandlesDesc
	ch <- allocatedBytesDesc
	ch <- errorsDesc
	c.r.completionSeconds.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *registryCollector) Collect(ch chan<- prometheus.Metric) {
	r := c.r
	for _, kind := range handles.KindValues() {
		if kind == handles.KindInvalid {
			continue
		}
		ch <- prometheus.MustNewConstMetric(liveHandlesDesc, prometheus.GaugeValue,
			float64(r.LiveHandles(kind)), kind.String())
	}

	r.devicesMu.Lock()
	devices := r.deviceList
	r.devicesMu.Unlock()
	for _, d := range devices {
		if size, ok := d.native.AllocatedSize(); ok {
			ch <- prometheus.MustNewConstMetric(allocatedBytesDesc, prometheus.GaugeValue,
				float64(size), d.name, strconv.Itoa(d.index))
		}
	}

	for kind := range numErrorKinds {
		ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue,
			float64(r.errorCounts[kind].Load()), ErrorKind(kind).String())
	}
	c.r.completionSeconds.Collect(ch)
}
