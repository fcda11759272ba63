package metrics

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Host is a point-in-time view of the machine the camera runs on. Fields
// that could not be read are zero.
type Host struct {
	Load1         float64 `json:"load1"`
	Load5         float64 `json:"load5"`
	Load15        float64 `json:"load15"`
	MemTotal      uint64  `json:"mem_total_bytes"`
	MemAvailable  uint64  `json:"mem_available_bytes"`
	CaptureDir    string  `json:"capture_dir"`
	DiskTotal     uint64  `json:"disk_total_bytes"`
	DiskAvailable uint64  `json:"disk_available_bytes"`
}

var (
	loadDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "host", "load"),
		"Load average", []string{"period"}, nil)
	memTotalDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "host", "memory_total_bytes"),
		"Total memory", nil, nil)
	memAvailableDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "host", "memory_available_bytes"),
		"Memory available without swapping", nil, nil)
	diskTotalDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "host", "capture_disk_total_bytes"),
		"Size of the filesystem holding default capture files", []string{"dir"}, nil)
	diskAvailableDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "host", "capture_disk_available_bytes"),
		"Free space for default capture files", []string{"dir"}, nil)
)

// HostCollector exports Host values on every scrape.
type HostCollector struct {
	dir string
}

// NewHostCollector returns a collector reporting disk space for dir.
func NewHostCollector(dir string) *HostCollector {
	return &HostCollector{dir: dir}
}

// RegisterHost registers a HostCollector for dir with the default registry.
func RegisterHost(dir string) error {
	return prometheus.Register(NewHostCollector(dir))
}

// Describe implements prometheus.Collector.
func (c *HostCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- loadDesc
	ch <- memTotalDesc
	ch <- memAvailableDesc
	ch <- diskTotalDesc
	ch <- diskAvailableDesc
}

// Collect implements prometheus.Collector.
func (c *HostCollector) Collect(ch chan<- prometheus.Metric) {
	h := ReadHost(c.dir)
	ch <- prometheus.MustNewConstMetric(loadDesc, prometheus.GaugeValue, h.Load1, "1m")
	ch <- prometheus.MustNewConstMetric(loadDesc, prometheus.GaugeValue, h.Load5, "5m")
	ch <- prometheus.MustNewConstMetric(loadDesc, prometheus.GaugeValue, h.Load15, "15m")
	if h.MemTotal > 0 {
		ch <- prometheus.MustNewConstMetric(memTotalDesc, prometheus.GaugeValue, float64(h.MemTotal))
		ch <- prometheus.MustNewConstMetric(memAvailableDesc, prometheus.GaugeValue, float64(h.MemAvailable))
	}
	if h.DiskTotal > 0 {
		ch <- prometheus.MustNewConstMetric(diskTotalDesc, prometheus.GaugeValue, float64(h.DiskTotal), c.dir)
		ch <- prometheus.MustNewConstMetric(diskAvailableDesc, prometheus.GaugeValue, float64(h.DiskAvailable), c.dir)
	}
}

// ReadHost reads load, memory and disk space for dir.
func ReadHost(dir string) Host {
	h := Host{CaptureDir: dir}
	if f, err := os.Open("/proc/loadavg"); err == nil {
		h.Load1, h.Load5, h.Load15 = parseLoadAvg(f)
		f.Close()
	}
	if f, err := os.Open("/proc/meminfo"); err == nil {
		h.MemTotal, h.MemAvailable = parseMemInfo(f)
		f.Close()
	}
	if dir != "" {
		h.DiskTotal, h.DiskAvailable = diskSpace(dir)
	}
	return h
}

func parseLoadAvg(r io.Reader) (l1, l5, l15 float64) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, 0, 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return 0, 0, 0
	}
	l1, _ = strconv.ParseFloat(fields[0], 64)
	l5, _ = strconv.ParseFloat(fields[1], 64)
	l15, _ = strconv.ParseFloat(fields[2], 64)
	return l1, l5, l15
}

// parseMemInfo returns MemTotal and MemAvailable in bytes.
func parseMemInfo(r io.Reader) (total, available uint64) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = kb * 1024
		case "MemAvailable:":
			available = kb * 1024
		}
	}
	return total, available
}
