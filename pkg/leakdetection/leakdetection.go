// Package leakdetection periodically samples host resource usage —
// goroutine count, open file descriptors, and free disk space on the
// paths that matter to the log directory's disk-space manager — and
// publishes the readings as gauges.
package leakdetection

import (
	"io/ioutil"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"

	"github.com/sheinberglab/dserv/internal/metrics"
)

// Sampler owns the periodic resource-sampling loop.
type Sampler struct {
	paths    []string
	interval time.Duration
	log      *logrus.Logger

	done chan struct{}
}

// New builds a Sampler that reports on the given paths (typically the
// log directory root) every interval. A non-positive interval defaults
// to 30 seconds.
func New(paths []string, interval time.Duration, log *logrus.Logger) *Sampler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sampler{paths: paths, interval: interval, log: log, done: make(chan struct{})}
}

func (s *Sampler) Start() {
	go s.run()
}

func (s *Sampler) Stop() {
	close(s.done)
}

func (s *Sampler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.sample()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	metrics.HostGoroutines.Set(float64(runtime.NumGoroutine()))

	if fds := openFileDescriptors(); fds >= 0 {
		metrics.HostOpenFDs.Set(float64(fds))
	}

	for _, p := range s.paths {
		usage, err := disk.Usage(p)
		if err != nil {
			s.log.WithError(err).WithField("path", p).Warn("leakdetection: disk usage sample failed")
			continue
		}
		metrics.HostDiskFreeBytes.WithLabelValues(p).Set(float64(usage.Free))
	}
}

// FreeBytes reports the current free space on the filesystem backing
// path, for callers (the disk-space manager) that need the reading
// synchronously rather than waiting for the next tick.
func (s *Sampler) FreeBytes(path string) (uint64, bool) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, false
	}
	return usage.Free, true
}

// openFileDescriptors counts entries under /proc/self/fd. It returns
// -1 on platforms where that path doesn't exist, matching the
// skip-the-metric convention used elsewhere in this package.
func openFileDescriptors() int {
	entries, err := ioutil.ReadDir("/proc/self/fd")
	if err != nil {
		return -1
	}
	return len(entries)
}
