package logfanout

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/sheinberglab/dserv/internal/metrics"
)

// DiskManagerConfig bounds the total size of the log directory tree
// (LogDirConfig in the ambient config) and optionally enables compression
// of closed segments.
type DiskManagerConfig struct {
	Root          string
	MaxTotalBytes int64
	MinFreeBytes  int64
	Compress      bool
	CheckInterval time.Duration
}

// IsOpen reports whether path is currently held open by a registered log
// client; the disk manager never removes or compresses an open file.
type IsOpen func(path string) bool

// FreeBytes reports free space on the filesystem backing path. It is
// satisfied by *leakdetection.Sampler; nil is valid and disables the
// MinFreeBytes low-water-mark trigger.
type FreeBytes func(path string) (uint64, bool)

// DiskManager periodically scans Root, gzip-compressing closed segments
// when enabled and evicting the oldest files once the tree exceeds
// MaxTotalBytes or free disk space drops below MinFreeBytes, oldest-first,
// skipping anything still open.
type DiskManager struct {
	cfg       DiskManagerConfig
	isOpen    IsOpen
	freeBytes FreeBytes
	log       *logrus.Logger

	done chan struct{}
}

func NewDiskManager(cfg DiskManagerConfig, isOpen IsOpen, log *logrus.Logger) *DiskManager {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DiskManager{cfg: cfg, isOpen: isOpen, log: log, done: make(chan struct{})}
}

// WithFreeBytes attaches a host-disk sampler so the sweep can also evict
// under a MinFreeBytes low-water mark, not just a MaxTotalBytes ceiling.
func (d *DiskManager) WithFreeBytes(fn FreeBytes) *DiskManager {
	d.freeBytes = fn
	return d
}

func (d *DiskManager) Start() {
	go d.run()
}

func (d *DiskManager) run() {
	ticker := time.NewTicker(d.cfg.CheckInterval)
	defer ticker.Stop()
	d.sweep()
	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *DiskManager) Stop() {
	close(d.done)
}

type fileEntry struct {
	path    string
	size    int64
	modTime time.Time
}

func (d *DiskManager) listFiles() []fileEntry {
	var files []fileEntry
	filepath.Walk(d.cfg.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		files = append(files, fileEntry{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	return files
}

func (d *DiskManager) sweep() {
	if d.cfg.Compress {
		for _, f := range d.listFiles() {
			if d.isClosedUncompressed(f.path) {
				if err := d.compressFile(f.path); err != nil {
					d.log.WithError(err).WithField("path", f.path).Warn("disk manager: compression failed")
				}
			}
		}
	}

	lowOnDisk := d.belowFreeBytesFloor()

	if d.cfg.MaxTotalBytes <= 0 && !lowOnDisk {
		return
	}

	files := d.listFiles()
	var total int64
	for _, f := range files {
		total += f.size
	}
	underBudget := d.cfg.MaxTotalBytes <= 0 || total <= d.cfg.MaxTotalBytes
	if underBudget && !lowOnDisk {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	for _, f := range files {
		stillOverBudget := d.cfg.MaxTotalBytes > 0 && total > d.cfg.MaxTotalBytes
		if !stillOverBudget && !d.belowFreeBytesFloor() {
			break
		}
		if d.isOpen != nil && d.isOpen(f.path) {
			continue
		}
		if err := os.Remove(f.path); err != nil {
			d.log.WithError(err).WithField("path", f.path).Warn("disk manager: eviction failed")
			continue
		}
		total -= f.size
		metrics.DiskManagerEvictionsTotal.Inc()
		d.log.WithField("path", f.path).Info("disk manager: evicted log segment over size budget")
	}
}

func (d *DiskManager) belowFreeBytesFloor() bool {
	if d.freeBytes == nil || d.cfg.MinFreeBytes <= 0 {
		return false
	}
	free, ok := d.freeBytes(d.cfg.Root)
	return ok && free < uint64(d.cfg.MinFreeBytes)
}

func (d *DiskManager) isClosedUncompressed(path string) bool {
	if filepath.Ext(path) == ".gz" {
		return false
	}
	if d.isOpen != nil && d.isOpen(path) {
		return false
	}
	return true
}

func (d *DiskManager) compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dstPath := path + ".gz"
	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(dst)
	if _, err := io.Copy(gw, src); err != nil {
		gw.Close()
		dst.Close()
		os.Remove(dstPath)
		return err
	}
	if err := gw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
