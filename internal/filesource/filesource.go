// Package filesource is an optional non-TCP producer: it tails a plain-text
// instrument log and injects an EVT datapoint per line, under a varname
// derived from the tailed file's base name, resuming from a persisted
// offset across restarts.
package filesource

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/nxadm/tail"
	"github.com/sirupsen/logrus"

	"github.com/sheinberglab/dserv/pkg/dpoint"
	"github.com/sheinberglab/dserv/pkg/positions"
)

// Sink is the destination for a line read off a tailed file — in
// production the orchestrator's Set, in tests a recording stub.
type Sink interface {
	Set(dpoint.Datapoint)
}

const (
	evtTypeFileLine  int32 = 100
	evtSubtypeDefault int32 = 0
)

type Source struct {
	path  string
	sink  Sink
	store *positions.Store
	log   *logrus.Logger

	tailer *tail.Tail
	wg     sync.WaitGroup
}

// Open begins tailing path, resuming from any offset recorded in store. A
// nil store starts every file from its end, never re-ingesting history.
func Open(ctx context.Context, path string, sink Sink, store *positions.Store, log *logrus.Logger) (*Source, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	seek := &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	if store != nil {
		if off := store.Offset(path); off > 0 {
			seek = &tail.SeekInfo{Offset: off, Whence: io.SeekStart}
		}
	}

	t, err := tail.TailFile(path, tail.Config{Follow: true, ReOpen: true, Location: seek})
	if err != nil {
		return nil, err
	}

	s := &Source{path: path, sink: sink, store: store, log: log, tailer: t}
	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

func (s *Source) run(ctx context.Context) {
	defer s.wg.Done()
	defer s.tailer.Cleanup()

	varname := "file/" + filepath.Base(s.path)
	// Count from where Open positioned the tail: the stored offset, or the
	// end of the file when none was stored.
	var offset int64
	if s.store != nil {
		offset = s.store.Offset(s.path)
		if offset == 0 {
			if fi, err := os.Stat(s.path); err == nil {
				offset = fi.Size()
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.tailer.Stop()
			return
		case line, ok := <-s.tailer.Lines:
			if !ok {
				return
			}
			if line.Err != nil {
				s.log.WithError(line.Err).WithField("path", s.path).Warn("filesource: tail line error")
				continue
			}
			offset += int64(len(line.Text)) + 1
			dp := dpoint.NewEvent(varname, evtTypeFileLine, evtSubtypeDefault, dpoint.TypeString, []byte(line.Text))
			s.sink.Set(dp)
			if s.store != nil {
				s.store.Update(s.path, offset, offset)
			}
		}
	}
}

func (s *Source) Close() error {
	err := s.tailer.Stop()
	s.wg.Wait()
	return err
}
