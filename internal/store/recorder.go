package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"rts-server/internal/game"
)

const (
	recorderQueue     = 256
	recorderBatch     = 50
	recorderFlushTick = 5 * time.Second
)

// Recorder persists match results from a background goroutine.
type Recorder struct {
	db      *DB
	log     *zap.Logger
	results chan game.MatchResult
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewRecorder creates and starts the background writer
func NewRecorder(db *DB, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Recorder{
		db:      db,
		log:     log,
		results: make(chan game.MatchResult, recorderQueue),
		stop:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.writer(recorderFlushTick)
	return r
}

// RecordMatch enqueues a result (non-blocking)
func (r *Recorder) RecordMatch(m game.MatchResult) {
	select {
	case r.results <- m:
	default:
		r.log.Warn("match queue full, dropping result", zap.String("match", m.ID.String()))
	}
}

// Stop flushes pending results and waits for the writer to exit
func (r *Recorder) Stop() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *Recorder) writer(every time.Duration) {
	defer r.wg.Done()

	batch := make([]game.MatchResult, 0, recorderBatch)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case m := <-r.results:
			batch = append(batch, m)
			if len(batch) >= recorderBatch {
				batch = r.flush(batch)
			}
		case <-ticker.C:
			batch = r.flush(batch)
		case <-r.stop:
			for {
				select {
				case m := <-r.results:
					batch = append(batch, m)
				default:
					r.flush(batch)
					return
				}
			}
		}
	}
}

func (r *Recorder) flush(batch []game.MatchResult) []game.MatchResult {
	if r.db == nil || len(batch) == 0 {
		return batch[:0]
	}
	if err := r.db.RecordMatches(batch); err != nil {
		r.log.Error("record matches", zap.Int("count", len(batch)), zap.Error(err))
	} else {
		r.log.Debug("recorded matches", zap.Int("count", len(batch)))
	}
	return batch[:0]
}
