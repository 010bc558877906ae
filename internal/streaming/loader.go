package streaming

import (
	"context"
	"errors"
	"sync"
)

type loadJob struct {
	coord        Coord
	gen          uint64
	segment      SegmentRequest
	intersection *IntersectionRequest
}

type loadResult struct {
	coord   Coord
	gen     uint64
	content []Content
	err     error
}

// loader runs content generation off the owner goroutine and hands the
// results back over a channel. It never touches the section map.
type loader struct {
	jobs    chan loadJob
	results chan loadResult
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	gen     ContentGenerator
}

func newLoader(gen ContentGenerator, workers, queue int) *loader {
	ctx, cancel := context.WithCancel(context.Background())
	l := &loader{
		jobs:    make(chan loadJob, queue),
		results: make(chan loadResult, queue),
		ctx:     ctx,
		cancel:  cancel,
		gen:     gen,
	}
	for i := 0; i < workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}
	return l
}

func (l *loader) worker() {
	defer l.wg.Done()
	for job := range l.jobs {
		res := generate(l.ctx, l.gen, job)
		select {
		case l.results <- res:
		case <-l.ctx.Done():
			releaseAll(res.content)
		}
	}
}

// submit enqueues without blocking and reports whether the job was accepted.
func (l *loader) submit(job loadJob) bool {
	select {
	case l.jobs <- job:
		return true
	default:
		return false
	}
}

// close stops the workers and releases anything they finished but nobody applied.
func (l *loader) close() {
	l.cancel()
	close(l.jobs)
	l.wg.Wait()
	for {
		select {
		case res := <-l.results:
			releaseAll(res.content)
		default:
			return
		}
	}
}

// generate builds all content for one job. On any error the pieces built so
// far are released.
func generate(ctx context.Context, gen ContentGenerator, job loadJob) loadResult {
	res := loadResult{coord: job.coord, gen: job.gen}
	seg, err := gen.GenerateSegment(ctx, job.segment)
	if err != nil {
		res.err = err
		return res
	}
	res.content = append(res.content, seg)
	if job.intersection != nil {
		in, err := gen.GenerateIntersection(ctx, *job.intersection)
		if err != nil {
			releaseAll(res.content)
			res.content = nil
			res.err = errors.Join(errIntersection, err)
			return res
		}
		res.content = append(res.content, in)
	}
	return res
}

var errIntersection = errors.New("generate intersection")

func releaseAll(cs []Content) {
	for _, c := range cs {
		if c != nil {
			c.Release()
		}
	}
}
