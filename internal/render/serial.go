package render

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Serial.Rasterize after Close.
var ErrClosed = errors.New("rasterizer closed")

// Serial funnels every Rasterize call through a single goroutine, for
// renderers that must only ever be driven from one thread.
type Serial struct {
	next     Rasterizer
	reqs     chan serialRequest
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type serialRequest struct {
	ctx   context.Context
	src   Source
	edge  int
	reply chan serialResult
}

type serialResult struct {
	data []byte
	err  error
}

// NewSerial starts the worker goroutine. Call Close to stop it.
func NewSerial(next Rasterizer) *Serial {
	s := &Serial{
		next: next,
		reqs: make(chan serialRequest),
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *Serial) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case req := <-s.reqs:
			if err := req.ctx.Err(); err != nil {
				req.reply <- serialResult{err: err}
				continue
			}
			data, err := s.next.Rasterize(req.ctx, req.src, req.edge)
			req.reply <- serialResult{data: data, err: err}
		}
	}
}

// Rasterize queues the call and waits for the worker's answer.
func (s *Serial) Rasterize(ctx context.Context, src Source, edge int) ([]byte, error) {
	req := serialRequest{ctx: ctx, src: src, edge: edge, reply: make(chan serialResult, 1)}
	select {
	case s.reqs <- req:
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the worker after any call it is running. Safe to call more
// than once.
func (s *Serial) Close() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}
