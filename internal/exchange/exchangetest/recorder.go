// Package exchangetest provides an in-memory exchange.Manager that records
// every call.
package exchangetest

import (
	"context"
	"sync"
)

// Published is one recorded Publish call.
type Published struct {
	Name string
	Body string
}

// Recorder implements exchange.Manager in memory.
type Recorder struct {
	mu        sync.Mutex
	created   []string
	destroyed []string
	published []Published
	live      map[string]bool

	// Errors returned by the next calls, when set.
	CreateErr  error
	DestroyErr error
	PublishErr error
}

func NewRecorder() *Recorder {
	return &Recorder{live: make(map[string]bool)}
}

func (r *Recorder) CreateBroadcastChannel(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.created = append(r.created, name)
	r.live[name] = true
	return nil
}

func (r *Recorder) DestroyBroadcastChannel(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DestroyErr != nil {
		return r.DestroyErr
	}
	r.destroyed = append(r.destroyed, name)
	delete(r.live, name)
	return nil
}

func (r *Recorder) Publish(ctx context.Context, name string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.PublishErr != nil {
		return r.PublishErr
	}
	r.published = append(r.published, Published{Name: name, Body: string(body)})
	return nil
}

func (r *Recorder) Close() error {
	return nil
}

func (r *Recorder) Created() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.created...)
}

func (r *Recorder) Destroyed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.destroyed...)
}

func (r *Recorder) Published() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.published...)
}

// Live reports whether name has been created and not destroyed since.
func (r *Recorder) Live(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[name]
}

// SetPublishErr changes the Publish error under the lock.
func (r *Recorder) SetPublishErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PublishErr = err
}
