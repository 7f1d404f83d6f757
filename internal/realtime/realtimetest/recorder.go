// Package realtimetest records pushed frames for assertions.
package realtimetest

import (
	"sync"
)

// Push is one recorded publish. Exactly one of Channel and ConnID is set.
type Push struct {
	Channel string
	ConnID  string
	Event   string
	Payload any
}

// Recorder implements realtime.Transport in memory.
type Recorder struct {
	mu     sync.Mutex
	pushes []Push
	joins  map[string][]string
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{joins: make(map[string][]string)}
}

func (r *Recorder) Join(connID, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins[connID] = append(r.joins[connID], channel)
}

func (r *Recorder) Publish(channel, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, Push{Channel: channel, Event: event, Payload: payload})
}

func (r *Recorder) PublishToConnection(connID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, Push{ConnID: connID, Event: event, Payload: payload})
}

// Pushes returns every recorded push in order.
func (r *Recorder) Pushes() []Push {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Push(nil), r.pushes...)
}

// On returns pushes of event to channel.
func (r *Recorder) On(channel, event string) []Push {
	var out []Push
	for _, p := range r.Pushes() {
		if p.Channel == channel && p.Event == event {
			out = append(out, p)
		}
	}
	return out
}

// Channels returns channels pushed with event, in order.
func (r *Recorder) Channels(event string) []string {
	var out []string
	for _, p := range r.Pushes() {
		if p.Event == event && p.Channel != "" {
			out = append(out, p.Channel)
		}
	}
	return out
}
