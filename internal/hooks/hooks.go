// Package hooks fires the configured notifications after a generation run.
package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Mavwarf/appicon/internal/config"
	"github.com/Mavwarf/appicon/internal/mqtt"
	"github.com/Mavwarf/appicon/internal/tmpl"
	"github.com/Mavwarf/appicon/internal/webhook"
)

// Event summarizes one generation run.
type Event struct {
	RunID    string
	Source   string
	Output   string
	Count    int
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Status returns "success" or "failure".
func (e Event) Status() string {
	if e.Err != nil {
		return "failure"
	}
	return "success"
}

// Vars converts the event into template variables.
func (e Event) Vars() tmpl.Vars {
	v := tmpl.Vars{
		Source:   e.Source,
		Output:   e.Output,
		Count:    strconv.Itoa(e.Count),
		Bytes:    humanize.Bytes(uint64(e.Bytes)),
		Duration: FormatDuration(e.Duration),
		Status:   e.Status(),
	}
	if e.Err != nil {
		v.Error = e.Err.Error()
	}
	return v
}

type payload struct {
	RunID      string `json:"run_id,omitempty"`
	Status     string `json:"status"`
	Source     string `json:"source"`
	Output     string `json:"output,omitempty"`
	Renditions int    `json:"renditions"`
	Bytes      int64  `json:"bytes"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// JSON returns the machine-readable summary sent when a hook has no Text.
func (e Event) JSON() []byte {
	p := payload{
		RunID:      e.RunID,
		Status:     e.Status(),
		Source:     e.Source,
		Output:     e.Output,
		Renditions: e.Count,
		Bytes:      e.Bytes,
		DurationMS: e.Duration.Milliseconds(),
	}
	if e.Err != nil {
		p.Error = e.Err.Error()
	}
	data, _ := json.Marshal(p)
	return data
}

// FormatDuration returns a compact duration string (e.g. "850ms", "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

// Filter returns the hooks whose When condition matches the outcome.
// Hooks with When="" always run.
func Filter(hooks []config.Hook, success bool) []config.Hook {
	out := make([]config.Hook, 0, len(hooks))
	for _, h := range hooks {
		switch h.When {
		case "":
		case "success":
			if !success {
				continue
			}
		case "failure":
			if success {
				continue
			}
		default:
			continue
		}
		out = append(out, h)
	}
	return out
}

// Execute fires every matching hook in parallel and waits for all of them.
// Failures are collected; one failing hook does not stop the others.
func Execute(ctx context.Context, hooks []config.Hook, ev Event) error {
	hooks = Filter(hooks, ev.Err == nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for i, h := range hooks {
		wg.Add(1)
		go func(idx int, h config.Hook) {
			defer wg.Done()
			if err := run(ctx, h, ev); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("hook %d (%s): %w", idx+1, h.Type, err))
				mu.Unlock()
			}
		}(i, h)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func run(ctx context.Context, h config.Hook, ev Event) error {
	body, contentType := ev.JSON(), "application/json"
	if h.Text != "" {
		body, contentType = []byte(tmpl.Expand(h.Text, ev.Vars())), "text/plain"
	}

	switch h.Type {
	case "webhook":
		return webhook.Send(ctx, h.URL, contentType, string(body), h.Headers)
	case "mqtt":
		return mqtt.Publish(mqtt.Target{
			Broker:   h.Broker,
			ClientID: h.ClientID,
			Topic:    h.Topic,
			QoS:      h.QoS,
			Retain:   h.Retain,
			Username: h.Username,
			Password: h.Password,
		}, body)
	case "command":
		return runCommand(ctx, h.Command, h.Timeout, ev)
	default:
		return fmt.Errorf("unknown hook type: %q", h.Type)
	}
}
