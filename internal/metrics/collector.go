// Package metrics collects in-memory runtime statistics for the server's
// outbound calls: completions, image renders, storage queries and mail.
package metrics

import (
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpLLMGenerate   = "llm_generate"
	OpLLMStream     = "llm_stream"
	OpImageGenerate = "image_generate"
	OpDBQuery       = "db_query"
	OpMailSend      = "mail_send"
)

// tokenOps are the operations whose snapshots include token usage.
var tokenOps = map[string]bool{
	OpLLMGenerate: true,
	OpLLMStream:   true,
}

// OperationSnapshot provides computed stats for one operation.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Token stats, nil for operations without token usage.
	TotalInputTokens  *int64   `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64   `json:"total_output_tokens,omitempty"`
	AvgInputTokens    *float64 `json:"avg_input_tokens,omitempty"`
	AvgOutputTokens   *float64 `json:"avg_output_tokens,omitempty"`
	MinInputTokens    *int64   `json:"min_input_tokens,omitempty"`
	MaxInputTokens    *int64   `json:"max_input_tokens,omitempty"`
	MinOutputTokens   *int64   `json:"min_output_tokens,omitempty"`
	MaxOutputTokens   *int64   `json:"max_output_tokens,omitempty"`
}

// Snapshot is the full set of statistics at a point in time, as served by /stats.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	LLMGenerate   *OperationSnapshot `json:"llm_generate,omitempty"`
	LLMStream     *OperationSnapshot `json:"llm_stream,omitempty"`
	ImageGenerate *OperationSnapshot `json:"image_generate,omitempty"`
	DBQuery       *OperationSnapshot `json:"db_query,omitempty"`
	MailSend      *OperationSnapshot `json:"mail_send,omitempty"`
	Failures      map[string]int64   `json:"failures,omitempty"`
}

// series accumulates total, min and max of observed values.
type series struct {
	total, min, max int64
	seen            bool
}

func (s *series) observe(v int64) {
	s.total += v
	if !s.seen || v < s.min {
		s.min = v
	}
	if !s.seen || v > s.max {
		s.max = v
	}
	s.seen = true
}

// opStats is the raw data kept per operation.
type opStats struct {
	count  int64
	timeNs series
	input  series
	output series
}

func (o *opStats) snapshot(withTokens bool) *OperationSnapshot {
	if o == nil || o.count == 0 {
		return nil
	}
	n := float64(o.count)
	totalMs := time.Duration(o.timeNs.total).Milliseconds()
	snap := &OperationSnapshot{
		Count:       o.count,
		TotalTimeMs: totalMs,
		AvgTimeMs:   float64(totalMs) / n,
		MinTimeMs:   time.Duration(o.timeNs.min).Milliseconds(),
		MaxTimeMs:   time.Duration(o.timeNs.max).Milliseconds(),
	}
	if !withTokens || (o.input.total == 0 && o.output.total == 0) {
		return snap
	}

	in, out := o.input, o.output
	avgIn, avgOut := float64(in.total)/n, float64(out.total)/n
	snap.TotalInputTokens, snap.TotalOutputTokens = &in.total, &out.total
	snap.AvgInputTokens, snap.AvgOutputTokens = &avgIn, &avgOut
	snap.MinInputTokens, snap.MaxInputTokens = &in.min, &in.max
	snap.MinOutputTokens, snap.MaxOutputTokens = &out.min, &out.max
	return snap
}

// Collector aggregates runtime statistics. It is safe for concurrent use.
// A nil *Collector is valid and records nothing, so components can be
// built without one in tests.
type Collector struct {
	mu       sync.RWMutex
	start    time.Time
	ops      map[string]*opStats
	failures map[string]int64
}

// NewCollector creates a collector; uptime counts from now.
func NewCollector() *Collector {
	return &Collector{
		start:    time.Now(),
		ops:      make(map[string]*opStats),
		failures: make(map[string]int64),
	}
}

// record adds one timed call. Caller must hold the write lock.
func (c *Collector) record(op string, d time.Duration) *opStats {
	o, ok := c.ops[op]
	if !ok {
		o = &opStats{}
		c.ops[op] = o
	}
	o.count++
	o.timeNs.observe(int64(d))
	return o
}

// RecordTiming records one successful call of op.
func (c *Collector) RecordTiming(op string, d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(op, d)
}

// RecordLLMUsage records one model call with its token usage.
func (c *Collector) RecordLLMUsage(op string, d time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	o := c.record(op, d)
	o.input.observe(inputTokens)
	o.output.observe(outputTokens)
}

// RecordFailure counts a failed call of op. Failed calls are not timed.
func (c *Collector) RecordFailure(op string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op]++
}

// Since records the time elapsed since start for op. Use with defer.
func (c *Collector) Since(op string, start time.Time) {
	c.RecordTiming(op, time.Since(start))
}

// Snapshot returns the current statistics. Operations never recorded are nil.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	op := func(name string) *OperationSnapshot {
		return c.ops[name].snapshot(tokenOps[name])
	}

	snap := Snapshot{
		UptimeSeconds: time.Since(c.start).Seconds(),
		LLMGenerate:   op(OpLLMGenerate),
		LLMStream:     op(OpLLMStream),
		ImageGenerate: op(OpImageGenerate),
		DBQuery:       op(OpDBQuery),
		MailSend:      op(OpMailSend),
	}
	if len(c.failures) > 0 {
		snap.Failures = make(map[string]int64, len(c.failures))
		for name, n := range c.failures {
			snap.Failures[name] = n
		}
	}
	return snap
}
