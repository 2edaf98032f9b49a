/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent log lines in memory so operators
// can see why the autopilot chose what it chose without shell access.
package logbuffer

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 5000

// Entry is one parsed zerolog line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Query filters entries. Zero values match everything.
type Query struct {
	Level     string
	Component string
	Search    string
	Since     time.Time
	Limit     int // newest entries win when set
}

// Buffer is a fixed size ring of log entries. It implements io.Writer so it
// can sit behind zerolog.MultiLevelWriter.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
}

// New creates a buffer holding up to capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{entries: make([]Entry, capacity)}
}

// Write parses one JSON log line. Lines that are not JSON are kept as the
// message of an entry without level.
func (b *Buffer) Write(p []byte) (int, error) {
	b.add(parse(p))
	return len(p), nil
}

func parse(p []byte) Entry {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		return Entry{Timestamp: time.Now(), Message: strings.TrimSpace(string(p))}
	}
	e := Entry{Timestamp: time.Now()}
	for key, v := range raw {
		switch key {
		case "level":
			e.Level, _ = v.(string)
		case "message":
			e.Message, _ = v.(string)
		case "component":
			e.Component, _ = v.(string)
		case "time":
			switch t := v.(type) {
			case float64:
				e.Timestamp = time.Unix(int64(t), 0)
			case string:
				if parsed, err := time.Parse(time.RFC3339, t); err == nil {
					e.Timestamp = parsed
				}
			}
		default:
			if e.Fields == nil {
				e.Fields = make(map[string]any)
			}
			e.Fields[key] = v
		}
	}
	return e
}

func (b *Buffer) add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.head] = e
	b.head = (b.head + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
}

// All returns every entry, oldest first.
func (b *Buffer) All() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, b.count)
	start := 0
	if b.count == len(b.entries) {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		out[i] = b.entries[(start+i)%len(b.entries)]
	}
	return out
}

// Find returns matching entries oldest first.
func (b *Buffer) Find(q Query) []Entry {
	out := []Entry{}
	for _, e := range b.All() {
		if q.Level != "" && e.Level != q.Level {
			continue
		}
		if q.Component != "" && e.Component != q.Component {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if q.Search != "" && !matches(e, strings.ToLower(q.Search)) {
			continue
		}
		out = append(out, e)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

func matches(e Entry, needle string) bool {
	if strings.Contains(strings.ToLower(e.Message), needle) {
		return true
	}
	for _, v := range e.Fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// Len reports how many entries are held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}
