// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package ratelimit

import (
	"math"
	"sync"
	"time"
)

const (
	minuteWindow    = 60 * time.Second
	dayWindow       = 86400 * time.Second
	cleanupInterval = 5 * time.Minute
	evictInterval   = time.Hour
)

// entry is the process-local state for one scope key (a userID or an
// orgID). timestamps is kept in insertion (monotonically non-decreasing)
// order since requests are recorded as they arrive.
type entry struct {
	mu          sync.Mutex
	timestamps  []time.Time
	lastCleanup time.Time
}

// scopeMap guards a map of scope-key -> entry with a single mutex, per the
// "single sharded mutex per scope map" contract; each entry additionally
// has its own lock so two different keys never block each other during
// the (rare) trim step.
type scopeMap struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func newScopeMap() *scopeMap {
	return &scopeMap{entries: make(map[string]*entry)}
}

func (s *scopeMap) get(key string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

// MemoryLimiter is the default, process-local sliding-window limiter.
type MemoryLimiter struct {
	limits Limits
	now    func() time.Time

	byUser *scopeMap
	byOrg  *scopeMap

	stopEvict chan struct{}
	evictOnce sync.Once
}

// NewMemory creates a MemoryLimiter and starts its hourly eviction loop.
// Call Close to stop the loop on shutdown.
func NewMemory(limits Limits) *MemoryLimiter {
	return newMemoryWithClock(limits, time.Now)
}

// newMemoryWithClock is exposed to tests so they can inject a virtual
// clock instead of sleeping real time.
func newMemoryWithClock(limits Limits, now func() time.Time) *MemoryLimiter {
	l := &MemoryLimiter{
		limits:    limits,
		now:       now,
		byUser:    newScopeMap(),
		byOrg:     newScopeMap(),
		stopEvict: make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

func (l *MemoryLimiter) evictLoop() {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictStale()
		case <-l.stopEvict:
			return
		}
	}
}

// evictStale removes entire entries whose newest timestamp is older than
// dayWindow + minuteWindow, across both scope maps.
func (l *MemoryLimiter) evictStale() {
	cutoff := l.now().Add(-(dayWindow + minuteWindow))
	for _, sm := range []*scopeMap{l.byUser, l.byOrg} {
		sm.mu.Lock()
		for key, e := range sm.entries {
			e.mu.Lock()
			stale := len(e.timestamps) == 0 || e.timestamps[len(e.timestamps)-1].Before(cutoff)
			e.mu.Unlock()
			if stale {
				delete(sm.entries, key)
			}
		}
		sm.mu.Unlock()
	}
}

// Close stops the hourly eviction goroutine. Safe to call more than once.
func (l *MemoryLimiter) Close() {
	l.evictOnce.Do(func() { close(l.stopEvict) })
}

// checkScope evaluates one scope's minute and day counts for key, denying
// on whichever limit is exhausted first (minute before day).
func (l *MemoryLimiter) checkScope(sm *scopeMap, key string, minuteLimit, dayLimit int, minuteType, dayType LimitType) (Result, bool) {
	if key == "" {
		return Result{}, true
	}

	e := sm.get(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := l.now()

	if e.lastCleanup.IsZero() || now.Sub(e.lastCleanup) >= cleanupInterval {
		e.timestamps = filterWithin(e.timestamps, now.Add(-dayWindow))
		e.lastCleanup = now
	}

	minuteCutoff := now.Add(-minuteWindow)
	minuteCount := 0
	var oldestInMinute time.Time
	for _, ts := range e.timestamps {
		if ts.After(minuteCutoff) {
			if minuteCount == 0 {
				oldestInMinute = ts
			}
			minuteCount++
		}
	}
	dayCount := len(e.timestamps)

	if minuteCount >= minuteLimit {
		retry := int64(math.Ceil(oldestInMinute.Add(minuteWindow).Sub(now).Seconds()))
		if retry < 0 {
			retry = 0
		}
		return Result{
			Allowed:           false,
			Reason:            "rate_limit_exceeded",
			RetryAfterSeconds: retry,
			LimitType:         minuteType,
			Current:           minuteCount,
			Limit:             minuteLimit,
		}, true
	}

	if dayCount >= dayLimit {
		var oldest time.Time
		if len(e.timestamps) > 0 {
			oldest = e.timestamps[0]
		} else {
			oldest = now
		}
		retry := int64(math.Ceil(oldest.Add(dayWindow).Sub(now).Seconds()))
		if retry < 0 {
			retry = 0
		}
		return Result{
			Allowed:           false,
			Reason:            "rate_limit_exceeded",
			RetryAfterSeconds: retry,
			LimitType:         dayType,
			Current:           dayCount,
			Limit:             dayLimit,
		}, true
	}

	return Result{Allowed: true}, false
}

// Check evaluates user-per-minute -> user-per-day -> org-per-minute ->
// org-per-day, returning the first denial. Organization scope is skipped
// when orgID is empty.
func (l *MemoryLimiter) Check(userID, orgID string) Result {
	if res, denied := l.checkScope(l.byUser, userID, l.limits.UserPerMinute, l.limits.UserPerDay, LimitUserPerMinute, LimitUserPerDay); denied {
		return res
	}
	if orgID == "" {
		return Result{Allowed: true}
	}
	if res, denied := l.checkScope(l.byOrg, orgID, l.limits.OrgPerMinute, l.limits.OrgPerDay, LimitOrgPerMinute, LimitOrgPerDay); denied {
		return res
	}
	return Result{Allowed: true}
}

// Record appends now to the user's and (if present) the organization's
// timestamp sequence.
func (l *MemoryLimiter) Record(userID, orgID string) {
	now := l.now()
	if userID != "" {
		e := l.byUser.get(userID)
		e.mu.Lock()
		e.timestamps = append(e.timestamps, now)
		e.mu.Unlock()
	}
	if orgID != "" {
		e := l.byOrg.get(orgID)
		e.mu.Lock()
		e.timestamps = append(e.timestamps, now)
		e.mu.Unlock()
	}
}

// filterWithin keeps only timestamps at or after cutoff, preserving order.
func filterWithin(timestamps []time.Time, cutoff time.Time) []time.Time {
	kept := timestamps[:0:0]
	for _, ts := range timestamps {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
