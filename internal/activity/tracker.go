package activity

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// MinIdleTTL is the shortest idle TTL a tracker accepts. It covers the longest
// window any caller counts over, the mention tag window.
const MinIdleTTL = 5 * time.Minute

type entry struct {
	at   time.Time
	hash uint64
}

type userState struct {
	messages []entry
	tags     map[string][]time.Time
	lastSeen time.Time
}

type shard struct {
	mu    sync.Mutex
	users map[string]*userState
}

// Tracker keeps per guild/user sliding windows of recent messages and of the
// users they mentioned. State lives in memory only and is pruned lazily on
// each write; Sweep drops users that have been idle for longer than the TTL.
type Tracker struct {
	shards  [shardCount]*shard
	idleTTL time.Duration
}

// NewTracker returns a tracker that evicts users idle for idleTTL, raised to
// MinIdleTTL when shorter.
func NewTracker(idleTTL time.Duration) *Tracker {
	if idleTTL < MinIdleTTL {
		idleTTL = MinIdleTTL
	}
	t := &Tracker{idleTTL: idleTTL}
	for i := range t.shards {
		t.shards[i] = &shard{users: make(map[string]*userState)}
	}
	return t
}

func (t *Tracker) Record(guildID, userID string, at time.Time, normalizedContent string) {
	s, key := t.shardFor(guildID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.stateLocked(key)
	state.messages = append(state.messages, entry{at: at, hash: hashContent(normalizedContent)})
	state.touch(at)
}

// Prune drops message entries older than maxAge relative to now.
func (t *Tracker) Prune(guildID, userID string, maxAge time.Duration, now time.Time) {
	s, key := t.shardFor(guildID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.users[key]
	if state == nil {
		return
	}
	cutoff := now.Add(-maxAge)
	idx := 0
	for _, e := range state.messages {
		if !e.at.Before(cutoff) {
			break
		}
		idx++
	}
	state.messages = state.messages[idx:]
}

func (t *Tracker) CountWithin(guildID, userID string, window time.Duration, now time.Time) int {
	s, key := t.shardFor(guildID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.users[key]
	if state == nil {
		return 0
	}
	cutoff := now.Add(-window)
	count := 0
	for _, e := range state.messages {
		if !e.at.Before(cutoff) {
			count++
		}
	}
	return count
}

func (t *Tracker) CountDuplicates(guildID, userID, normalizedContent string, window time.Duration, now time.Time) int {
	s, key := t.shardFor(guildID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.users[key]
	if state == nil {
		return 0
	}
	target := hashContent(normalizedContent)
	cutoff := now.Add(-window)
	count := 0
	for _, e := range state.messages {
		if e.hash == target && !e.at.Before(cutoff) {
			count++
		}
	}
	return count
}

// RecordMentionTag appends at to the tag history of targetID, prunes that
// history to window and returns the remaining count.
func (t *Tracker) RecordMentionTag(guildID, userID, targetID string, at time.Time, window time.Duration) int {
	s, key := t.shardFor(guildID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.stateLocked(key)
	if state.tags == nil {
		state.tags = make(map[string][]time.Time)
	}
	history := pruneTimes(append(state.tags[targetID], at), at.Add(-window))
	state.tags[targetID] = history
	state.touch(at)
	return len(history)
}

// PruneTags prunes every target history of a user and forgets empty ones.
func (t *Tracker) PruneTags(guildID, userID string, window time.Duration, now time.Time) {
	s, key := t.shardFor(guildID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.users[key]
	if state == nil {
		return
	}
	cutoff := now.Add(-window)
	for target, history := range state.tags {
		pruned := pruneTimes(history, cutoff)
		if len(pruned) == 0 {
			delete(state.tags, target)
			continue
		}
		state.tags[target] = pruned
	}
}

// Sweep evicts users idle for longer than the tracker TTL and returns how
// many were removed.
func (t *Tracker) Sweep(now time.Time) int {
	cutoff := now.Add(-t.idleTTL)
	removed := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for key, state := range s.users {
			if state.lastSeen.Before(cutoff) {
				delete(s.users, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (t *Tracker) Len() int {
	total := 0
	for _, s := range t.shards {
		s.mu.Lock()
		total += len(s.users)
		s.mu.Unlock()
	}
	return total
}

func (t *Tracker) shardFor(guildID, userID string) (*shard, string) {
	key := guildID + ":" + userID
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return t.shards[h.Sum32()%shardCount], key
}

func (s *shard) stateLocked(key string) *userState {
	state := s.users[key]
	if state == nil {
		state = &userState{}
		s.users[key] = state
	}
	return state
}

func (u *userState) touch(at time.Time) {
	if at.After(u.lastSeen) {
		u.lastSeen = at
	}
}

func pruneTimes(times []time.Time, cutoff time.Time) []time.Time {
	out := times[:0]
	for _, at := range times {
		if !at.Before(cutoff) {
			out = append(out, at)
		}
	}
	return out
}

func hashContent(content string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(content))
	return h.Sum64()
}
