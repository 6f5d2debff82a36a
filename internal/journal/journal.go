package journal

import (
	"sync"
	"time"
)

// Episode captures one completed rollback: the tick it ran on, the
// consolidated range, and how many frames were replayed.
type Episode struct {
	Frame       uint64
	Target      uint64
	End         uint64
	Resimulated uint64
	RecordedAt  time.Time
}

// EpisodeEviction explains why a stored episode was dropped.
type EpisodeEviction struct {
	Frame  uint64
	Target uint64
	Reason string
}

// RecordResult summarizes the journal window after a record.
type RecordResult struct {
	Size        int
	OldestFrame uint64
	NewestFrame uint64
	Evicted     []EpisodeEviction
}

// Journal keeps a rolling buffer of recent rollback episodes so desync
// investigations can reconstruct what the client replayed and when. It
// also hosts the resync policy that watches hard-desync pressure.
type Journal struct {
	mu          sync.RWMutex
	episodes    []Episode
	maxEpisodes int
	maxAge      time.Duration
	resync      *Policy
}

// New constructs a journal with storage for the configured number of
// episodes and retention window.
func New(episodeCapacity int, maxAge time.Duration) *Journal {
	if episodeCapacity < 0 {
		episodeCapacity = 0
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return &Journal{
		episodes:    make([]Episode, 0, episodeCapacity),
		maxEpisodes: episodeCapacity,
		maxAge:      maxAge,
		resync:      NewPolicy(),
	}
}

// RecordEpisode stores a completed rollback, enforcing retention limits
// by count and age.
func (j *Journal) RecordEpisode(episode Episode) RecordResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.maxEpisodes == 0 {
		j.episodes = j.episodes[:0]
		return RecordResult{}
	}

	if episode.RecordedAt.IsZero() {
		episode.RecordedAt = time.Now()
	}
	j.episodes = append(j.episodes, episode)

	evicted := make([]EpisodeEviction, 0)
	if j.maxAge > 0 {
		cutoff := episode.RecordedAt.Add(-j.maxAge)
		idx := 0
		for idx < len(j.episodes) {
			if !j.episodes[idx].RecordedAt.Before(cutoff) {
				break
			}
			evicted = append(evicted, EpisodeEviction{
				Frame:  j.episodes[idx].Frame,
				Target: j.episodes[idx].Target,
				Reason: "expired",
			})
			idx++
		}
		if idx > 0 {
			copy(j.episodes, j.episodes[idx:])
			j.episodes = j.episodes[:len(j.episodes)-idx]
		}
	}

	if len(j.episodes) > j.maxEpisodes {
		overflow := len(j.episodes) - j.maxEpisodes
		for i := 0; i < overflow; i++ {
			evicted = append(evicted, EpisodeEviction{
				Frame:  j.episodes[i].Frame,
				Target: j.episodes[i].Target,
				Reason: "count",
			})
		}
		copy(j.episodes, j.episodes[overflow:])
		j.episodes = j.episodes[:len(j.episodes)-overflow]
	}

	size := len(j.episodes)
	result := RecordResult{Size: size, Evicted: evicted}
	if size > 0 {
		result.OldestFrame = j.episodes[0].Frame
		result.NewestFrame = j.episodes[size-1].Frame
	}
	return result
}

// Episodes exposes the stored episodes in chronological order. Callers
// receive a copy to avoid holding references into the buffer.
func (j *Journal) Episodes() []Episode {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.episodes) == 0 {
		return nil
	}
	episodes := make([]Episode, len(j.episodes))
	copy(episodes, j.episodes)
	return episodes
}

// EpisodeWindow reports the current retention window.
func (j *Journal) EpisodeWindow() (size int, oldest, newest uint64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	size = len(j.episodes)
	if size == 0 {
		return size, 0, 0
	}
	oldest = j.episodes[0].Frame
	newest = j.episodes[size-1].Frame
	return size, oldest, newest
}

// NoteSnapshot counts one applied authoritative value toward the resync
// policy's denominator.
func (j *Journal) NoteSnapshot() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.resync.NoteEvent()
}

// NoteHardDesync counts one snapped-forward authoritative value against
// the resync policy.
func (j *Journal) NoteHardDesync(attribute string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.resync.NoteHardDesync(attribute)
}

// ConsumeResyncHint reports whether hard desyncs crossed the policy
// threshold and a full state resynchronisation should be requested.
// Counters reset after each consumption so the caller can re-evaluate
// on subsequent ticks.
func (j *Journal) ConsumeResyncHint() (ResyncSignal, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.resync == nil {
		return ResyncSignal{}, false
	}
	return j.resync.Consume()
}
