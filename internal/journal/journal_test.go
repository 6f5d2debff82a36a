package journal

import (
	"testing"
	"time"
)

func TestRecordEpisodeEnforcesCountRetention(t *testing.T) {
	j := New(2, 0)

	j.RecordEpisode(Episode{Frame: 10, Target: 8, End: 10, Resimulated: 3})
	j.RecordEpisode(Episode{Frame: 14, Target: 12, End: 14, Resimulated: 3})
	result := j.RecordEpisode(Episode{Frame: 20, Target: 18, End: 20, Resimulated: 3})

	if result.Size != 2 {
		t.Fatalf("expected window size 2, got %d", result.Size)
	}
	if result.OldestFrame != 14 || result.NewestFrame != 20 {
		t.Fatalf("expected window [14,20], got [%d,%d]", result.OldestFrame, result.NewestFrame)
	}
	if len(result.Evicted) != 1 || result.Evicted[0].Frame != 10 || result.Evicted[0].Reason != "count" {
		t.Fatalf("unexpected evictions: %+v", result.Evicted)
	}
}

func TestRecordEpisodeEnforcesAgeRetention(t *testing.T) {
	j := New(8, time.Minute)
	now := time.Now()

	j.RecordEpisode(Episode{Frame: 5, Target: 3, End: 5, RecordedAt: now.Add(-2 * time.Minute)})
	result := j.RecordEpisode(Episode{Frame: 9, Target: 7, End: 9, RecordedAt: now})

	if result.Size != 1 {
		t.Fatalf("expected 1 retained episode, got %d", result.Size)
	}
	if len(result.Evicted) != 1 || result.Evicted[0].Reason != "expired" {
		t.Fatalf("unexpected evictions: %+v", result.Evicted)
	}
	episodes := j.Episodes()
	if len(episodes) != 1 || episodes[0].Frame != 9 {
		t.Fatalf("unexpected episodes: %+v", episodes)
	}
}

func TestZeroCapacityJournalStoresNothing(t *testing.T) {
	j := New(0, 0)
	result := j.RecordEpisode(Episode{Frame: 4, Target: 2, End: 4})
	if result.Size != 0 {
		t.Fatalf("expected empty journal, got size %d", result.Size)
	}
	if size, _, _ := j.EpisodeWindow(); size != 0 {
		t.Fatalf("expected empty window, got %d", size)
	}
}

func TestResyncPolicyTripsOnHardDesyncPressure(t *testing.T) {
	j := New(4, 0)

	// Plenty of clean snapshots keeps the policy quiet.
	for i := 0; i < 500; i++ {
		j.NoteSnapshot()
	}
	if _, ok := j.ConsumeResyncHint(); ok {
		t.Fatal("expected no hint without hard desyncs")
	}

	for i := 0; i < 5; i++ {
		j.NoteHardDesync("player-1/health")
	}
	signal, ok := j.ConsumeResyncHint()
	if !ok {
		t.Fatal("expected resync hint after repeated hard desyncs")
	}
	if signal.HardDesyncs != 5 {
		t.Fatalf("expected 5 hard desyncs, got %d", signal.HardDesyncs)
	}
	if len(signal.Attributes) != 5 || signal.Attributes[0] != "player-1/health" {
		t.Fatalf("unexpected attributes: %v", signal.Attributes)
	}
	if signal.Summary() == "" {
		t.Fatal("expected non-empty summary")
	}

	// Counters reset after consumption.
	if _, ok := j.ConsumeResyncHint(); ok {
		t.Fatal("expected hint to be consumed")
	}
}
