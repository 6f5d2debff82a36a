package journal

import "fmt"

// ResyncSignal summarizes the desync pressure that tripped the policy.
type ResyncSignal struct {
	HardDesyncs uint64
	TotalEvents uint64
	Attributes  []string
}

// Policy decides when repeated hard desyncs warrant a full state
// resynchronisation instead of more snapping.
type Policy struct {
	totalEvents uint64
	hardDesyncs uint64
	pending     bool
	attributes  []string
}

// One hard desync per hundred applied snapshots trips the policy.
const hardDesyncThresholdPerHundred = 1
const resyncAttributeLimit = 8

func NewPolicy() *Policy {
	return &Policy{attributes: make([]string, 0, resyncAttributeLimit)}
}

func (p *Policy) NoteEvent() {
	if p == nil {
		return
	}
	if p.totalEvents == ^uint64(0) {
		p.totalEvents = p.totalEvents / 2
		p.hardDesyncs = p.hardDesyncs / 2
	}
	p.totalEvents++
}

func (p *Policy) NoteHardDesync(attribute string) {
	if p == nil {
		return
	}
	p.hardDesyncs++
	if len(p.attributes) < resyncAttributeLimit {
		p.attributes = append(p.attributes, attribute)
	}
	p.evaluate()
}

func (p *Policy) evaluate() {
	if p == nil || p.pending || p.hardDesyncs == 0 {
		return
	}
	total := p.totalEvents
	if total == 0 {
		total = 1
	}
	if p.hardDesyncs*100 >= total*hardDesyncThresholdPerHundred {
		p.pending = true
	}
}

func (p *Policy) Consume() (ResyncSignal, bool) {
	if p == nil || !p.pending {
		return ResyncSignal{}, false
	}
	signal := ResyncSignal{
		HardDesyncs: p.hardDesyncs,
		TotalEvents: p.totalEvents,
		Attributes:  append([]string(nil), p.attributes...),
	}
	p.pending = false
	p.totalEvents = 0
	p.hardDesyncs = 0
	if len(p.attributes) > 0 {
		p.attributes = p.attributes[:0]
	}
	return signal, true
}

func (s ResyncSignal) Summary() string {
	if s.HardDesyncs == 0 && s.TotalEvents == 0 {
		return ""
	}
	return fmt.Sprintf("hard_desyncs=%d total_events=%d attributes=%v", s.HardDesyncs, s.TotalEvents, s.Attributes)
}
