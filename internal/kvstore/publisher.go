package kvstore

import (
	"context"
	"log"

	"github.com/banshee-data/bodyviewer/internal/kinect"
)

// Publisher copies the first tracked body of each result into a Record and
// writes it to a Store.
//
// Only Bodies[0] is published. The tracker does not order bodies by any
// documented criterion, so with several people in view the published body is
// whichever the tracker lists first. The publisher logs once when that
// happens rather than choosing silently.
type Publisher struct {
	store   Store
	keys    KeySet
	record  *Record
	entries []Entry

	published   uint64
	warnedMulti bool
}

// NewPublisher registers the key set for prefix and returns a publisher
// writing to store.
func NewPublisher(store Store, prefix string) *Publisher {
	p := &Publisher{
		store:   store,
		keys:    NewKeySet(prefix),
		record:  NewRecord(),
		entries: make([]Entry, 2*kinect.JointCount),
	}
	for i := 0; i < kinect.JointCount; i++ {
		p.entries[i].Key = p.keys.Position[i]
		p.entries[kinect.JointCount+i].Key = p.keys.Orientation[i]
	}
	return p
}

// Publish writes the first body of frame. It reports whether anything was
// written: a frame with no bodies leaves the record and the store untouched.
func (p *Publisher) Publish(ctx context.Context, frame *kinect.BodyFrame) (bool, error) {
	if frame.NumBodies() == 0 {
		return false, nil
	}
	if frame.NumBodies() > 1 && !p.warnedMulti {
		log.Printf("[KV] %d bodies tracked, publishing only body id %d", frame.NumBodies(), frame.Bodies[0].ID)
		p.warnedMulti = true
	}

	p.record.Update(&frame.Bodies[0].Skeleton)
	for i := 0; i < kinect.JointCount; i++ {
		p.entries[i].Value = EncodeVector(p.record.Positions[i])
		p.entries[kinect.JointCount+i].Value = EncodeMatrix(p.record.Orientations[i])
	}

	if err := p.store.WriteAll(ctx, p.entries); err != nil {
		return false, err
	}
	p.published++
	return true, nil
}

// Record returns a copy of the current published state.
func (p *Publisher) Record() Record {
	return *p.record
}

// Keys returns the registered key set.
func (p *Publisher) Keys() KeySet {
	return p.keys
}

// Published returns the number of successful writes.
func (p *Publisher) Published() uint64 {
	return p.published
}
