package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/procsync/internal/procedure"
	"github.com/roach88/procsync/internal/remote"
)

// FakeDirectory is an in-memory remote.Directory that records every call.
type FakeDirectory struct {
	Container string
	Recorder  *Recorder

	mu       sync.Mutex
	records  map[string]procedure.Record
	creates  []procedure.Record
	replaces []procedure.Record

	// ListErr fails every ListExisting call.
	ListErr error
	// CreateErr and ReplaceErr fail calls for specific ids.
	CreateErr  map[string]error
	ReplaceErr map[string]error
	// OnList runs inside ListExisting before the listing is taken.
	OnList func()
}

var _ remote.Directory = (*FakeDirectory)(nil)

// NewFakeDirectory creates a directory pre-populated with ids.
func NewFakeDirectory(container string, rec *Recorder, ids ...string) *FakeDirectory {
	d := &FakeDirectory{
		Container:  container,
		Recorder:   rec,
		records:    map[string]procedure.Record{},
		CreateErr:  map[string]error{},
		ReplaceErr: map[string]error{},
	}
	for _, id := range ids {
		d.records[id] = procedure.Record{ID: id}
	}
	return d
}

// ListExisting implements remote.Directory.
func (d *FakeDirectory) ListExisting(ctx context.Context) ([]string, error) {
	d.record(OpList, "")
	if d.OnList != nil {
		d.OnList()
	}
	if d.ListErr != nil {
		return nil, d.ListErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.records))
	for id := range d.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Create implements remote.Directory.
func (d *FakeDirectory) Create(ctx context.Context, rec procedure.Record) error {
	d.record(OpCreate, rec.ID)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creates = append(d.creates, rec)
	if err := d.CreateErr[rec.ID]; err != nil {
		return err
	}
	if _, ok := d.records[rec.ID]; ok {
		return fmt.Errorf("create %s: %w", rec.ID, remote.ErrConflict)
	}
	d.records[rec.ID] = rec
	return nil
}

// Replace implements remote.Directory.
func (d *FakeDirectory) Replace(ctx context.Context, rec procedure.Record) error {
	d.record(OpReplace, rec.ID)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replaces = append(d.replaces, rec)
	if err := d.ReplaceErr[rec.ID]; err != nil {
		return err
	}
	if _, ok := d.records[rec.ID]; !ok {
		return fmt.Errorf("replace %s: %w", rec.ID, remote.ErrNotFound)
	}
	d.records[rec.ID] = rec
	return nil
}

// Creates returns every Create call's record, in call order.
func (d *FakeDirectory) Creates() []procedure.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]procedure.Record(nil), d.creates...)
}

// Replaces returns every Replace call's record, in call order.
func (d *FakeDirectory) Replaces() []procedure.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]procedure.Record(nil), d.replaces...)
}

// Get returns the stored record for id.
func (d *FakeDirectory) Get(id string) (procedure.Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[id]
	return rec, ok
}

// Put stores rec without recording a call, simulating an outside writer.
func (d *FakeDirectory) Put(rec procedure.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[rec.ID] = rec
}

// Delete removes id without recording a call, simulating an outside writer.
func (d *FakeDirectory) Delete(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, id)
}

func (d *FakeDirectory) record(op, script string) {
	if d.Recorder != nil {
		d.Recorder.Record(op, d.Container, script)
	}
}
