package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func withFake(t *testing.T) *fakeBackend {
	t.Helper()
	orig := backend
	t.Cleanup(func() { backend = orig })
	fb := &fakeBackend{}
	backend = fb
	return fb
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := withFake(t)

	RecordStep("nightly", "transfer", "cleaning", nil, 2*time.Second)
	RecordStep("nightly", "transfer", "loading", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.callsCounters) != 2 || len(fb.callsHistograms) != 2 {
		t.Fatalf("counters=%d histograms=%d; want 2/2", len(fb.callsCounters), len(fb.callsHistograms))
	}
	cc0 := fb.callsCounters[0]
	if cc0.name != StepTotal || cc0.delta != 1 {
		t.Fatalf("counter[0] = %#v", cc0)
	}
	if cc0.labels["status"] != "success" || cc0.labels["document"] != "transfer" || cc0.labels["step"] != "cleaning" {
		t.Fatalf("counter[0].labels = %v", cc0.labels)
	}
	if got := fb.callsCounters[1].labels["status"]; got != "failure" {
		t.Fatalf("counter[1] status = %q", got)
	}
	if got := fb.callsHistograms[1].value; got != 1.5 {
		t.Fatalf("histogram[1] = %v; want 1.5", got)
	}
}

func TestRecordRecords_IgnoresNonPositive(t *testing.T) {
	fb := withFake(t)

	RecordRecords("nightly", "OWTR", "loaded", 0)
	RecordRecords("nightly", "OWTR", "loaded", -3)
	RecordBatches("nightly", "OWTR", 0)
	if len(fb.callsCounters) != 0 {
		t.Fatalf("expected no calls, got %d", len(fb.callsCounters))
	}

	RecordRecords("nightly", "OWTR", "loaded", 7)
	RecordBatches("nightly", "OWTR", 2)
	RecordStatement("nightly", "load", "constraint")
	if len(fb.callsCounters) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(fb.callsCounters))
	}
	if c := fb.callsCounters[0]; c.name != RecordsTotal || c.delta != 7 || c.labels["entity"] != "OWTR" {
		t.Fatalf("records call = %#v", c)
	}
	if c := fb.callsCounters[2]; c.labels["outcome"] != "constraint" {
		t.Fatalf("statement call = %#v", c)
	}
}

func TestSetBackend_NilKeepsCurrentAndFlushDelegates(t *testing.T) {
	fb := withFake(t)
	SetBackend(nil)
	if backend != fb {
		t.Fatal("SetBackend(nil) replaced the backend")
	}
	if err := Flush(); err != nil {
		t.Fatal(err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("flushCount = %d", fb.flushCount)
	}
}
