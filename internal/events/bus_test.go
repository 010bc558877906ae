package events

import "testing"

func TestPublishDelivers(t *testing.T) {
	b := NewBus()
	s := b.Subscribe(4)
	defer s.Close()

	b.Publish(SectionLoaded, "x")
	ev := <-s.C
	if ev.Kind != SectionLoaded {
		t.Errorf("Expected %s, got %s", SectionLoaded, ev.Kind)
	}
	if ev.Data != "x" {
		t.Errorf("Expected payload x, got %v", ev.Data)
	}
}

func TestPublishFiltersKinds(t *testing.T) {
	b := NewBus()
	s := b.Subscribe(4, LODLevelChanged)
	defer s.Close()

	b.Publish(SectionLoaded, nil)
	b.Publish(LODLevelChanged, 2)
	ev := <-s.C
	if ev.Kind != LODLevelChanged {
		t.Errorf("Expected only %s, got %s", LODLevelChanged, ev.Kind)
	}
	if len(s.C) != 0 {
		t.Errorf("Expected empty queue, got %d", len(s.C))
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBus()
	s := b.Subscribe(1)
	defer s.Close()

	for i := 0; i < 10; i++ {
		b.Publish(SectionUnloaded, i)
	}
	if got := b.Dropped(); got != 9 {
		t.Errorf("Expected 9 dropped, got %d", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := NewBus()
	s := b.Subscribe(1)
	s.Close()
	s.Close()
	if _, ok := <-s.C; ok {
		t.Error("Expected closed channel")
	}
	b.Publish(SectionLoaded, nil)
}

func TestNilBus(t *testing.T) {
	var b *Bus
	b.Publish(SectionLoaded, nil)
	if b.Dropped() != 0 {
		t.Error("Expected zero drops on nil bus")
	}
}
