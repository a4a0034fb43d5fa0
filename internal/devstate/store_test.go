package devstate

import (
	"sync"
	"testing"
)

func TestStore_MutateCreatesOnFirstSighting(t *testing.T) {
	s := NewStore()

	var sawFirst bool
	s.Mutate("esp32_02", func(state *DeviceState, first bool) {
		sawFirst = first
		state.LastSeen["temperature"] = 25
	})
	if !sawFirst {
		t.Fatal("expected first sighting")
	}

	s.Mutate("esp32_02", func(state *DeviceState, first bool) {
		if first {
			t.Fatal("device already known")
		}
		if state.LastSeen["temperature"] != 25 {
			t.Errorf("expected cached value 25, got %v", state.LastSeen["temperature"])
		}
	})

	if s.Count() != 1 {
		t.Errorf("expected 1 device, got %d", s.Count())
	}
}

func TestStore_KnownIsSorted(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"esp32_03", "esp32_01", "esp32_02"} {
		s.Mutate(id, func(*DeviceState, bool) {})
	}

	known := s.Known()
	want := []string{"esp32_01", "esp32_02", "esp32_03"}
	if len(known) != len(want) {
		t.Fatalf("expected %d devices, got %d", len(want), len(known))
	}
	for i := range want {
		if known[i] != want[i] {
			t.Errorf("expected %s at %d, got %s", want[i], i, known[i])
		}
	}
}

func TestStore_ConcurrentMutations(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Mutate("esp32_02", func(state *DeviceState, _ bool) {
					state.LastSeen["temperature"] = state.LastSeen["temperature"] + 1
				})
			}
		}()
	}
	wg.Wait()

	v, ok := s.LastSeen("esp32_02", "temperature")
	if !ok || v != 1600 {
		t.Errorf("expected 1600 increments, got %v", v)
	}
}
