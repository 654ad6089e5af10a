package state

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestStoreGetOrCreateReusesEntry(t *testing.T) {
	s := NewStore[*int]()
	calls := 0
	create := func() *int { calls++; v := calls; return &v }

	a, created := s.GetOrCreate(1, create)
	if !created {
		t.Fatal("first call should create")
	}
	b, created := s.GetOrCreate(1, create)
	if created || a != b {
		t.Fatalf("second call created=%v same=%v", created, a == b)
	}
	if calls != 1 {
		t.Fatalf("create called %d times", calls)
	}
	if _, ok := s.Get(2); ok {
		t.Fatal("unexpected entry for chat 2")
	}
}

func TestStoreRemoveAndLen(t *testing.T) {
	s := NewStore[string]()
	s.GetOrCreate(1, func() string { return "a" })
	s.GetOrCreate(2, func() string { return "b" })
	if s.Len() != 2 {
		t.Fatalf("Len = %d", s.Len())
	}
	if v, ok := s.Remove(1); !ok || v != "a" {
		t.Fatalf("Remove = %q, %v", v, ok)
	}
	if _, ok := s.Remove(1); ok {
		t.Fatal("second Remove should report missing")
	}
	var seen []int64
	s.Range(func(id int64, _ string) bool { seen = append(seen, id); return true })
	if len(seen) != 1 || seen[0] != 2 {
		t.Fatalf("Range saw %v", seen)
	}
}

func TestStoreIdle(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := NewStore[int]()
	s.SetClock(clock.now)
	s.GetOrCreate(1, func() int { return 1 })
	s.GetOrCreate(2, func() int { return 2 })

	clock.t = clock.t.Add(time.Minute)
	s.Touch(2)
	clock.t = clock.t.Add(30 * time.Second)

	idle := s.Idle(time.Minute)
	if len(idle) != 1 || idle[0] != 1 {
		t.Fatalf("Idle = %v, want [1]", idle)
	}
	if s.Touch(3) {
		t.Fatal("Touch of missing chat should report false")
	}
}

func TestStoreConcurrentGetOrCreate(t *testing.T) {
	s := NewStore[*int]()
	var wg sync.WaitGroup
	results := make([]*int, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.GetOrCreate(7, func() *int { return new(int) })
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		if r != results[0] {
			t.Fatal("concurrent GetOrCreate returned different entries")
		}
	}
}
