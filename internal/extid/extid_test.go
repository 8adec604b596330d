package extid

import "testing"

func TestRegisterIsIdempotentPerKind(t *testing.T) {
	id1 := Register("extid_test.kindA", func() interface{} { return "a" })
	id2 := Register("extid_test.kindA", func() interface{} { return "a-again" })

	if id1 != id2 {
		t.Fatalf("expected registering the same kind twice to return the same id, got %v and %v", id1, id2)
	}
}

func TestRegisterAssignsDistinctIDsPerKind(t *testing.T) {
	idA := Register("extid_test.kindB", func() interface{} { return 1 })
	idB := Register("extid_test.kindC", func() interface{} { return 2 })

	if idA == idB {
		t.Fatalf("expected distinct kinds to get distinct ids")
	}
}

func TestStoreGetOrCreateUsesFactoryOnce(t *testing.T) {
	calls := 0
	id := Register("extid_test.kindD", func() interface{} {
		calls++
		return calls
	})

	s := NewStore()

	first := s.GetOrCreate(id)
	second := s.GetOrCreate(id)

	if first != second {
		t.Fatalf("expected GetOrCreate to return the same value on repeated calls, got %v and %v", first, second)
	}

	if calls != 1 {
		t.Fatalf("expected the factory to run exactly once, ran %d times", calls)
	}
}

func TestGetTypedReportsMismatch(t *testing.T) {
	id := Register("extid_test.kindE", func() interface{} { return "a string" })

	s := NewStore()
	s.GetOrCreate(id)

	if _, ok := GetTyped[int](s, id); ok {
		t.Fatalf("expected a type mismatch to report ok=false")
	}

	v, ok := GetTyped[string](s, id)
	if !ok || v != "a string" {
		t.Fatalf("got %q, %v", v, ok)
	}
}

func TestGetOnUnknownIDIsNotFound(t *testing.T) {
	s := NewStore()

	if _, ok := s.Get(ID("does-not-exist")); ok {
		t.Fatalf("expected Get on an unregistered id to report not found")
	}
}
