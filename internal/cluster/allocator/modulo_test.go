package allocator

import "testing"

func TestModuloAddAndGet(t *testing.T) {
	m := NewModulo(4)

	if err := m.Add("a", 0); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := m.Add("b", 2); err != nil {
		t.Fatalf("add b: %v", err)
	}

	t.Run("claimed slot routes to member", func(t *testing.T) {
		if got := m.Get(0); got != "a" {
			t.Errorf("Get(0) = %q, want a", got)
		}
		if got := m.Get(4); got != "a" {
			t.Errorf("Get(4) = %q, want a (4 mod 4 == 0)", got)
		}
		if got := m.Get(2); got != "b" {
			t.Errorf("Get(2) = %q, want b", got)
		}
	})

	t.Run("unclaimed slot returns empty, no fallback", func(t *testing.T) {
		if got := m.Get(1); got != "" {
			t.Errorf("Get(1) = %q, want empty", got)
		}
	})

	t.Run("negative keys resolve safely", func(t *testing.T) {
		if got := m.Get(-4); got != "a" {
			t.Errorf("Get(-4) = %q, want a", got)
		}
	})
}

func TestModuloDuplicateName(t *testing.T) {
	m := NewModulo(4)
	if err := m.Add("a", 0); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := m.Add("a", 1); err == nil {
		t.Fatal("expected duplicate-name error")
	}
}

func TestModuloDuplicateSlot(t *testing.T) {
	m := NewModulo(4)
	if err := m.Add("a", 0); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := m.Add("b", 0); err == nil {
		t.Fatal("expected duplicate-slot error")
	}
}

func TestModuloOutOfRange(t *testing.T) {
	m := NewModulo(4)
	if err := m.Add("a", 4); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestModuloUpdateAndRemove(t *testing.T) {
	m := NewModulo(4)
	if err := m.Add("a", UnknownSlot); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if !m.IsManaged("a") {
		t.Fatal("a should be managed")
	}
	if got := m.Get(0); got != "" {
		t.Errorf("Get(0) = %q before slot known, want empty", got)
	}

	if err := m.Update("a", 0); err != nil {
		t.Fatalf("update a: %v", err)
	}
	if got := m.Get(0); got != "a" {
		t.Errorf("Get(0) = %q after update, want a", got)
	}

	m.Remove("a")
	if m.IsManaged("a") {
		t.Fatal("a should no longer be managed")
	}
	if got := m.Get(0); got != "" {
		t.Errorf("Get(0) = %q after remove, want empty", got)
	}
}

func TestModuloSetNodes(t *testing.T) {
	m := NewModulo(3)
	err := m.SetNodes([]NodeDesc{{Name: "a", Slot: 0}, {Name: "b", Slot: 1}})
	if err != nil {
		t.Fatalf("SetNodes: %v", err)
	}

	names := m.Names()
	if len(names) != 2 {
		t.Fatalf("Names() = %v, want 2 entries", names)
	}

	err = m.SetNodes([]NodeDesc{{Name: "c", Slot: UnknownSlot}})
	if err != nil {
		t.Fatalf("SetNodes replace: %v", err)
	}
	if m.IsManaged("a") {
		t.Fatal("a should have been replaced out by SetNodes")
	}
	if !m.IsManaged("c") {
		t.Fatal("c should be managed after SetNodes")
	}
}
