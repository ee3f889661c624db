package service

import "testing"

func TestExternalServiceStartsBad(t *testing.T) {
	svc := New("db", Crucial)
	if !svc.IsBad() {
		t.Fatal("new service should start Bad")
	}
	if !svc.IsCrucial() {
		t.Fatal("expected Crucial level")
	}
}

func TestExternalServiceEnableDisableNotifies(t *testing.T) {
	svc := New("db", Trivial)

	var events []Status
	svc.Subscribe(func(s *ExternalService) { events = append(events, s.Status()) })

	svc.Enable()
	svc.Disable(&Issue{Name: "db", Desc: "timeout"})

	if len(events) != 2 {
		t.Fatalf("got %d notifications, want 2", len(events))
	}
	if events[0] != Good || events[1] != Bad {
		t.Fatalf("events = %v, want [Good Bad]", events)
	}
	if svc.Issue().Desc != "timeout" {
		t.Fatalf("issue = %v, want timeout", svc.Issue())
	}
}

func TestExternalServiceEnableNoOpStillNotifies(t *testing.T) {
	svc := New("db", Trivial)
	svc.Enable()

	fired := false
	svc.Subscribe(func(*ExternalService) { fired = true })
	svc.Enable()

	if !fired {
		t.Fatal("Enable on an already-Good service should still notify observers")
	}
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	if !r.Register(New("a", Crucial)) {
		t.Fatal("first registration should succeed")
	}
	if r.Register(New("a", Trivial)) {
		t.Fatal("duplicate name should be rejected")
	}
}

func TestRegistryInsertionOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(New("c", Trivial))
	r.Register(New("a", Trivial))
	r.Register(New("b", Trivial))

	var names []string
	for _, svc := range r.All() {
		names = append(names, svc.Name)
	}

	want := []string{"c", "a", "b"}
	if len(names) != len(want) {
		t.Fatalf("All() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("All() = %v, want %v", names, want)
		}
	}
}

func TestRegistryAllCrucialGood(t *testing.T) {
	r := NewRegistry()
	crucial := New("crucial", Crucial)
	trivial := New("trivial", Trivial)
	r.Register(crucial)
	r.Register(trivial)

	if r.AllCrucialGood() {
		t.Fatal("crucial dependency starts Bad, should not be ready")
	}

	crucial.Enable()
	if !r.AllCrucialGood() {
		t.Fatal("all crucial deps are Good, should be ready regardless of trivial status")
	}
}

func TestEmptyRegistryIsReady(t *testing.T) {
	r := NewRegistry()
	if !r.AllCrucialGood() {
		t.Fatal("an empty registry has no crucial deps and should count as ready")
	}
}
