// Package service implements the external-service supervisor: observable
// dependency health tracking for the services an application relies on
// (coordination service, databases, ...), partitioned into Trivial/Crucial
// levels and Good/Bad status, per spec.md §4.C.
package service

import "sync"

// Level marks whether a dependency gates readiness.
type Level int

const (
	// Trivial dependencies do not block readiness when Bad.
	Trivial Level = iota
	// Crucial dependencies must be Good for the owning controller to
	// reach RUNNING.
	Crucial
)

// IsCrucial reports whether the level is Crucial.
func (l Level) IsCrucial() bool { return l == Crucial }

// Status is the health of an external service.
type Status int

const (
	// Bad means the dependency is currently unavailable.
	Bad Status = iota
	// Good means the dependency is currently usable.
	Good
)

// IsGood reports whether status is Good.
func (s Status) IsGood() bool { return s == Good }

// IsBad reports whether status is Bad.
func (s Status) IsBad() bool { return s == Bad }

func (s Status) String() string {
	if s == Good {
		return "good"
	}
	return "bad"
}

// Issue describes the fault behind a Bad transition. Nil is valid and
// means "no specific issue recorded".
type Issue struct {
	Name string
	Desc string
}

func (i *Issue) String() string {
	if i == nil {
		return ""
	}
	return i.Name + ", " + i.Desc
}

// Observer is notified whenever an ExternalService's status changes.
type Observer func(svc *ExternalService)

// ExternalService is an observable dependency health record. Levels are
// immutable once constructed; status starts Bad.
type ExternalService struct {
	Name  string
	level Level

	mu        sync.Mutex
	status    Status
	issue     *Issue
	observers []Observer
}

// New creates an ExternalService, initially Bad.
func New(name string, level Level) *ExternalService {
	return &ExternalService{Name: name, level: level, status: Bad}
}

// Level returns the service's immutable level.
func (s *ExternalService) Level() Level { return s.level }

// IsCrucial reports whether the service's level is Crucial.
func (s *ExternalService) IsCrucial() bool { return s.level.IsCrucial() }

// Status returns the current status.
func (s *ExternalService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsGood reports whether the service is currently Good.
func (s *ExternalService) IsGood() bool { return s.Status().IsGood() }

// IsBad reports whether the service is currently Bad.
func (s *ExternalService) IsBad() bool { return s.Status().IsBad() }

// Issue returns the issue recorded at the last Disable call, or nil.
func (s *ExternalService) Issue() *Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issue
}

// Subscribe registers an observer, fired on every future Enable/Disable.
func (s *ExternalService) Subscribe(obs Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

// Enable transitions Bad → Good and notifies observers. A no-op transition
// (already Good) still notifies, matching the "enable fires observers"
// wording in the spec rather than silently deduplicating.
func (s *ExternalService) Enable() {
	s.mu.Lock()
	s.status = Good
	s.issue = nil
	s.mu.Unlock()

	s.notify()
}

// Disable transitions Good → Bad, recording issue, and notifies observers.
func (s *ExternalService) Disable(issue *Issue) {
	s.mu.Lock()
	s.status = Bad
	s.issue = issue
	s.mu.Unlock()

	s.notify()
}

func (s *ExternalService) notify() {
	s.mu.Lock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, obs := range observers {
		obs(s)
	}
}

func (s *ExternalService) String() string {
	desc := s.Name + "-" + s.statusLabel()
	if issue := s.Issue(); issue != nil {
		desc += "(" + issue.String() + ")"
	}
	return desc
}

func (s *ExternalService) statusLabel() string {
	if s.IsCrucial() {
		return s.Status().String() + "-crucial"
	}
	return s.Status().String() + "-trivial"
}

// Registry holds the set of dependencies a ServerStatusController tracks,
// preserving insertion order for retrieval (only insertion-ordered
// retrieval is required by the spec).
type Registry struct {
	mu    sync.Mutex
	byKey map[string]*ExternalService
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*ExternalService)}
}

// Register adds svc to the registry, reporting false if the name is
// already registered (callers wrap this into clustererr.ErrDuplicateService
// with call-site context).
func (r *Registry) Register(svc *ExternalService) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[svc.Name]; exists {
		return false
	}

	r.byKey[svc.Name] = svc
	r.order = append(r.order, svc.Name)
	return true
}

// Get returns the named service, if registered.
func (r *Registry) Get(name string) (*ExternalService, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.byKey[name]
	return svc, ok
}

// All returns every registered service in insertion order.
func (r *Registry) All() []*ExternalService {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*ExternalService, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byKey[name])
	}
	return out
}

// AllCrucialGood reports whether every Crucial service in the registry is
// currently Good. An empty registry counts as ready.
func (r *Registry) AllCrucialGood() bool {
	for _, svc := range r.All() {
		if svc.IsCrucial() && svc.IsBad() {
			return false
		}
	}
	return true
}
