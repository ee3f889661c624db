// Package clustererr defines the sentinel errors shared across the
// cluster-coordination core, per the error taxonomy in the design (transient
// dependency errors, protocol violations, configuration errors, and
// programmer errors). Call sites wrap these with fmt.Errorf("...: %w", ...)
// to add context, matching the convention used throughout the rest of the
// repository.
package clustererr

import "errors"

var (
	// ErrAlreadyRunning is returned by a ScopedGuard when re-entered while
	// still held. Programmer error: never silently swallowed.
	ErrAlreadyRunning = errors.New("clustercore: already running")

	// ErrLockNotOwned is returned when releasing a distributed lock that
	// holds no candidate node: Acquire never created one, or it was
	// already released.
	ErrLockNotOwned = errors.New("clustercore: lock not owned")

	// ErrLockReleaseFailed signals that deleting the owned lock node
	// failed; the spec treats this as fatal to the caller.
	ErrLockReleaseFailed = errors.New("clustercore: lock release failed")

	// ErrInvalidSlotData marks peer node data that is not a decimal
	// integer. Protocol violation: logged and skipped, never fatal.
	ErrInvalidSlotData = errors.New("clustercore: invalid slot data")

	// ErrConfigInvalid marks a ClusterConfig that failed validation at
	// parse time (bad working_mode, max_working_nodes < 1, missing paths).
	ErrConfigInvalid = errors.New("clustercore: invalid cluster configuration")

	// ErrDuplicateNode is a programmer error: adding a node name that is
	// already managed by an allocator.
	ErrDuplicateNode = errors.New("clustercore: duplicate node")

	// ErrDuplicateIndex is a programmer error: adding a slot index that is
	// already claimed by another managed node.
	ErrDuplicateIndex = errors.New("clustercore: duplicate slot index")

	// ErrIndexOutOfRange marks a slot index outside [0, max_working_nodes).
	ErrIndexOutOfRange = errors.New("clustercore: slot index out of range")

	// ErrNotConnected is returned by coordination-client operations issued
	// before the client has connected for the first time. After that,
	// operations on a lost session fail in the underlying etcd call.
	ErrNotConnected = errors.New("clustercore: coordination client not connected")

	// ErrDuplicateService is a programmer error: registering an
	// ExternalService name that is already registered.
	ErrDuplicateService = errors.New("clustercore: external service already registered")
)
