package status

import (
	"encoding/json"
	"testing"
)

func TestClusterSnapshotJSON(t *testing.T) {
	snap := ClusterSnapshot{
		ServiceName:     "svcA",
		WorkingMode:     "modulo",
		MaxWorkingNodes: 3,
		Nodes: []NodeSlot{
			{Name: "node-a", Slot: 0},
			{Name: "node-b", Slot: -1},
		},
	}

	out, err := snap.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	// Decode with the standard library to confirm the goccy encoder
	// produced a shape any JSON consumer can read back, without pulling
	// goccy in just to round-trip its own output.
	var decoded ClusterSnapshot
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decoding snapshot JSON: %v", err)
	}

	if decoded.ServiceName != snap.ServiceName {
		t.Errorf("ServiceName = %q, want %q", decoded.ServiceName, snap.ServiceName)
	}
	if len(decoded.Nodes) != 2 || decoded.Nodes[1].Slot != -1 {
		t.Errorf("Nodes round-tripped incorrectly: %+v", decoded.Nodes)
	}
}
