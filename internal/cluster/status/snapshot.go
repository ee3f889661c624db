// Package status builds point-in-time observability snapshots of a
// cluster's working set: which candidates are active and which slot each
// one holds. It is read-only and side-effect free — it never mutates
// coordination-service state, only reads it back for reporting.
package status

import (
	"context"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/liguopeng80/clustercore/internal/cluster/config"
	"github.com/liguopeng80/clustercore/internal/coordclient"
)

// NodeSlot describes one active working candidate and the slot it has
// published, or -1 if it has not published one yet (or its data was
// unparsable).
type NodeSlot struct {
	Name string `json:"name"`
	Slot int    `json:"slot"`
}

// ClusterSnapshot is a JSON-encodable view of a working set at the
// moment Build ran.
type ClusterSnapshot struct {
	ServiceName     string     `json:"service_name"`
	WorkingMode     string     `json:"working_mode"`
	MaxWorkingNodes int        `json:"max_working_nodes"`
	Nodes           []NodeSlot `json:"nodes"`
}

// Build reads the current working-set children and their published slot
// data directly from the coordination service and assembles a snapshot.
// It applies the same max_working_nodes truncation the join protocol and
// routing-table maintenance both apply, so the reported set matches what
// a live client role would actually route against.
func Build(ctx context.Context, cfg *config.ClusterConfig, client *coordclient.Client) (ClusterSnapshot, error) {
	children, err := client.Children(ctx, cfg.WorkingRoot)
	if err != nil {
		return ClusterSnapshot{}, err
	}
	if len(children) > cfg.MaxWorkingNodes {
		children = children[:cfg.MaxWorkingNodes]
	}

	snap := ClusterSnapshot{
		ServiceName:     cfg.ServiceName,
		WorkingMode:     string(cfg.WorkingMode),
		MaxWorkingNodes: cfg.MaxWorkingNodes,
		Nodes:           make([]NodeSlot, 0, len(children)),
	}

	for _, child := range children {
		slot := -1
		if data, exists, err := client.Get(ctx, cfg.WorkingRoot+"/"+child); err == nil && exists {
			if v, perr := strconv.Atoi(string(data)); perr == nil {
				slot = v
			}
		}
		snap.Nodes = append(snap.Nodes, NodeSlot{Name: coordclient.NamePart(child), Slot: slot})
	}

	return snap, nil
}

// JSON renders the snapshot as indented JSON, using the ecosystem's
// faster drop-in encoder rather than encoding/json.
func (s ClusterSnapshot) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
