package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/liguopeng80/clustercore/internal/cluster/allocator"
	clusterclient "github.com/liguopeng80/clustercore/internal/cluster/client"
	"github.com/liguopeng80/clustercore/internal/cluster/config"
	"github.com/liguopeng80/clustercore/internal/coordclient"
	"github.com/liguopeng80/clustercore/internal/logging"
	"github.com/liguopeng80/clustercore/internal/runtime"
)

var routeKey string

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Resolve a routing key against the live working-member set and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		requireConfigPath()
		if routeKey == "" {
			fatal("--key is required")
		}
		return runRoute(cmd.Context())
	},
}

func init() {
	routeCmd.Flags().StringVar(&routeKey, "key", "", "routing key (integer for modulo mode, arbitrary string for hash-ring mode)")
}

func runRoute(ctx context.Context) error {
	level := "info"
	if verbose {
		level = "debug"
	}
	log := logging.New("clusterd-route", level)

	doc, err := os.ReadFile(configPath)
	if err != nil {
		fatal("read config: %v", err)
	}
	cfg, err := config.Parse(doc, "")
	if err != nil {
		fatal("parse config: %v", err)
	}
	if !cfg.ClusterEnabled {
		fatal("service.cluster.cluster_enabled is false; nothing to route against")
	}

	loop := runtime.NewLoop(64)
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go loop.Run(loopCtx)
	defer func() {
		loop.Stop()
		loop.Wait()
	}()

	connected := make(chan struct{})
	client := coordclient.New(coordclient.Config{Endpoints: splitHosts(cfg.Hosts)}, loop, coordclient.Observer{
		OnConnectionOpened: func() {
			select {
			case <-connected:
			default:
				close(connected)
			}
		},
	}, log)
	client.Start()
	defer client.Stop()

	select {
	case <-connected:
	case <-time.After(10 * time.Second):
		fatal("timed out waiting for coordination service")
	}

	var nodeSet allocator.NodeSet
	switch cfg.WorkingMode {
	case config.HashRing:
		nodeSet = allocator.NewHashRing()
	default:
		nodeSet = allocator.NewModulo(cfg.MaxWorkingNodes)
	}

	role := clusterclient.New(cfg, client, nodeSet, clusterclient.Hooks{}, log)
	if err := role.Start(ctx); err != nil {
		fatal("start routing sync: %v", err)
	}

	// Give the initial children/data watches a moment to settle before
	// resolving the key — there is no synchronous "fully synced" signal
	// since watch fires are inherently asynchronous.
	time.Sleep(500 * time.Millisecond)

	var result string
	switch m := nodeSet.(type) {
	case *allocator.Modulo:
		key, err := strconv.Atoi(routeKey)
		if err != nil {
			fatal("--key must be an integer in modulo mode: %v", err)
		}
		result = m.Get(key)
	case *allocator.HashRing:
		result = m.Get(routeKey)
	}

	if result == "" {
		warnColor.Println("no member available for key")
		os.Exit(1)
	}
	fmt.Println(result)
	return nil
}
