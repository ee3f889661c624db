package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/liguopeng80/clustercore/internal/cluster/config"
	clusterstatus "github.com/liguopeng80/clustercore/internal/cluster/status"
	"github.com/liguopeng80/clustercore/internal/coordclient"
	"github.com/liguopeng80/clustercore/internal/logging"
	"github.com/liguopeng80/clustercore/internal/runtime"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a JSON snapshot of the current working set and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		requireConfigPath()
		return runStatus(cmd.Context())
	},
}

func runStatus(ctx context.Context) error {
	level := "info"
	if verbose {
		level = "debug"
	}
	log := logging.New("clusterd-status", level)

	doc, err := os.ReadFile(configPath)
	if err != nil {
		fatal("read config: %v", err)
	}
	cfg, err := config.Parse(doc, "")
	if err != nil {
		fatal("parse config: %v", err)
	}
	if !cfg.ClusterEnabled {
		fatal("service.cluster.cluster_enabled is false; nothing to report on")
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

	snap, err := clusterstatus.Build(ctx, cfg, client)
	if err != nil {
		fatal("build snapshot: %v", err)
	}

	out, err := snap.JSON()
	if err != nil {
		fatal("encode snapshot: %v", err)
	}
	fmt.Println(string(out))
	return nil
}
