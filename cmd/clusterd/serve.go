package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liguopeng80/clustercore/internal/cluster/config"
	"github.com/liguopeng80/clustercore/internal/cluster/server"
	"github.com/liguopeng80/clustercore/internal/clustererr"
	"github.com/liguopeng80/clustercore/internal/coordclient"
	"github.com/liguopeng80/clustercore/internal/logging"
	"github.com/liguopeng80/clustercore/internal/runtime"
	"github.com/liguopeng80/clustercore/internal/service"
	"github.com/liguopeng80/clustercore/internal/status"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a server-role process: join the working cluster and hold its claimed slot",
	RunE: func(cmd *cobra.Command, args []string) error {
		requireConfigPath()
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	level := "info"
	if verbose {
		level = "debug"
	}
	log := logging.New("clusterd", level)

	doc, err := os.ReadFile(configPath)
	if err != nil {
		fatal("read config: %v", err)
	}

	cfg, err := config.Parse(doc, "")
	if err != nil {
		fatal("parse config: %v", err)
	}
	if !cfg.ClusterEnabled {
		fatal("service.cluster.cluster_enabled is false; nothing to serve")
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	fullName := config.FullServerName(hostname, cfg.ServiceName, "")
	clusterID := config.NewClusterID(fullName)
	log.Infof("starting as %s", clusterID)

	loop := runtime.NewLoop(256)
	loopCtx, cancelLoop := context.WithCancel(ctx)
	go loop.Run(loopCtx)

	registry := service.NewRegistry()
	coordSvc := service.New("coordination", service.Crucial)
	if !registry.Register(coordSvc) {
		fatal("%v: coordination", clustererr.ErrDuplicateService)
	}

	controller := status.NewController(registry, status.Hooks{
		Init: func() error { return nil },
		OnStatusChanged: func(s status.State) {
			log.Infof("status -> %s", s)
		},
	}, log)
	go controller.Run(loopCtx.Done())

	var role *server.Role
	joined := false

	client := coordclient.New(coordclient.Config{Endpoints: splitHosts(cfg.Hosts)}, loop, coordclient.Observer{
		OnConnectionOpened: func() {
			coordSvc.Enable()
			if joined {
				return
			}
			joined = true
			role = server.New(cfg, clusterID, client, loop, server.Hooks{
				OnReady: func(slot int) {
					successColor.Printf("cluster ready: slot=%d\n", slot)
					log.Infof("claimed slot %d", slot)
				},
				OnLost: func() {
					warnColor.Println("cluster membership lost, rejoining on reconnect")
				},
			}, log)
			if err := role.Start(context.Background()); err != nil {
				log.Errorf("join protocol start failed: %v", err)
			}
		},
		OnConnectionLost: func() {
			coordSvc.Disable(&service.Issue{Name: "coordination", Desc: "session lost"})
			if role != nil {
				role.OnSessionLost()
			}
			joined = false
		},
		OnConnectionSuspended: func() {
			coordSvc.Disable(&service.Issue{Name: "coordination", Desc: "session suspended"})
			if role != nil {
				role.OnSessionLost()
			}
		},
		OnConnectionFailed: func() {
			coordSvc.Disable(&service.Issue{Name: "coordination", Desc: "connect failed"})
			if role != nil {
				role.OnSessionLost()
			}
		},
	}, log)

	controller.Submit(status.EventActive)
	client.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	infoColor.Println("shutting down")
	client.Stop()
	cancelLoop()
	loop.Stop()
	loop.Wait()
	return nil
}

func splitHosts(hosts string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(hosts); i++ {
		if i == len(hosts) || hosts[i] == ',' {
			if i > start {
				out = append(out, hosts[start:i])
			}
			start = i + 1
		}
	}
	if len(out) == 0 {
		out = []string{"127.0.0.1:2379"}
	}
	return out
}
