package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/fleet-simulator/internal/config"
	"github.com/signalsfoundry/fleet-simulator/internal/logging"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	return lis
}

func TestFleetSimStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := config.Default()
	cfg.Simulation.Accelerated = true
	cfg.Simulation.Duration = 30 * time.Second
	cfg.Simulation.Seed = 7

	lis := listeners{HTTP: listen(t), GRPC: listen(t), Metrics: listen(t)}
	httpURL := "http://" + lis.HTTP.Addr().String()
	metricsURL := "http://" + lis.Metrics.Addr().String()
	grpcAddr := lis.GRPC.Addr().String()

	log := logging.New(logging.Config{Level: "warn", Output: io.Discard})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis)
	}()

	var health struct {
		Status   string `json:"status"`
		Ticks    int    `json:"ticks"`
		Vehicles int    `json:"vehicles"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(httpURL + "/api/health")
		if err == nil {
			err = json.NewDecoder(resp.Body).Decode(&health)
			resp.Body.Close()
		}
		if err == nil && health.Ticks == 10 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("health never reached 10 ticks: %+v (last err %v)", health, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if health.Status != "ok" || health.Vehicles != 5 {
		t.Fatalf("health = %+v", health)
	}

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()
	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health Check: %v", err)
	}
	if hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("grpc health = %v, want SERVING", hc.GetStatus())
	}

	resp, err := http.Get(metricsURL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "fleet_sim_ticks_total 10") {
		t.Fatalf("metrics missing tick counter:\n%s", body)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestRunRejectsMissingScenario(t *testing.T) {
	cfg := config.Default()
	cfg.Server = config.ServerConfig{}
	cfg.Simulation.ScenarioPath = t.TempDir() + "/missing.yml"

	err := run(context.Background(), cfg, logging.Noop(), listeners{})
	if err == nil || !strings.Contains(err.Error(), "open scenario") {
		t.Fatalf("run error = %v, want open scenario failure", err)
	}
}

func TestRunClosesListenersWhenStartupFails(t *testing.T) {
	busy := listen(t)
	defer busy.Close()

	cfg := config.Default()
	cfg.Server = config.ServerConfig{MetricsAddr: busy.Addr().String()}
	lis := listeners{HTTP: listen(t)}
	httpAddr := lis.HTTP.Addr().String()

	err := run(context.Background(), cfg, logging.Noop(), lis)
	if err == nil || !strings.Contains(err.Error(), "listen metrics") {
		t.Fatalf("run error = %v, want listen metrics failure", err)
	}

	again, err := net.Listen("tcp", httpAddr)
	if err != nil {
		t.Fatalf("http listener still bound after failed startup: %v", err)
	}
	again.Close()

	cfg.Server = config.ServerConfig{}
	cfg.Simulation.ScenarioPath = t.TempDir() + "/missing.yml"
	lis = listeners{GRPC: listen(t)}
	grpcAddr := lis.GRPC.Addr().String()
	if err := run(context.Background(), cfg, logging.Noop(), lis); err == nil {
		t.Fatalf("run with missing scenario returned nil error")
	}
	again, err = net.Listen("tcp", grpcAddr)
	if err != nil {
		t.Fatalf("grpc listener still bound after scenario failure: %v", err)
	}
	again.Close()
}
