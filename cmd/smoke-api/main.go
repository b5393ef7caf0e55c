package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"sentinel.org/internal/rpcclient"
)

func main() {
	addr := os.Getenv("SENTINEL_GRPC_ADDR")
	if addr == "" {
		addr = "localhost:9090"
	}
	username := os.Getenv("SENTINEL_SMOKE_USER")
	if username == "" {
		username = "Admin"
	}
	password := os.Getenv("SENTINEL_SMOKE_PASSWORD")
	if password == "" {
		log.Fatal("SENTINEL_SMOKE_PASSWORD is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	client, err := rpcclient.Dial(ctx, addr)
	cancel()
	if err != nil {
		log.Fatalf("dial api at %s: %v", addr, err)
	}
	defer client.Close()

	ctxOp, cancelOp := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelOp()

	version, err := client.Version(ctxOp)
	if err != nil {
		log.Fatalf("apiinfo.version: %v", err)
	}

	if err := client.Call(ctxOp, "host.get", nil, nil); !errors.Is(err, rpcclient.ErrNotAuthorized) {
		log.Fatalf("host.get without auth: expected not authorized, got %v", err)
	}

	authed, sid, err := client.Login(ctxOp, username, password)
	if err != nil {
		log.Fatalf("user.login: %v", err)
	}

	hostName := fmt.Sprintf("smoke-%d", time.Now().UnixNano())
	var created struct {
		HostIDs []string `json:"hostids"`
	}
	if err := authed.Call(ctxOp, "host.create", map[string]any{"host": hostName}, &created); err != nil {
		log.Fatalf("host.create: %v", err)
	}
	if len(created.HostIDs) != 1 {
		log.Fatalf("host.create: unexpected result %+v", created)
	}

	var hosts []struct {
		HostID string `json:"hostid"`
		Host   string `json:"host"`
	}
	if err := authed.Call(ctxOp, "host.get", map[string]any{"hostids": created.HostIDs}, &hosts); err != nil {
		log.Fatalf("host.get: %v", err)
	}
	if len(hosts) != 1 || hosts[0].Host != hostName {
		log.Fatalf("host.get: unexpected result %+v", hosts)
	}

	if err := authed.Call(ctxOp, "host.delete", created.HostIDs, nil); err != nil {
		log.Fatalf("host.delete: %v", err)
	}
	if err := authed.Call(ctxOp, "user.logout", []any{}, nil); err != nil {
		log.Fatalf("user.logout: %v", err)
	}
	if err := authed.Call(ctxOp, "host.get", nil, nil); !errors.Is(err, rpcclient.ErrNotAuthorized) {
		log.Fatalf("host.get after logout: expected not authorized, got %v", err)
	}

	fmt.Printf("✅ api smoke test passed: version=%s session=%s…\n", version, sid[:8])
}
