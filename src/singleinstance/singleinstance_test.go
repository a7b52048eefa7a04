package singleinstance

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestServerClientRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := NewServer()
	if err := srv.Start(ctx); err != nil {
		t.Skipf("loopback port unavailable in this environment: %v", err)
	}
	defer srv.Close()

	// client delegates a capture
	client := NewClient()
	delegatedCh := make(chan struct{})
	go func() {
		defer close(delegatedCh)
		delegated, text, err := client.Delegate(ctx, "capture")
		if err != nil {
			t.Errorf("client: %v", err)
		}
		if !delegated {
			t.Errorf("expected delegation")
		}
		if text != "Saved" {
			t.Errorf("expected status text, got %q", text)
		}
	}()

	// server accept and respond
	conn, err := srv.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got := conn.Request().Command; got != CommandCapture {
		t.Errorf("expected %s, got %q", CommandCapture, got)
	}
	if err := conn.RespondSuccess("Saved"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	_ = conn.Close()
	<-delegatedCh
}

func TestServerRejectsUnknownCommand(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := NewServer()
	if err := srv.Start(ctx); err != nil {
		t.Skipf("loopback port unavailable in this environment: %v", err)
	}
	defer srv.Close()

	delegated, _, err := NewClient().Delegate(ctx, "format-disk")
	if !delegated {
		t.Fatal("expected resident to answer")
	}
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestNextAfterClose(t *testing.T) {
	srv := NewServer()
	_ = srv.Close()
	if _, err := srv.Next(context.Background()); err == nil {
		t.Fatal("expected error from closed server")
	}
}

func TestPortRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		wantStart  int
		wantEnd    int
	}{
		{"defaults", "", "", defaultPortStart, defaultPortEnd},
		{"custom", "50000", "50010", 50000, 50010},
		{"clamped", "80", "70000", minPort, maxPort},
		{"swapped", "50010", "50000", 50000, 50010},
		{"garbage", "abc", "", defaultPortStart, defaultPortEnd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(PortStartEnvVar, tt.start)
			t.Setenv(PortEndEnvVar, tt.end)
			start, end := PortRange()
			if start != tt.wantStart || end != tt.wantEnd {
				t.Fatalf("got %d-%d, want %d-%d", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestDetectResidentPort(t *testing.T) {
	t.Setenv(PortStartEnvVar, "49580")
	t.Setenv(PortEndEnvVar, "49581")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, ok := DetectResidentPort(ctx); ok {
		t.Skip("something already answers on the test port range")
	}

	srv := NewServer()
	if err := srv.Start(ctx); err != nil {
		t.Skipf("loopback port unavailable in this environment: %v", err)
	}
	defer srv.Close()

	port, ok := DetectResidentPort(ctx)
	if !ok || port != 49580 {
		t.Fatalf("expected resident on 49580, got %d (%v)", port, ok)
	}
}
