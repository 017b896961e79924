package main

import (
	"net"
	"testing"
	"time"
)

func TestParseTCPKeepAlive(t *testing.T) {
	tests := []struct {
		in      string
		want    net.KeepAliveConfig
		wantErr bool
	}{
		{in: "on", want: net.KeepAliveConfig{Enable: true}},
		{in: " OFF ", want: net.KeepAliveConfig{Enable: false}},
		{in: "45:15:3", want: net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 15 * time.Second, Count: 3}},
		{in: "", wantErr: true},
		{in: "45:15", wantErr: true},
		{in: "0:15:3", wantErr: true},
		{in: "45:x:3", wantErr: true},
		{in: "45:15:-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTCPKeepAlive(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDefaultUpstream(t *testing.T) {
	t.Setenv("ALL_PROXY", "")
	t.Setenv("all_proxy", "")
	if got := defaultUpstream(); got != "direct://" {
		t.Fatalf("got %q", got)
	}

	t.Setenv("all_proxy", "socks5://127.0.0.1:1081")
	if got := defaultUpstream(); got != "socks5://127.0.0.1:1081" {
		t.Fatalf("got %q", got)
	}
}
