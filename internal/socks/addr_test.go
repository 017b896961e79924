package socks

import (
	"errors"
	"testing"
)

func TestDecodeAddr(t *testing.T) {
	tests := []struct {
		name    string
		b       []byte
		off     int
		want    Destination
		wantN   int
		wantErr error
	}{
		{
			name:  "ipv4",
			b:     []byte{0x05, 0x01, 0x00, 0x01, 0x7f, 0x00, 0x00, 0x01, 0x00, 0x50},
			off:   3,
			want:  Destination{Kind: AddrIPv4, Host: "127.0.0.1", Port: 80},
			wantN: 7,
		},
		{
			name:  "domain",
			b:     []byte{0x03, 0x03, 'a', '.', 'b', 0x01, 0xbb},
			want:  Destination{Kind: AddrDomain, Host: "a.b", Port: 443},
			wantN: 7,
		},
		{
			name:  "ipv6",
			b:     []byte{0x04, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0x00, 0x35},
			want:  Destination{Kind: AddrIPv6, Host: "::1", Port: 53},
			wantN: 19,
		},
		{
			name:    "unknown_type",
			b:       []byte{0x02, 0x7f, 0x00, 0x00, 0x01, 0x00, 0x50},
			wantErr: ErrAddressType,
		},
		{
			name:    "truncated_ipv4",
			b:       []byte{0x01, 0x7f, 0x00, 0x00, 0x01, 0x00},
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "truncated_domain",
			b:       []byte{0x03, 0x0a, 'a', 'b', 0x00, 0x50},
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "offset_past_end",
			b:       []byte{0x05, 0x01, 0x00},
			off:     3,
			wantErr: ErrMalformedFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := DecodeAddr(tt.b, tt.off)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want || n != tt.wantN {
				t.Fatalf("got %+v, %d; want %+v, %d", got, n, tt.want, tt.wantN)
			}
		})
	}
}

func TestAppendAddrEchoesRequest(t *testing.T) {
	req := []byte{0x05, 0x01, 0x00, 0x01, 0xc0, 0x00, 0x02, 0x0a, 0x23, 0x28}
	d, _, err := DecodeAddr(req, 3)
	if err != nil {
		t.Fatal(err)
	}

	b, err := AppendAddr([]byte{0x05, 0x01, 0x00}, d)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != string(req) {
		t.Fatalf("re-encoded % x, want % x", b, req)
	}

	reply := socks5SuccessReply(req)
	if len(reply) != len(req) || string(reply[3:]) != string(req[3:]) {
		t.Fatalf("reply % x does not echo % x", reply, req)
	}
	if reply[0] != 0x05 || reply[1] != 0x00 || reply[2] != 0x00 {
		t.Fatalf("reply header % x", reply[:3])
	}
}

func TestAppendAddrErrors(t *testing.T) {
	tests := []struct {
		name string
		d    Destination
	}{
		{name: "ipv6_as_ipv4", d: Destination{Kind: AddrIPv4, Host: "::1"}},
		{name: "not_an_ip", d: Destination{Kind: AddrIPv6, Host: "example.com"}},
		{name: "long_domain", d: Destination{Kind: AddrDomain, Host: string(make([]byte, 256))}},
		{name: "unknown_kind", d: Destination{Kind: 0x09, Host: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := AppendAddr(nil, tt.d); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSOCKS4Reply(t *testing.T) {
	got := socks4Reply(socks4Granted, 8080, [4]byte{10, 0, 0, 7})
	want := []byte{0x00, 0x5a, 0x1f, 0x90, 0x0a, 0x00, 0x00, 0x07}
	if string(got) != string(want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}
