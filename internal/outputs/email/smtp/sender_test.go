package smtp

import (
	"errors"
	"testing"
)

func TestIsLocalDevSMTPHost(t *testing.T) {
	cases := []struct {
		host string
		want bool
	}{
		{"localhost", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"mailpit", true},
		{"smtp.example.com", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isLocalDevSMTPHost(tc.host); got != tc.want {
			t.Fatalf("isLocalDevSMTPHost(%q)=%v want %v", tc.host, got, tc.want)
		}
	}
}

func TestResolveTLSMode(t *testing.T) {
	cases := []struct {
		mode string
		port int
		want TLSMode
	}{
		{"", 465, TLSModeImplicit},
		{"auto", 587, TLSModeStartTLS},
		{"off", 1025, TLSModeDisabled},
		{"START_TLS", 25, TLSModeStartTLS},
		{"smtps", 0, ""},
	}
	for _, tc := range cases {
		got, err := resolveTLSMode(tc.mode, tc.port)
		if tc.want == "" {
			if err == nil {
				t.Fatalf("resolveTLSMode(%q) expected error", tc.mode)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("resolveTLSMode(%q, %d)=%q,%v want %q", tc.mode, tc.port, got, err, tc.want)
		}
	}
}

func TestNewSenderValidatesConfig(t *testing.T) {
	if _, err := NewSender(Config{Port: 25}); err == nil {
		t.Fatal("expected missing host error")
	}
	if _, err := NewSender(Config{Host: "mailpit"}); err == nil {
		t.Fatal("expected missing port error")
	}
	if _, err := NewSender(Config{Host: "mailpit", Port: 1025, TLSMode: "bogus"}); err == nil {
		t.Fatal("expected tls mode error")
	}
	sender, err := NewSender(Config{Host: " mailpit ", Port: 1025, TLSMode: "disabled"})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if sender.mode != TLSModeDisabled || sender.cfg.Host != "mailpit" || sender.cfg.Timeout != defaultTimeout {
		t.Fatalf("unexpected sender state %+v", sender)
	}
}

func TestIsAuthUnsupported(t *testing.T) {
	if isAuthUnsupported(nil) {
		t.Fatal("nil error should not be auth unsupported")
	}
	if !isAuthUnsupported(errors.New("dial: server does not support SMTP AUTH")) {
		t.Fatal("expected auth unsupported match")
	}
	if isAuthUnsupported(errors.New("connection refused")) {
		t.Fatal("unexpected match")
	}
}
