package audit_test

import (
	"testing"

	"github.com/keyward-io/keyward/pkg/iam/audit"
)

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name    string
		ua      string
		device  string
		browser string
		os      string
	}{
		{
			name:    "chrome on windows desktop",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			device:  "Desktop",
			browser: "Chrome",
			os:      "Windows",
		},
		{
			name:    "safari on iphone",
			ua:      "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Mobile/15E148 Safari/604.1",
			device:  "Mobile",
			browser: "Safari",
			os:      "iOS",
		},
		{
			name:    "chrome on android",
			ua:      "Mozilla/5.0 (Linux; Android 11; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36",
			device:  "Mobile",
			browser: "Chrome",
			os:      "Android",
		},
		{
			name:    "edge on windows",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
			device:  "Desktop",
			browser: "Edge",
			os:      "Windows",
		},
		{
			name:    "safari on ipad",
			ua:      "Mozilla/5.0 (iPad; CPU OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Safari/604.1",
			device:  "Tablet",
			browser: "Safari",
			os:      "iOS",
		},
		{
			name:    "unrecognized agent",
			ua:      "curl/8.4.0",
			device:  "Desktop",
			browser: "Unknown",
			os:      "Unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := audit.ParseUserAgent(tt.ua)
			if got := *info.DeviceType; got != tt.device {
				t.Errorf("device: got %q want %q", got, tt.device)
			}
			if got := *info.Browser; got != tt.browser {
				t.Errorf("browser: got %q want %q", got, tt.browser)
			}
			if got := *info.OS; got != tt.os {
				t.Errorf("os: got %q want %q", got, tt.os)
			}
		})
	}
}

func TestNewAttemptFillsDeviceFields(t *testing.T) {
	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0"
	a := audit.NewAttempt("t1", "a@example.com", audit.FlowPassword, nil, &ua)

	if a.DeviceType == nil || *a.DeviceType != "Desktop" {
		t.Fatalf("device not parsed: %+v", a.DeviceType)
	}
	if a.ID == "" || a.CreatedAt.IsZero() {
		t.Fatal("attempt missing id or timestamp")
	}
}

func TestMarkSuccessClearsFailure(t *testing.T) {
	a := audit.NewAttempt("t1", "a@example.com", audit.FlowPassword, nil, nil)
	a.MarkFailure(audit.ReasonWrongPassword)
	a.MarkSuccess("p1", true, true)

	if !a.Success || a.FailureReason != nil {
		t.Fatalf("expected clean success, got %+v", a)
	}
	if a.PrincipalID == nil || a.PrincipalID.String() != "p1" {
		t.Fatal("principal not recorded")
	}
}
