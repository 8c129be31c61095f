package audit

import "strings"

// UserAgentInfo is the coarse device classification stored on each attempt.
type UserAgentInfo struct {
	DeviceType *string
	Browser    *string
	OS         *string
}

// ParseUserAgent classifies a raw User-Agent header with substring
// heuristics. Good enough for audit dashboards; not a fingerprinting tool.
func ParseUserAgent(userAgent string) UserAgentInfo {
	ua := strings.ToLower(userAgent)
	return UserAgentInfo{
		DeviceType: strPtr(deviceType(ua)),
		Browser:    strPtr(browser(ua)),
		OS:         strPtr(operatingSystem(ua)),
	}
}

func deviceType(ua string) string {
	switch {
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "android"), strings.Contains(ua, "iphone"):
		return "Mobile"
	case strings.Contains(ua, "tablet"), strings.Contains(ua, "ipad"):
		return "Tablet"
	default:
		return "Desktop"
	}
}

func browser(ua string) string {
	switch {
	case strings.Contains(ua, "chrome") && !strings.Contains(ua, "edg"):
		return "Chrome"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	case strings.Contains(ua, "safari") && !strings.Contains(ua, "chrome"):
		return "Safari"
	case strings.Contains(ua, "edg"):
		return "Edge"
	case strings.Contains(ua, "opera"):
		return "Opera"
	default:
		return "Unknown"
	}
}

func operatingSystem(ua string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "mac") && !strings.Contains(ua, "iphone") && !strings.Contains(ua, "ipad"):
		return "macOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "linux"):
		return "Linux"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		return "iOS"
	default:
		return "Unknown"
	}
}

func strPtr(s string) *string { return &s }
