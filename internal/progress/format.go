package progress

import (
	"fmt"
	"strings"
	"time"
)

// FormatBytes renders b with a binary unit suffix
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// FormatRate renders a transfer rate; zero means unknown
func FormatRate(bytesPerSecond int64) string {
	if bytesPerSecond <= 0 {
		return "--- B/s"
	}
	return FormatBytes(bytesPerSecond) + "/s"
}

// FormatETA estimates the remaining time of a transfer
func FormatETA(e Event) string {
	if e.BytesPerSecond <= 0 || e.TotalBytes <= 0 || e.BytesReceived >= e.TotalBytes {
		return "--:--"
	}
	remaining := time.Duration((e.TotalBytes-e.BytesReceived)/e.BytesPerSecond) * time.Second
	h := int(remaining.Hours())
	m := int(remaining.Minutes()) % 60
	s := int(remaining.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Status renders a one-line description of e
func Status(e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s", e.Ordinal, e.State)

	switch {
	case e.State.IsActive() && e.TotalBytes > 0:
		fmt.Fprintf(&b, " %5.1f%% %s/%s %s eta %s", e.Fraction*100,
			FormatBytes(e.BytesReceived), FormatBytes(e.TotalBytes),
			FormatRate(e.BytesPerSecond), FormatETA(e))
	case e.State.IsActive() && e.BytesReceived > 0:
		fmt.Fprintf(&b, " %s %s", FormatBytes(e.BytesReceived), FormatRate(e.BytesPerSecond))
	case e.TotalBytes > 0 && e.State.IsFinished():
		fmt.Fprintf(&b, " %s", FormatBytes(e.TotalBytes))
	}

	if e.Attempt > 0 {
		fmt.Fprintf(&b, " (attempt %d)", e.Attempt)
	}
	if e.Err != "" {
		fmt.Fprintf(&b, ": %s", e.Err)
	}
	return b.String()
}
