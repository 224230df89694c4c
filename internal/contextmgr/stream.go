package contextmgr

import "strings"

// ParsePartialStream splits raw stream-mirror text on delim.
//
// Every segment except the last is a completed segment (blank ones are
// dropped). The last segment is the trailing partial: text that was still
// being generated when the stream stopped. With fewer than two segments the
// whole input is the trailing partial and nothing is completed.
func ParsePartialStream(raw, delim string) (completed []string, partial string) {
	if delim == "" {
		return nil, raw
	}
	parts := strings.Split(raw, delim)
	if len(parts) < 2 {
		return nil, raw
	}
	for _, p := range parts[:len(parts)-1] {
		if strings.TrimSpace(p) != "" {
			completed = append(completed, p)
		}
	}
	return completed, parts[len(parts)-1]
}
