package serialmux

import "strings"

const (
	EventTypeScan      = "scan"
	EventTypeMap       = "map"
	EventTypeTransform = "tf"
	EventTypeUnknown   = "unknown"
)

// ClassifyPayload returns the envelope type of a line without decoding it.
// Only the leading bytes are inspected, so multi-megabyte map lines stay
// cheap to tag for the live tail.
func ClassifyPayload(payload string) string {
	head := payload
	if len(head) > 64 {
		head = head[:64]
	}
	head = strings.ReplaceAll(head, " ", "")
	switch {
	case !strings.HasPrefix(head, "{"):
		return EventTypeUnknown
	case strings.Contains(head, `"type":"scan"`):
		return EventTypeScan
	case strings.Contains(head, `"type":"map"`):
		return EventTypeMap
	case strings.Contains(head, `"type":"tf"`):
		return EventTypeTransform
	}
	return EventTypeUnknown
}
