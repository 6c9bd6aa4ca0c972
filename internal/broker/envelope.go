package broker

import (
	"encoding/json"
	"strconv"
)

// UploadEvent is the normalized form of an "image uploaded" notification.
// Missing fields stay empty; decoding never fails.
type UploadEvent struct {
	ImageID   string
	ImageURL  string
	PatientID string
}

// DecodeUploadEvent parses the tolerant wire envelope. Producers differ: the
// bus wraps payloads in a nested "message" object and key casing varies
// between camelCase and PascalCase, so all variants are resolved here.
func DecodeUploadEvent(body []byte) UploadEvent {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return UploadEvent{}
	}

	for _, key := range []string{"message", "Message"} {
		if nested, ok := raw[key]; ok {
			var inner map[string]json.RawMessage
			if json.Unmarshal(nested, &inner) == nil && len(inner) > 0 {
				raw = inner
				break
			}
		}
	}

	return UploadEvent{
		ImageID:   pickString(raw, "imageId", "ImageId", "image_id"),
		ImageURL:  pickString(raw, "imageUrl", "ImageUrl", "image_url"),
		PatientID: pickString(raw, "patientId", "PatientId", "patient_id"),
	}
}

func pickString(raw map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			return s
		}
		var n float64
		if err := json.Unmarshal(value, &n); err == nil {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
	}
	return ""
}
