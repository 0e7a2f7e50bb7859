package helpers

import "encoding/json"

// DecodeLabels and EncodeLabels convert a Whale's unordered label set
// to and from the JSON array stored in its Labels text column.
func DecodeLabels(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	return out
}

func EncodeLabels(labels []string) string {
	if labels == nil {
		labels = []string{}
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return "[]"
	}
	return string(data)
}
