package helpers

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeLabelsRoundTrip(t *testing.T) {
	labels := []string{"market_maker", "exchange_hot_wallet"}
	encoded := EncodeLabels(labels)
	decoded := DecodeLabels(encoded)
	if !reflect.DeepEqual(decoded, labels) {
		t.Errorf("DecodeLabels(EncodeLabels(%v)) = %v", labels, decoded)
	}
}

func TestDecodeLabelsEmptyAndMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty string", "", []string{}},
		{"malformed json", "{not json", []string{}},
		{"empty array", "[]", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeLabels(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeLabels(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestEncodeLabelsNilBecomesEmptyArray(t *testing.T) {
	if got := EncodeLabels(nil); got != "[]" {
		t.Errorf("EncodeLabels(nil) = %q, want \"[]\"", got)
	}
}
