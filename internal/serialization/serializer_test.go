package serialization

import (
	"errors"
	"strings"
	"testing"
)

type record struct {
	ID        string                 `json:"eventId"`
	Recurring bool                   `json:"isRecurring"`
	Payload   map[string]interface{} `json:"payload"`
	LastRun   string                 `json:"lastRunAtIso,omitempty"`
}

func sampleRecord() record {
	return record{
		ID:        "evt_1704110400000_cmb2b3k8a1qg00d5tq3g",
		Recurring: true,
		Payload: map[string]interface{}{
			"widget": "weather",
			"tags":   []interface{}{"a", "b"},
			"nested": map[string]interface{}{"enabled": true},
		},
	}
}

func TestSerializer_Marshal_JSON(t *testing.T) {
	s := NewJSONSerializer()

	bytes, err := s.Marshal(sampleRecord())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if bytes[0] != byte(FormatJSON) {
		t.Errorf("Expected JSON format prefix, got %d", bytes[0])
	}
	if !strings.Contains(string(bytes[1:]), `"eventId":"evt_1704110400000_cmb2b3k8a1qg00d5tq3g"`) {
		t.Errorf("JSON content not found in serialized data: %s", bytes[1:])
	}
}

func TestSerializer_Marshal_Protobuf(t *testing.T) {
	s := NewProtobufSerializer()

	bytes, err := s.Marshal(sampleRecord())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if bytes[0] != byte(FormatProtobuf) {
		t.Errorf("Expected Protobuf format prefix, got %d", bytes[0])
	}
	if strings.Contains(string(bytes[1:]), `"eventId"`) {
		t.Error("Protobuf body should not be JSON")
	}
}

func TestSerializer_RoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatProtobuf} {
		t.Run(format.String(), func(t *testing.T) {
			s := NewSerializer(format)
			original := sampleRecord()

			bytes, err := s.Marshal(original)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}

			var decoded record
			if err := s.Unmarshal(bytes, &decoded); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}

			if decoded.ID != original.ID {
				t.Errorf("ID mismatch: got %s, want %s", decoded.ID, original.ID)
			}
			if !decoded.Recurring {
				t.Error("Recurring flag lost")
			}
			if decoded.LastRun != "" {
				t.Errorf("Expected empty LastRun, got %q", decoded.LastRun)
			}
			if decoded.Payload["widget"] != "weather" {
				t.Errorf("Payload mismatch: got %v", decoded.Payload)
			}
			nested, ok := decoded.Payload["nested"].(map[string]interface{})
			if !ok || nested["enabled"] != true {
				t.Errorf("Nested payload mismatch: got %v", decoded.Payload["nested"])
			}
		})
	}
}

func TestSerializer_ReadsEitherFormat(t *testing.T) {
	// a JSON-default serializer must still read protobuf records and vice versa
	protoBytes, err := NewProtobufSerializer().Marshal(sampleRecord())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded record
	if err := NewJSONSerializer().Unmarshal(protoBytes, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.ID != sampleRecord().ID {
		t.Errorf("ID mismatch: got %s", decoded.ID)
	}
}

func TestSerializer_UnprefixedJSON(t *testing.T) {
	s := NewJSONSerializer()

	var decoded record
	if err := s.Unmarshal([]byte(`{"eventId":"evt_1_abc","isRecurring":false}`), &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.ID != "evt_1_abc" || decoded.Recurring {
		t.Errorf("Decoded mismatch: got %+v", decoded)
	}
}

func TestSerializer_DetectFormat(t *testing.T) {
	s := NewJSONSerializer()

	tests := []struct {
		name    string
		data    []byte
		want    Format
		wantErr bool
	}{
		{"json prefix", []byte{0x00, '{', '}'}, FormatJSON, false},
		{"protobuf prefix", []byte{0x01, 0x0a}, FormatProtobuf, false},
		{"legacy object", []byte(`{"a":1}`), FormatJSON, false},
		{"legacy array", []byte(`[1]`), FormatJSON, false},
		{"prefix only", []byte{0x01}, FormatProtobuf, true},
		{"unknown byte", []byte{0x7f, 0x00}, FormatJSON, true},
		{"empty", nil, FormatJSON, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetFormat(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Error mismatch: got %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Format mismatch: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSerializer_ErrorCases(t *testing.T) {
	s := NewJSONSerializer()

	if _, err := s.MarshalWithFormat(sampleRecord(), Format(0x09)); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Expected ErrUnknownFormat, got %v", err)
	}
	if _, err := s.MarshalWithFormat(make(chan int), FormatJSON); !errors.Is(err, ErrMarshalFailed) {
		t.Errorf("Expected ErrMarshalFailed for JSON, got %v", err)
	}
	if _, err := s.MarshalWithFormat([]int{1, 2}, FormatProtobuf); !errors.Is(err, ErrMarshalFailed) {
		t.Errorf("Expected ErrMarshalFailed for non-object protobuf, got %v", err)
	}

	var r record
	if err := s.Unmarshal(nil, &r); !errors.Is(err, ErrUnmarshalFailed) {
		t.Errorf("Expected ErrUnmarshalFailed for empty record, got %v", err)
	}
	if err := s.Unmarshal([]byte{0x00, 'x'}, &r); !errors.Is(err, ErrUnmarshalFailed) {
		t.Errorf("Expected ErrUnmarshalFailed for bad JSON, got %v", err)
	}
	if err := s.Unmarshal([]byte{0x01, 0xff, 0xff}, &r); !errors.Is(err, ErrUnmarshalFailed) {
		t.Errorf("Expected ErrUnmarshalFailed for bad protobuf, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{" Protobuf ", FormatProtobuf, false},
		{"proto", FormatProtobuf, false},
		{"msgpack", FormatJSON, true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error mismatch: got %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) mismatch: got %v, want %v", tt.in, got, tt.want)
		}
	}
}
