// Package serialization encodes stored records with a one-byte format prefix
// so the engine can switch between JSON and protobuf without migrating data.
package serialization

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/muaviaUsmani/hearth/internal/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Format represents the encoding used for a stored record
type Format byte

const (
	// FormatJSON stores the record as JSON
	FormatJSON Format = 0x00

	// FormatProtobuf stores the record as a google.protobuf.Struct
	FormatProtobuf Format = 0x01
)

var (
	// ErrUnknownFormat is returned when the record format cannot be determined
	ErrUnknownFormat = errors.New("unknown record format")

	// ErrMarshalFailed is returned when marshaling fails
	ErrMarshalFailed = errors.New("failed to marshal record")

	// ErrUnmarshalFailed is returned when unmarshaling fails
	ErrUnmarshalFailed = errors.New("failed to unmarshal record")
)

// String returns the configuration name of the format
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatProtobuf:
		return "protobuf"
	default:
		return fmt.Sprintf("format(0x%02X)", byte(f))
	}
}

// ParseFormat maps a configuration value (EVENT_CODEC) to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "protobuf", "proto":
		return FormatProtobuf, nil
	default:
		return FormatJSON, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Serializer writes records in its default format and reads any known format
type Serializer struct {
	// DefaultFormat is the format used when writing new records
	DefaultFormat Format
}

// NewSerializer creates a serializer with the specified default format
func NewSerializer(defaultFormat Format) *Serializer {
	return &Serializer{DefaultFormat: defaultFormat}
}

// NewJSONSerializer creates a serializer that writes JSON
func NewJSONSerializer() *Serializer {
	return NewSerializer(FormatJSON)
}

// NewProtobufSerializer creates a serializer that writes protobuf
func NewProtobufSerializer() *Serializer {
	return NewSerializer(FormatProtobuf)
}

// Marshal serializes v using the default format.
// The result carries the format prefix.
func (s *Serializer) Marshal(v interface{}) ([]byte, error) {
	return s.MarshalWithFormat(v, s.DefaultFormat)
}

// MarshalWithFormat serializes v using the given format.
//
// v is any JSON-marshalable value. For protobuf it is first converted to a
// structpb.Struct via its JSON form, so struct tags stay the single source of
// field names for both encodings.
func (s *Serializer) MarshalWithFormat(v interface{}, format Format) ([]byte, error) {
	var data []byte

	switch format {
	case FormatJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w (JSON): %v", ErrMarshalFailed, err)
		}
		data = b

	case FormatProtobuf:
		msg, err := toStruct(v)
		if err != nil {
			return nil, fmt.Errorf("%w (Protobuf): %v", ErrMarshalFailed, err)
		}
		b, err := proto.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("%w (Protobuf): %v", ErrMarshalFailed, err)
		}
		data = b

	default:
		return nil, fmt.Errorf("%w: format %d", ErrUnknownFormat, format)
	}

	result := make([]byte, len(data)+1)
	result[0] = byte(format)
	copy(result[1:], data)
	return result, nil
}

// Unmarshal deserializes data into v, detecting the format from the prefix.
// v must be a pointer.
func (s *Serializer) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty record", ErrUnmarshalFailed)
	}

	format, body, err := s.DetectFormat(data)
	if err != nil {
		return err
	}
	return s.UnmarshalWithFormat(body, v, format)
}

// UnmarshalWithFormat deserializes an unprefixed body in the given format
func (s *Serializer) UnmarshalWithFormat(data []byte, v interface{}, format Format) error {
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("%w (JSON): %v", ErrUnmarshalFailed, err)
		}
		return nil

	case FormatProtobuf:
		msg := &structpb.Struct{}
		if err := proto.Unmarshal(data, msg); err != nil {
			return fmt.Errorf("%w (Protobuf): %v", ErrUnmarshalFailed, err)
		}
		// back through JSON so v's own tags and types apply
		b, err := msg.MarshalJSON()
		if err != nil {
			return fmt.Errorf("%w (Protobuf): %v", ErrUnmarshalFailed, err)
		}
		if err := json.Unmarshal(b, v); err != nil {
			return fmt.Errorf("%w (Protobuf): %v", ErrUnmarshalFailed, err)
		}
		return nil

	default:
		return fmt.Errorf("%w: format %d", ErrUnknownFormat, format)
	}
}

// DetectFormat returns the format of a stored record and its body without the prefix.
// Unprefixed JSON objects and arrays are accepted for records written by hand.
func (s *Serializer) DetectFormat(data []byte) (Format, []byte, error) {
	if len(data) == 0 {
		return FormatJSON, nil, fmt.Errorf("%w: empty record", ErrUnknownFormat)
	}

	format := Format(data[0])
	switch format {
	case FormatJSON, FormatProtobuf:
		if len(data) < 2 {
			return format, nil, fmt.Errorf("%w: record too short", ErrUnmarshalFailed)
		}
		return format, data[1:], nil
	default:
		if data[0] == '{' || data[0] == '[' {
			return FormatJSON, data, nil
		}
		return FormatJSON, data, fmt.Errorf("%w: unknown format byte 0x%02X", ErrUnknownFormat, data[0])
	}
}

// GetFormat returns the format of a stored record
func (s *Serializer) GetFormat(data []byte) (Format, error) {
	format, _, err := s.DetectFormat(data)
	return format, err
}

// toStruct converts a JSON-marshalable value into a structpb.Struct
func toStruct(v interface{}) (*structpb.Struct, error) {
	if msg, ok := v.(*structpb.Struct); ok {
		return msg, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := &structpb.Struct{}
	if err := msg.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("value is not a JSON object: %v", err)
	}
	return msg, nil
}
