// Package serialization provides JSON helpers for the report artifacts and JSON table IO.
package serialization

import (
	"bytes"
	"encoding/json"
	"io"
	"math"

	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

const module = "serialization"

// MarshalIndent serializes v as indented JSON. NaN and ±Inf floats inside maps and
// slices are written as null, since encoding/json rejects them.
func MarshalIndent(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(sanitize(v), "", "  ")
	if err != nil {
		logger.Errorf("Failed to serialize value to JSON: %v", err)
		return nil, exception.NewPipelineError(module, "failed to serialize value", err)
	}
	return data, nil
}

// Marshal serializes v as compact JSON with the same float handling as MarshalIndent.
func Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(sanitize(v))
	if err != nil {
		logger.Errorf("Failed to serialize value to JSON: %v", err)
		return nil, exception.NewPipelineError(module, "failed to serialize value", err)
	}
	return data, nil
}

// Unmarshal deserializes JSON into v, decoding numbers as json.Number so integers keep their precision.
func Unmarshal(data []byte, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		logger.Debugf("Empty JSON input. Nothing to deserialize.")
		return nil
	}
	return Decode(bytes.NewReader(data), v)
}

// Decode reads one JSON value from r into v using json.Number for numbers.
func Decode(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		logger.Errorf("Failed to deserialize JSON: %v", err)
		return exception.NewPipelineError(module, "failed to deserialize JSON", err)
	}
	return nil
}

// sanitize replaces non-finite floats in generic containers with nil.
func sanitize(v interface{}) interface{} {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return val
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = sanitize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sanitize(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sanitize(item)
		}
		return out
	case map[string]float64:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = sanitize(item)
		}
		return out
	default:
		return v
	}
}
