package serialization_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/serialization"
)

func TestMarshalReplacesNonFiniteFloats(t *testing.T) {
	data, err := serialization.Marshal(map[string]interface{}{
		"score":   math.NaN(),
		"metrics": map[string]float64{"missing": math.Inf(1), "ok": 0.5},
		"values":  []interface{}{1.5, math.NaN()},
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"score":null,"metrics":{"missing":null,"ok":0.5},"values":[1.5,null]}`, string(data))
}

func TestUnmarshalUsesNumbers(t *testing.T) {
	var out []map[string]interface{}
	require.NoError(t, serialization.Unmarshal([]byte(`[{"id": 12345678901234567}]`), &out))

	require.Len(t, out, 1)
	assert.Equal(t, json.Number("12345678901234567"), out[0]["id"])
}

func TestUnmarshalEmptyInput(t *testing.T) {
	var out []map[string]interface{}
	assert.NoError(t, serialization.Unmarshal([]byte("  "), &out))
	assert.Nil(t, out)
}

func TestUnmarshalInvalidJSON(t *testing.T) {
	var out map[string]interface{}
	err := serialization.Unmarshal([]byte("{"), &out)

	require.Error(t, err)
	assert.True(t, exception.IsPipelineError(err))
}
