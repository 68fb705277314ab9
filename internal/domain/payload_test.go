package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayload_DeepCopy_Independence(t *testing.T) {
	original := Payload{
		"job1": map[string]any{
			"success": true,
			"nested":  map[string]any{"count": 1},
		},
		"list": []any{1, 2, map[string]any{"a": "b"}},
	}

	clone := original.DeepCopy()

	nested := clone["job1"].(map[string]any)["nested"].(map[string]any)
	nested["count"] = 999

	origNested := original["job1"].(map[string]any)["nested"].(map[string]any)
	assert.Equal(t, 1, origNested["count"], "mutating the clone must not affect the original")

	cloneList := clone["list"].([]any)
	cloneList[2].(map[string]any)["a"] = "changed"
	origList := original["list"].([]any)
	assert.Equal(t, "b", origList[2].(map[string]any)["a"])
}

func TestPayload_DeepCopy_ScalarsPassThrough(t *testing.T) {
	original := Payload{"count": 5, "name": "router1", "ok": true}
	clone := original.DeepCopy()
	assert.Equal(t, original, clone)
}
