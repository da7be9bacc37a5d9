// Package cache memoizes generation results under a content fingerprint.
//
// A Store maps fingerprints to results. Index keeps them in a JSON file; the
// sqlite and redis subpackages provide shared stores for multi-process
// deployments. Cache wraps any Store and turns stale entries into misses.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ComputeKey fingerprints a primary input and its parameters. Parameters are
// serialized with sorted keys, so equal maps always yield the same key.
// Parameter values should be strings, integers or booleans.
func ComputeKey(primaryInput string, params map[string]any) string {
	h := sha256.New()
	h.Write([]byte(primaryInput))
	h.Write([]byte{0})
	data, err := json.Marshal(params)
	if err != nil {
		// fmt also prints maps in sorted key order.
		data = []byte(fmt.Sprintf("%v", params))
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
