package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Key builds a stable cache key over the fields spec §4.4 names: task
// name, method, resolved URL, resolved headers and resolved body. Headers
// are sorted before hashing so key order never perturbs the result.
func Key(taskName, method, url string, headers map[string]string, body any) string {
	sortedHeaders := make([][2]string, 0, len(headers))
	for k, v := range headers {
		sortedHeaders = append(sortedHeaders, [2]string{k, v})
	}
	sort.Slice(sortedHeaders, func(i, j int) bool { return sortedHeaders[i][0] < sortedHeaders[j][0] })

	bodyJSON, _ := json.Marshal(body)

	payload := struct {
		Task    string      `json:"task"`
		Method  string      `json:"method"`
		URL     string      `json:"url"`
		Headers [][2]string `json:"headers"`
		Body    json.RawMessage `json:"body"`
	}{taskName, method, url, sortedHeaders, bodyJSON}

	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
