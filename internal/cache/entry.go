package cache

import (
	"encoding/json"
	"net/http"
	"time"
)

// Entry is a stored snapshot of an HTTP response. Entries are immutable once
// stored; a new Put for the same key replaces the previous snapshot.
type Entry struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Key builds the cache key for a request. Only GET requests are ever cached,
// but the method is kept in the key so lookups stay exact.
func Key(method, url string) string {
	return method + "|" + url
}

// EncodeEntry serializes an entry for storage.
func EncodeEntry(e Entry) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEntry deserializes a stored entry.
func DecodeEntry(b []byte) (Entry, error) {
	var e Entry
	err := json.Unmarshal(b, &e)
	return e, err
}
