package cache

// Simple JSON protocol for the cache daemon over a Unix domain socket.
// One request -> one response using json.Encoder/Decoder per connection.

type Request struct {
	Op        string `json:"op"` // "get" | "put" | "delete" | "match" | "namespaces" | "ensure-ns" | "drop-ns"
	Namespace string `json:"namespace,omitempty"`
	Key       string `json:"key,omitempty"`
	Value     []byte `json:"value,omitempty"`
}

type Response struct {
	OK         bool     `json:"ok"`
	Value      []byte   `json:"value,omitempty"`
	Namespaces []string `json:"namespaces,omitempty"`
	Error      string   `json:"error,omitempty"`
}
