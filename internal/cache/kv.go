package cache

// KV defines the namespaced key-value cache contract. Namespaces partition
// stored request/response pairs; keys within a namespace map to encoded
// entries. Implementations must be safe for concurrent use by multiple
// goroutines. Concurrent writes to the same key are last-write-wins.
type KV interface {
	Get(namespace, key string) ([]byte, error)
	Put(namespace, key string, value []byte) error
	Delete(namespace, key string) error
	// Match searches every namespace for the key and returns the first hit.
	Match(key string) ([]byte, error)
	Namespaces() ([]string, error)
	EnsureNamespace(namespace string) error
	DropNamespace(namespace string) error
}
