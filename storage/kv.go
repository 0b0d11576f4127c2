package storage

// KV abstracts the key-value persistence required by the ledgers and the
// exchange engine. Values are RLP-encoded by the backend so callers work with
// plain Go structs.
type KV interface {
	// KVGet decodes the value stored under key into out. The boolean reports
	// whether the key existed.
	KVGet(key []byte, out interface{}) (bool, error)
	// KVPut encodes value and stores it under key, replacing any prior value.
	KVPut(key []byte, value interface{}) error
	// KVHas reports whether key exists without decoding its value.
	KVHas(key []byte) (bool, error)
	// KVDelete removes key. Deleting a missing key is not an error.
	KVDelete(key []byte) error
}
