package badger

import (
	"strings"
)

// Key prefixes for different data types
const (
	documentPrefix = "doc"
)

// makeCollectionPrefix generates the scan prefix for every document of a collection.
// Format: doc:collection:
func makeCollectionPrefix(collection string) []byte {
	return []byte(documentPrefix + ":" + collection + ":")
}

// makeDocumentKey generates the key for a document.
// Format: doc:collection:id
func makeDocumentKey(collection, id string) []byte {
	prefix := makeCollectionPrefix(collection)
	buf := make([]byte, len(prefix)+len(id))
	offset := copy(buf, prefix)
	copy(buf[offset:], id)
	return buf
}

// documentIDFromKey strips the collection prefix from a document key.
func documentIDFromKey(collection string, key []byte) string {
	return strings.TrimPrefix(string(key), string(makeCollectionPrefix(collection)))
}
