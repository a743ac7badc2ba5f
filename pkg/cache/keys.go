package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Cache key layout: ohada:{namespace}:{md5}. The hash input for answers is
// "query" or "query:{sorted filters}" so that filter insertion order never
// changes the key.
const keyPrefix = "ohada"

// Namespaces for the two cached value kinds.
const (
	NamespaceAnswers    = "answers"
	NamespaceEmbeddings = "embedding"
)

func hashHex(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Key builds a namespaced cache key from raw hash input.
func Key(namespace, input string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, namespace, hashHex(input))
}

// CanonicalFilters renders a filter set deterministically: keys sorted,
// "k=v" pairs joined with "&".
func CanonicalFilters(filters map[string]any) string {
	if len(filters) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, filters[k]))
	}
	return strings.Join(pairs, "&")
}

// AnswerKey builds the cache key for a full answer.
func AnswerKey(query string, filters map[string]any) string {
	input := query
	if canonical := CanonicalFilters(filters); canonical != "" {
		input = query + ":" + canonical
	}
	return Key(NamespaceAnswers, input)
}

// EmbeddingKey builds the cache key for a text embedding.
func EmbeddingKey(text string) string {
	return Key(NamespaceEmbeddings, text)
}

// NamespacePattern matches every key in a namespace, for bulk deletion.
func NamespacePattern(namespace string) string {
	return fmt.Sprintf("%s:%s:*", keyPrefix, namespace)
}
