package cache

import "fmt"

// DefaultPreviewThreshold is the content length above which PutWithPreview
// caches the full payload and returns only a preview.
const DefaultPreviewThreshold = 1000

// PutWithPreview stores content under a freshly generated key when it
// exceeds threshold, returning a truncated preview that tells the model how
// to retrieve the full payload through fetch_from_cache. Content at or below
// the threshold is returned unchanged and nothing is stored. A threshold of
// zero or less uses the store's configured preview threshold.
//
// keyPrefix should identify the content's origin (a resource ID, a tool
// name) so cache keys stay meaningful in telemetry.
func (s *Store) PutWithPreview(scope, keyPrefix, content string, threshold int) string {
	if threshold <= 0 {
		threshold = s.previewThreshold
	}
	if len(content) <= threshold {
		return content
	}
	key := NewKey(keyPrefix)
	stored := s.Put(scope, key, content)
	s.logger.Info("large content auto-cached",
		"scope", scope, "key", key,
		"original_len", len(content), "stored_len", stored)
	return truncateToRune(content, threshold) + fmt.Sprintf(
		"... [CACHED CONTENT - Full content stored in cache with key: %s. Use fetch_from_cache tool to retrieve full content if needed.]", key)
}
