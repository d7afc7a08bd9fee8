package supervisor

import (
	"runtime"
	"sort"
	"strings"
)

// MergeEnvironment overlays declared variables on an inherited KEY=VALUE list.
// Inherited entries keep their order; an overridden key keeps the position of
// its first occurrence and later duplicates are dropped. Keys that are new
// are appended in sorted order. Keys compare case-insensitively on Windows.
func MergeEnvironment(base []string, overlay map[string]string) []string {
	type overlayEntry struct {
		key   string
		value string
	}

	byKey := make(map[string]overlayEntry, len(overlay))
	for k, v := range overlay {
		byKey[normalizeEnvKey(k)] = overlayEntry{key: k, value: v}
	}

	result := make([]string, 0, len(base)+len(overlay))
	applied := make(map[string]bool, len(overlay))

	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i > 0 {
			key = kv[:i]
		}
		normalized := normalizeEnvKey(key)

		entry, overridden := byKey[normalized]
		if !overridden {
			result = append(result, kv)
			continue
		}
		if !applied[normalized] {
			result = append(result, entry.key+"="+entry.value)
			applied[normalized] = true
		}
	}

	added := make([]overlayEntry, 0, len(overlay))
	for normalized, entry := range byKey {
		if !applied[normalized] {
			added = append(added, entry)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i].key < added[j].key })

	for _, entry := range added {
		result = append(result, entry.key+"="+entry.value)
	}
	return result
}

func normalizeEnvKey(key string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(key)
	}
	return key
}
