package metacache

import (
	"encoding/json"
	"maps"
	"reflect"
	"slices"

	"github.com/amaumene/streamarr/internal/models"
)

// Document is a decoded metadata tree
type Document = map[string]any

const tempKey = "temp"

// RequiredFields lists the document fields a complete retrieval of kind
// returns. An insert missing any of them is stored with a part annotation.
func RequiredFields(kind models.Kind) []string {
	switch kind {
	case models.KindMovie:
		return []string{"title", "year", "time"}
	case models.KindSet:
		return []string{"title"}
	case models.KindShow:
		return []string{"title", "year"}
	case models.KindSeason:
		return []string{"seasons"}
	case models.KindEpisode:
		return []string{"episodes"}
	case models.KindPack:
		return []string{"seasons"}
	}
	return nil
}

// missingFields returns the required fields absent or empty in doc
func missingFields(kind models.Kind, doc Document) []string {
	var missing []string
	for _, field := range RequiredFields(kind) {
		if empty(doc[field]) {
			missing = append(missing, field)
		}
	}
	return missing
}

func empty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}

// stripTemp removes scratch fields from doc and its season/episode entries
func stripTemp(doc Document) {
	delete(doc, tempKey)
	for _, key := range []string{"seasons", "episodes"} {
		list, _ := doc[key].([]any)
		for _, entry := range list {
			if nested, ok := entry.(map[string]any); ok {
				stripTemp(nested)
			}
		}
	}
}

// share returns a copy safe to hand out: the top level and every season or
// episode entry are shallow-copied, number maps are deep-copied. Packs are
// immutable and shared as is.
func share(kind models.Kind, doc Document) Document {
	if doc == nil || kind == models.KindPack {
		return doc
	}
	return shareEntry(doc)
}

func shareEntry(doc Document) Document {
	out := maps.Clone(doc)
	if number, ok := out["number"].(map[string]any); ok {
		out["number"] = deepCopy(number)
	}
	for _, key := range []string{"seasons", "episodes"} {
		list, ok := out[key].([]any)
		if !ok {
			continue
		}
		copied := make([]any, len(list))
		for i, entry := range list {
			if nested, ok := entry.(map[string]any); ok {
				copied[i] = shareEntry(nested)
			} else {
				copied[i] = entry
			}
		}
		out[key] = copied
	}
	return out
}

func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, nested := range v {
			out[key] = deepCopy(nested)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, nested := range v {
			out[i] = deepCopy(nested)
		}
		return out
	}
	return value
}

// merge folds a caller skeleton into a cached document. Scalars keep the
// cached value, lists keep the cached entries first and append unseen input
// entries, maps merge recursively. Neither argument is modified.
func merge(cached, input Document) Document {
	if cached == nil {
		return input
	}
	if len(input) == 0 {
		return cached
	}
	out := maps.Clone(cached)
	for key, value := range input {
		current, ok := out[key]
		if !ok || current == nil {
			out[key] = value
			continue
		}
		switch c := current.(type) {
		case []any:
			if list, ok := value.([]any); ok {
				out[key] = mergeList(c, list)
			}
		case map[string]any:
			if m, ok := value.(map[string]any); ok {
				out[key] = merge(c, m)
			}
		}
	}
	return out
}

func mergeList(cached, input []any) []any {
	out := slices.Clone(cached)
	for _, entry := range input {
		if !slices.ContainsFunc(out, func(existing any) bool { return reflect.DeepEqual(existing, entry) }) {
			out = append(out, entry)
		}
	}
	return out
}

// decodeDocument parses a stored data column, nil when absent
func decodeDocument(data json.RawMessage) (Document, error) {
	if data == nil {
		return nil, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
