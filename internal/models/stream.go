package models

import (
	"encoding/json"
	"time"
)

// CacheValue is the tri-state debrid cache status of a stream, plus the
// pending marker set while a lookup is in flight
type CacheValue string

const (
	CacheUnknown  CacheValue = ""
	CachePending  CacheValue = "pending"
	CacheCached   CacheValue = "cached"
	CacheUncached CacheValue = "uncached"
)

// AccessEntry records what one debrid service said about a stream
type AccessEntry struct {
	Value CacheValue `json:"value"`
	Time  int64      `json:"time"`
	Exact bool       `json:"exact"`
}

// AccessCache maps a debrid service id to its cache status for a stream
type AccessCache map[string]AccessEntry

// Cached reports whether any service has the stream cached
func (a AccessCache) Cached() bool {
	for _, entry := range a {
		if entry.Value == CacheCached {
			return true
		}
	}
	return false
}

// Inspected reports whether service has already answered (or is answering) for the stream
func (a AccessCache) Inspected(service string) bool {
	entry, ok := a[service]
	return ok && entry.Value != CacheUnknown
}

// Set stores a lookup result. A cached entry is never downgraded.
func (a AccessCache) Set(service string, cached bool, now time.Time) {
	if current, ok := a[service]; ok && current.Value == CacheCached {
		return
	}
	value := CacheUncached
	if cached {
		value = CacheCached
	}
	a[service] = AccessEntry{Value: value, Time: now.Unix(), Exact: true}
}

// MergeAccess combines two access maps: every service of either side is
// kept, cached wins over anything, otherwise the newer answer wins.
func MergeAccess(a, b AccessCache) AccessCache {
	merged := make(AccessCache, len(a)+len(b))
	for service, entry := range a {
		merged[service] = entry
	}
	for service, entry := range b {
		current, ok := merged[service]
		if !ok {
			merged[service] = entry
			continue
		}
		merged[service] = mergeEntry(current, entry)
	}
	return merged
}

func mergeEntry(a, b AccessEntry) AccessEntry {
	switch {
	case a.Value == CacheCached && b.Value == CacheCached:
		if b.Exact && !a.Exact {
			return b
		}
		return a
	case a.Value == CacheCached:
		return a
	case b.Value == CacheCached:
		return b
	case a.Value == CacheUnknown:
		return b
	case b.Value == CacheUnknown:
		return a
	case b.Time > a.Time:
		return b
	default:
		return a
	}
}

// ExclusionFlag is a bit set of reasons a stream is excluded
type ExclusionFlag uint16

const (
	ExcludeDuplicate ExclusionFlag = 1 << iota
	ExcludeKeyword
	ExcludeMetadata
	ExcludeFormat
	ExcludeFake
	ExcludeSupport
	ExcludePrecheck
	ExcludeCaptcha
	ExcludeBlocked
)

// ExcludeAll enables every exclusion filter
const ExcludeAll = ExcludeDuplicate | ExcludeKeyword | ExcludeMetadata | ExcludeFormat |
	ExcludeFake | ExcludeSupport | ExcludePrecheck | ExcludeCaptcha | ExcludeBlocked

var exclusionNames = []struct {
	flag ExclusionFlag
	name string
}{
	{ExcludeDuplicate, "duplicate"},
	{ExcludeKeyword, "keyword"},
	{ExcludeMetadata, "metadata"},
	{ExcludeFormat, "format"},
	{ExcludeFake, "fake"},
	{ExcludeSupport, "support"},
	{ExcludePrecheck, "precheck"},
	{ExcludeCaptcha, "captcha"},
	{ExcludeBlocked, "blocked"},
}

// Has reports whether every bit of flag is set
func (e ExclusionFlag) Has(flag ExclusionFlag) bool {
	return e&flag == flag
}

// Names returns the names of the set flags
func (e ExclusionFlag) Names() []string {
	names := []string{}
	for _, n := range exclusionNames {
		if e.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return names
}

// ParseExclusions converts filter names into a flag set, ignoring unknown names
func ParseExclusions(names []string) ExclusionFlag {
	var flags ExclusionFlag
	for _, name := range names {
		for _, n := range exclusionNames {
			if n.name == name {
				flags |= n.flag
			}
		}
	}
	return flags
}

// MarshalJSON encodes the flags as a list of names
func (e ExclusionFlag) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Names())
}

// UnmarshalJSON decodes a list of names
func (e *ExclusionFlag) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*e = ParseExclusions(names)
	return nil
}

// TerminationInfo is stamped on streams whose post-processing was cut short
type TerminationInfo struct {
	Terminated bool   `json:"terminated"`
	Reason     string `json:"reason,omitempty"`
}

// Origin records whether a stream was freshly scraped or read from the providers-cache
type Origin struct {
	Cached bool  `json:"cached"`
	Time   int64 `json:"time,omitempty"`
}

// Stream represents one stream result produced by a provider
type Stream struct {
	Provider string `json:"provider"`
	Sequence int    `json:"sequence"` // Insertion order within the provider
	Query    string `json:"query,omitempty"`

	Link     string     `json:"link"`
	Resolved string     `json:"resolved,omitempty"`
	Source   SourceType `json:"source"`
	Hash     string     `json:"hash,omitempty"`
	HashTime int64      `json:"hash_time,omitempty"` // When the hash became known
	Host     string     `json:"host,omitempty"`

	// Release details
	Name    string  `json:"name"`
	Size    int64   `json:"size,omitempty"`
	Quality Quality `json:"quality,omitempty"`
	Mime    string  `json:"mime,omitempty"`
	Seeds   int     `json:"seeds,omitempty"`
	Captcha bool    `json:"captcha,omitempty"`

	// Entity the stream was scraped for
	IDs     IDs  `json:"ids"`
	Season  *int `json:"season,omitempty"`
	Episode *int `json:"episode,omitempty"`
	Pack    bool `json:"pack,omitempty"`

	// Post-processing results
	Precheck      PrecheckStatus  `json:"precheck,omitempty"`
	AccessCache   AccessCache     `json:"access_cache,omitempty"`
	Exclusions    ExclusionFlag   `json:"exclusions"`
	ResolveFailed bool            `json:"resolve_failed,omitempty"`
	HashLookedUp  bool            `json:"hash_looked_up,omitempty"` // Identifier service already asked
	Termination   TerminationInfo `json:"termination"`
	Origin        Origin          `json:"origin"`
}

// PlayLink returns the resolved link when available, the primary link otherwise
func (s *Stream) PlayLink() string {
	if s.Resolved != "" {
		return s.Resolved
	}
	return s.Link
}

// Excluded reports whether any enabled filter excludes the stream
func (s *Stream) Excluded(enabled ExclusionFlag) bool {
	return s.Exclusions&enabled != 0
}

// HashBased reports whether the stream type is addressed by container hash
func (s *Stream) HashBased() bool {
	return s.Source == SourceTorrent || s.Source == SourceUsenet
}
