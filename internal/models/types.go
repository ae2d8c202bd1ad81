package models

// Kind represents the media kind of a cached entity
type Kind string

const (
	KindMovie   Kind = "movie"
	KindSet     Kind = "set"
	KindShow    Kind = "show"
	KindSeason  Kind = "season"
	KindEpisode Kind = "episode"
	KindPack    Kind = "pack"
)

// Kinds lists every media kind, one table each in a store
var Kinds = []Kind{KindMovie, KindSet, KindShow, KindSeason, KindEpisode, KindPack}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	switch k {
	case KindMovie, KindSet, KindShow, KindSeason, KindEpisode, KindPack:
		return true
	}
	return false
}

// Status represents the freshness classification of a cached entity
type Status string

const (
	StatusCurrent    Status = "current"
	StatusOutdated   Status = "outdated"
	StatusObsolete   Status = "obsolete"
	StatusSettings   Status = "settings"
	StatusIncomplete Status = "incomplete"
	StatusExternal   Status = "external"
	StatusMemory     Status = "memory"
	StatusInvalid    Status = "invalid"
)

// Refresh tells the caller how urgently a cached entity must be re-fetched
type Refresh string

const (
	RefreshNone       Refresh = "none"
	RefreshBackground Refresh = "background"
	RefreshForeground Refresh = "foreground"
)

// RefreshFor maps a freshness status to its refresh mode
func RefreshFor(status Status) Refresh {
	switch status {
	case StatusObsolete, StatusInvalid:
		return RefreshForeground
	case StatusOutdated, StatusSettings, StatusIncomplete, StatusExternal:
		return RefreshBackground
	default:
		return RefreshNone
	}
}

// SourceType represents where a stream comes from
type SourceType string

const (
	SourceTorrent SourceType = "torrent"
	SourceUsenet  SourceType = "usenet"
	SourceHoster  SourceType = "hoster"
	SourcePremium SourceType = "premium"
	SourceLocal   SourceType = "local"
)

// Quality represents the video quality category of a stream
type Quality string

const (
	QualityHDUltra Quality = "hdultra"
	QualityHD1080  Quality = "hd1080"
	QualityHD720   Quality = "hd720"
	QualitySD      Quality = "sd"
	QualityLD      Quality = "ld"
)

// IsHD reports whether q is 720p or better
func (q Quality) IsHD() bool {
	return q == QualityHDUltra || q == QualityHD1080 || q == QualityHD720
}

// PrecheckStatus records the outcome of a link precheck
type PrecheckStatus string

const (
	PrecheckUnknown PrecheckStatus = ""
	PrecheckOK      PrecheckStatus = "ok"
	PrecheckFailed  PrecheckStatus = "failed"
	PrecheckSkipped PrecheckStatus = "skipped"
)
