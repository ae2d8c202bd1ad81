package utils

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/moistari/rls"

	"github.com/amaumene/streamarr/internal/models"
)

// DetermineQuality parses a release name and determines its video quality category
func DetermineQuality(name string) models.Quality {
	release := rls.ParseString(name)
	return QualityFromResolution(release.Resolution, name)
}

// QualityFromResolution maps a parsed resolution to a quality category,
// falling back to markers found in the raw name
func QualityFromResolution(resolution, name string) models.Quality {
	switch strings.ToLower(strings.TrimSpace(resolution)) {
	case "2160p", "4320p", "uhd":
		return models.QualityHDUltra
	case "1080p", "1080i":
		return models.QualityHD1080
	case "720p":
		return models.QualityHD720
	case "576p", "576i", "540p", "480p", "480i":
		return models.QualitySD
	case "360p", "240p":
		return models.QualityLD
	}

	nameLower := strings.ToLower(name)
	switch {
	case strings.Contains(nameLower, "4k") || strings.Contains(nameLower, "uhd"):
		return models.QualityHDUltra
	case strings.Contains(nameLower, "1080"):
		return models.QualityHD1080
	case strings.Contains(nameLower, "720"):
		return models.QualityHD720
	case strings.Contains(nameLower, "cam") || strings.Contains(nameLower, "telesync") ||
		strings.Contains(nameLower, "hdts"):
		return models.QualityLD
	}
	return models.QualitySD
}

// QualityValue assigns a numeric value to each quality category for comparison
func QualityValue(q models.Quality) int {
	switch q {
	case models.QualityHDUltra:
		return 5
	case models.QualityHD1080:
		return 4
	case models.QualityHD720:
		return 3
	case models.QualitySD:
		return 2
	case models.QualityLD:
		return 1
	default:
		return 0
	}
}

// MinimumSize returns the smallest plausible size in bytes of a full movie or
// episode in quality q. Anything smaller is considered fake.
func MinimumSize(q models.Quality, episode bool) int64 {
	const mb = 1024 * 1024
	var size int64
	switch q {
	case models.QualityHDUltra:
		size = 2000 * mb
	case models.QualityHD1080:
		size = 700 * mb
	case models.QualityHD720:
		size = 350 * mb
	case models.QualitySD:
		size = 100 * mb
	default:
		return 0
	}
	if episode {
		size /= 4
	}
	return size
}

var yearRegex = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

// ExtractYear extracts a 4-digit year from a release name
// Returns 0 if no year is found
// Matches years like: (2009), 2009, [2009], etc.
func ExtractYear(title string) int {
	matches := yearRegex.FindStringSubmatch(title)
	if len(matches) > 1 {
		year, err := strconv.Atoi(matches[1])
		if err == nil {
			return year
		}
	}
	return 0
}
