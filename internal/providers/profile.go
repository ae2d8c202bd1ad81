package providers

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/amaumene/streamarr/internal/config"
)

// Profile is the tradeoff between scrape speed and result count
type Profile string

const (
	ProfileSpeed  Profile = "speed"
	ProfileMixed  Profile = "mixed"
	ProfileResult Profile = "result"
	ProfileCrazy  Profile = "crazy"
)

// ParseProfile converts a configured profile name
func ParseProfile(name string) (Profile, error) {
	switch p := Profile(name); p {
	case ProfileSpeed, ProfileMixed, ProfileResult, ProfileCrazy:
		return p, nil
	case "":
		return ProfileMixed, nil
	}
	return "", fmt.Errorf("unknown optimization profile %q", name)
}

// Diagnosis rates the device capabilities between 0 (weak) and 1 (strong)
type Diagnosis struct {
	Processor float64
	Memory    float64
	Storage   float64
	Network   float64
}

// Score is the mean rating
func (d Diagnosis) Score() float64 {
	return (d.Processor + d.Memory + d.Storage + d.Network) / 4
}

// Limits are the scrape limits chosen by a profile
type Limits struct {
	TimeLimit      time.Duration
	QueryLimit     int
	PageLimit      int
	RequestLimit   int
	ExpandTitles   bool
	ExpandKeywords bool
	ExpandYears    bool
}

const neutralRating = 0.5

// Diagnose rates the device. Configured ratings win; the processor is
// otherwise rated from the core count and the rest default to neutral.
func Diagnose(cfg *config.Config) Diagnosis {
	d := Diagnosis{
		Processor: math.Min(float64(runtime.NumCPU())/8, 1),
		Memory:    neutralRating,
		Storage:   neutralRating,
		Network:   neutralRating,
	}
	if cfg == nil {
		return d
	}
	override := func(target *float64, value float64) {
		if value > 0 {
			*target = math.Min(value, 1)
		}
	}
	override(&d.Processor, cfg.RatingProcessor)
	override(&d.Memory, cfg.RatingMemory)
	override(&d.Storage, cfg.RatingStorage)
	override(&d.Network, cfg.RatingNetwork)
	return d
}

var profileLimits = map[Profile]Limits{
	ProfileSpeed:  {TimeLimit: 45 * time.Second, QueryLimit: 3, PageLimit: 1, RequestLimit: 10},
	ProfileMixed:  {TimeLimit: 90 * time.Second, QueryLimit: 6, PageLimit: 2, RequestLimit: 25, ExpandTitles: true, ExpandYears: true},
	ProfileResult: {TimeLimit: 3 * time.Minute, QueryLimit: 10, PageLimit: 4, RequestLimit: 50, ExpandTitles: true, ExpandKeywords: true, ExpandYears: true},
	ProfileCrazy:  {TimeLimit: 10 * time.Minute, QueryLimit: 25, PageLimit: 10, RequestLimit: 150, ExpandTitles: true, ExpandKeywords: true, ExpandYears: true},
}

// Optimize picks the limits of profile for a device. Weaker devices get more
// time and fewer queries.
func Optimize(d Diagnosis, profile Profile) Limits {
	limits, ok := profileLimits[profile]
	if !ok {
		limits = profileLimits[ProfileMixed]
	}
	score := math.Max(0, math.Min(d.Score(), 1))

	timeFactor := 1.5 - score
	countFactor := 0.5 + score
	limits.TimeLimit = time.Duration(float64(limits.TimeLimit) * timeFactor).Round(time.Second)
	limits.QueryLimit = scale(limits.QueryLimit, countFactor)
	limits.PageLimit = scale(limits.PageLimit, countFactor)
	limits.RequestLimit = scale(limits.RequestLimit, countFactor)

	// Slow networks cannot afford the extra keyword queries
	if profile != ProfileCrazy && d.Network < 0.25 {
		limits.ExpandKeywords = false
	}
	return limits
}

func scale(value int, factor float64) int {
	return max(1, int(math.Round(float64(value)*factor)))
}
