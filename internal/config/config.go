package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Indexer is one Newznab or Torznab endpoint
type Indexer struct {
	Name string
	URL  string
	Key  string
	Tier int
}

// ImageSelection holds the settings that decide which artwork is stored
type ImageSelection struct {
	Style      string // "poster", "fanart", "mixed"
	Language   string
	PreferText bool
}

// Config holds all application configuration
type Config struct {
	// Metadata languages and region
	LanguagePrimary   string
	LanguageSecondary string
	LanguageTertiary  string
	Country           string
	DetailLevel       string // "essential", "standard", "extended"
	Images            ImageSelection

	// Rating preferences are applied at read time and never stored
	RatingSource string

	// Trakt
	TraktClientID     string
	TraktClientSecret string

	// Metadata services
	TMDbAPIKey   string
	OMDbAPIKey   string
	FanartAPIKey string
	TVDbAPIKey   string

	// Providers
	Newznab []Indexer
	Torznab []Indexer

	// Debrid
	TorBoxAPIKey string

	// Scrape limits
	ScrapeTimeLimit      time.Duration
	PrecheckTimeLimit    time.Duration
	MetadataTimeLimit    time.Duration
	InspectionTimeLimit  time.Duration
	QueryLimit           int
	UnresponsiveEnabled  bool
	UnresponsiveCount    int           // Terminate when fewer than this many providers are still running
	UnresponsiveDuration time.Duration // ...for this long
	TerminationHDCount   int           // Stop once this many usable HD streams were found, 0 disables
	OptimizationProfile  string        // "speed", "mixed", "result", "crazy"

	// Device ratings (0..1), zero means auto-detect
	RatingProcessor float64
	RatingMemory    float64
	RatingStorage   float64
	RatingNetwork   float64

	// Post-processing
	Exclusions     []string
	Keywords       []string // Keyword exclusion terms, merged with the blacklist file
	BlockedHosts   []string
	Formats        []string // Excluded container/format markers (e.g. "iso", "3d")
	PreloadTorrent bool
	PreloadNZB     bool
	Precheck       bool
	MetadataProbe  bool
	CacheInspect   bool

	// Caches
	ExternalEnabled   bool
	CacheSaveWindow   time.Duration
	MetaCleanAge      time.Duration
	ProviderCleanAge  time.Duration
	ProviderFailLimit int
	ProviderCooldown  time.Duration

	// Server
	ServerPort     string
	TracingEnabled bool

	// Paths
	TokenFile        string // $CONFIG_DIR/token.json
	BlacklistFile    string // $CONFIG_DIR/blacklist.txt
	MetadataFile     string // $CONFIG_DIR/metadata.db
	ExternalFile     string // $CONFIG_DIR/metadata.external.db
	ProvidersFile    string // $CONFIG_DIR/providers.db
	ProviderStatFile string // $CONFIG_DIR/providers.stat

	// Logging
	LogLevel string
	LogFile  string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	setDefaults()

	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "streamarr")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		LanguagePrimary:   viper.GetString("LANGUAGE_PRIMARY"),
		LanguageSecondary: viper.GetString("LANGUAGE_SECONDARY"),
		LanguageTertiary:  viper.GetString("LANGUAGE_TERTIARY"),
		Country:           viper.GetString("COUNTRY"),
		DetailLevel:       viper.GetString("DETAIL_LEVEL"),
		Images: ImageSelection{
			Style:      viper.GetString("IMAGE_STYLE"),
			Language:   viper.GetString("IMAGE_LANGUAGE"),
			PreferText: viper.GetBool("IMAGE_PREFER_TEXT"),
		},
		RatingSource: viper.GetString("RATING_SOURCE"),

		TraktClientID:     viper.GetString("TRAKT_CLIENT_ID"),
		TraktClientSecret: viper.GetString("TRAKT_CLIENT_SECRET"),

		TMDbAPIKey:   viper.GetString("TMDB_API_KEY"),
		OMDbAPIKey:   viper.GetString("OMDB_API_KEY"),
		FanartAPIKey: viper.GetString("FANART_API_KEY"),
		TVDbAPIKey:   viper.GetString("TVDB_API_KEY"),

		Newznab: parseIndexers(viper.GetString("NEWZNAB_INDEXERS")),
		Torznab: parseIndexers(viper.GetString("TORZNAB_INDEXERS")),

		TorBoxAPIKey: viper.GetString("TORBOX_API_KEY"),

		ScrapeTimeLimit:      viper.GetDuration("SCRAPE_TIME_LIMIT"),
		PrecheckTimeLimit:    viper.GetDuration("PRECHECK_TIME_LIMIT"),
		MetadataTimeLimit:    viper.GetDuration("METADATA_TIME_LIMIT"),
		InspectionTimeLimit:  viper.GetDuration("INSPECTION_TIME_LIMIT"),
		QueryLimit:           viper.GetInt("QUERY_LIMIT"),
		UnresponsiveEnabled:  viper.GetBool("UNRESPONSIVE_ENABLED"),
		UnresponsiveCount:    viper.GetInt("UNRESPONSIVE_COUNT"),
		UnresponsiveDuration: viper.GetDuration("UNRESPONSIVE_DURATION"),
		TerminationHDCount:   viper.GetInt("TERMINATION_HD_COUNT"),
		OptimizationProfile:  viper.GetString("OPTIMIZATION_PROFILE"),

		RatingProcessor: viper.GetFloat64("RATING_PROCESSOR"),
		RatingMemory:    viper.GetFloat64("RATING_MEMORY"),
		RatingStorage:   viper.GetFloat64("RATING_STORAGE"),
		RatingNetwork:   viper.GetFloat64("RATING_NETWORK"),

		Exclusions:     splitList(viper.GetString("EXCLUSIONS")),
		Keywords:       splitList(viper.GetString("KEYWORDS")),
		BlockedHosts:   splitList(viper.GetString("BLOCKED_HOSTS")),
		Formats:        splitList(viper.GetString("EXCLUDED_FORMATS")),
		PreloadTorrent: viper.GetBool("PRELOAD_TORRENT"),
		PreloadNZB:     viper.GetBool("PRELOAD_NZB"),
		Precheck:       viper.GetBool("PRECHECK"),
		MetadataProbe:  viper.GetBool("METADATA_PROBE"),
		CacheInspect:   viper.GetBool("CACHE_INSPECT"),

		ExternalEnabled:   viper.GetBool("EXTERNAL_ENABLED"),
		CacheSaveWindow:   viper.GetDuration("CACHE_SAVE_WINDOW"),
		MetaCleanAge:      viper.GetDuration("META_CLEAN_AGE"),
		ProviderCleanAge:  viper.GetDuration("PROVIDER_CLEAN_AGE"),
		ProviderFailLimit: viper.GetInt("PROVIDER_FAIL_LIMIT"),
		ProviderCooldown:  viper.GetDuration("PROVIDER_COOLDOWN"),

		ServerPort:     viper.GetString("SERVER_PORT"),
		TracingEnabled: viper.GetBool("TRACING_ENABLED"),

		TokenFile:        filepath.Join(configDir, "token.json"),
		BlacklistFile:    filepath.Join(configDir, "blacklist.txt"),
		MetadataFile:     filepath.Join(configDir, "metadata.db"),
		ExternalFile:     filepath.Join(configDir, "metadata.external.db"),
		ProvidersFile:    filepath.Join(configDir, "providers.db"),
		ProviderStatFile: filepath.Join(configDir, "providers.stat"),

		LogLevel: viper.GetString("LOG_LEVEL"),
		LogFile:  viper.GetString("LOG_FILE"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// setDefaults registers every default value with viper
func setDefaults() {
	viper.SetDefault("LANGUAGE_PRIMARY", "en")
	viper.SetDefault("COUNTRY", "us")
	viper.SetDefault("DETAIL_LEVEL", "standard")
	viper.SetDefault("IMAGE_STYLE", "poster")
	viper.SetDefault("SCRAPE_TIME_LIMIT", "3m")
	viper.SetDefault("PRECHECK_TIME_LIMIT", "20s")
	viper.SetDefault("METADATA_TIME_LIMIT", "20s")
	viper.SetDefault("INSPECTION_TIME_LIMIT", "30s")
	viper.SetDefault("QUERY_LIMIT", 10)
	viper.SetDefault("UNRESPONSIVE_ENABLED", true)
	viper.SetDefault("UNRESPONSIVE_COUNT", 2)
	viper.SetDefault("UNRESPONSIVE_DURATION", "45s")
	viper.SetDefault("TERMINATION_HD_COUNT", 0)
	viper.SetDefault("OPTIMIZATION_PROFILE", "mixed")
	viper.SetDefault("EXCLUSIONS", "duplicate,keyword,metadata,format,fake,support,precheck,captcha,blocked")
	viper.SetDefault("PRECHECK", true)
	viper.SetDefault("METADATA_PROBE", true)
	viper.SetDefault("CACHE_INSPECT", true)
	viper.SetDefault("CACHE_SAVE_WINDOW", "6h")
	viper.SetDefault("META_CLEAN_AGE", "0")
	viper.SetDefault("PROVIDER_CLEAN_AGE", "720h")
	viper.SetDefault("PROVIDER_FAIL_LIMIT", 5)
	viper.SetDefault("PROVIDER_COOLDOWN", "6h")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
}

// Validate checks the values that would make every scrape fail
func (c *Config) Validate() error {
	if c.LanguagePrimary == "" {
		return fmt.Errorf("LANGUAGE_PRIMARY is required")
	}
	if c.ScrapeTimeLimit <= 0 {
		return fmt.Errorf("SCRAPE_TIME_LIMIT must be positive")
	}
	switch c.OptimizationProfile {
	case "speed", "mixed", "result", "crazy":
	default:
		return fmt.Errorf("OPTIMIZATION_PROFILE must be one of speed, mixed, result, crazy")
	}
	for _, indexer := range append(append([]Indexer{}, c.Newznab...), c.Torznab...) {
		if indexer.URL == "" {
			return fmt.Errorf("indexer %q has no URL", indexer.Name)
		}
	}
	return nil
}

// Languages returns the configured metadata languages in priority order
func (c *Config) Languages() []string {
	var languages []string
	for _, language := range []string{c.LanguagePrimary, c.LanguageSecondary, c.LanguageTertiary} {
		if language != "" {
			languages = append(languages, language)
		}
	}
	return languages
}

// parseIndexers parses "name|url|key|tier;name|url|key|tier"
func parseIndexers(value string) []Indexer {
	var indexers []Indexer
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, "|")
		indexer := Indexer{Name: fields[0]}
		if len(fields) > 1 {
			indexer.URL = fields[1]
		}
		if len(fields) > 2 {
			indexer.Key = fields[2]
		}
		if len(fields) > 3 {
			fmt.Sscanf(fields[3], "%d", &indexer.Tier)
		}
		indexers = append(indexers, indexer)
	}
	return indexers
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(strings.ToLower(item))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
