package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amaumene/streamarr/internal/metacache"
)

func TestTitlesSplitInitialisms(t *testing.T) {
	titles := Titles("S.W.A.T.", nil, TitleOptions{QueryLimit: 6, Expand: true, Years: []int{2017}})

	assert.Equal(t, "S.W.A.T.", titles[0])
	assert.Subset(t, titles, []string{"S.W.A.T.", "SWAT", "S W A T"})
	assert.NotContains(t, titles, "2017")
	assert.NotContains(t, titles, "The")
}

func TestTitlesStripYearsAndPossessives(t *testing.T) {
	titles := Titles("Bob's Burgers (2011)", nil, TitleOptions{QueryLimit: 10, Expand: true, Years: []int{2011}})

	assert.Contains(t, titles, "Bob's Burgers")
	assert.Contains(t, titles, "Bob Burgers")
	assert.Contains(t, titles, "Bobs Burgers")
	for _, title := range titles {
		assert.NotContains(t, title, "2011")
	}
}

func TestTitlesCategories(t *testing.T) {
	doc := metacache.Document{
		"originaltitle": "Le Fabuleux Destin d'Amélie Poulain",
		"translations": map[string]any{
			"de": []any{"Die fabelhafte Welt der Amélie"},
		},
		"aliases": []any{
			map[string]any{"title": "Amelie", "country": "us"},
			map[string]any{"title": "Amelie: The Musical", "country": "us"},
			map[string]any{"title": "Extended", "country": "us"},
			map[string]any{"title": "Amélie de Montmartre", "country": "fr"},
		},
	}
	opts := TitleOptions{
		Primary:    "en",
		Languages:  []string{"en", "de"},
		Country:    "us",
		QueryLimit: 6,
		Expand:     true,
		Years:      []int{2001},
	}

	titles := Titles("Amélie", doc, opts)
	assert.Equal(t, "Amélie", titles[0])
	assert.Contains(t, titles, "Amelie")
	assert.Contains(t, titles, "Le Fabuleux Destin d'Amélie Poulain")
	assert.Contains(t, titles, "Die fabelhafte Welt der Amélie")
	assert.NotContains(t, titles, "Amelie: The Musical")
	assert.NotContains(t, titles, "Extended")
	assert.NotContains(t, titles, "Amélie de Montmartre", "only aliases of the configured country and the US")

	count := 0
	for _, title := range titles {
		if title == "Amelie" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	opts.Expand = false
	assert.Equal(t, []string{"Amélie", "Amelie"}, Titles("Amélie", doc, opts))
}

func TestTitlesNearDuplicates(t *testing.T) {
	s := &titleSet{}
	assert.True(t, s.accept("The Lord of the Rings The Fellowship of the Ring"))
	assert.False(t, s.accept("the lord of the rings the fellowship of the ring"))
	assert.True(t, s.accept("Lord of the Rings"))
	assert.False(t, s.accept("It"), "too short")
	assert.True(t, s.accept("Alpha Beta Gamma Delta Epsilon Zeta Eta"))
	assert.False(t, s.accept("Alpha Beta Gamma Delta Epsilon Zeta Theta"))
	assert.False(t, s.accept("Director's Cut"))
}

func TestYears(t *testing.T) {
	doc := func(trakt, tmdb, imdb int) metacache.Document {
		years := map[string]any{}
		if trakt > 0 {
			years["trakt"] = float64(trakt)
		}
		if tmdb > 0 {
			years["tmdb"] = float64(tmdb)
		}
		if imdb > 0 {
			years["imdb"] = float64(imdb)
		}
		return metacache.Document{"years": years}
	}

	tests := []struct {
		name   string
		year   int
		doc    metacache.Document
		expand bool
		want   []int
	}{
		{"agreeing services", 2017, doc(2017, 2018, 2018), true, []int{2017, 2018}},
		{"imdb wins ties", 0, doc(2016, 2016, 2017), true, []int{2017, 2016}},
		{"window widens", 2015, doc(2015, 0, 2017), true, []int{2015, 2017}},
		{"far votes dropped", 2010, doc(2010, 2011, 2030), true, []int{2010, 2011}},
		{"no expansion", 2017, doc(2017, 2018, 2018), false, []int{2018}},
		{"no metadata", 2001, nil, true, []int{2001}},
		{"nothing known", 0, nil, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Years(tt.year, tt.doc, tt.expand))
		})
	}
}

func TestEpisodeTitles(t *testing.T) {
	titles := EpisodeTitles("Ozymandias’ Return", 4)

	assert.Equal(t, "Ozymandias’ Return", titles[0])
	assert.Contains(t, titles, "Ozymandias Return")
	assert.Empty(t, EpisodeTitles("", 4))
	assert.Empty(t, EpisodeTitles("Pi", 4), "too short to search")
}
