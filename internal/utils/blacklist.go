package utils

import (
	"bufio"
	"os"
	"strings"
)

// Blacklist holds keyword terms used to exclude stream results
type Blacklist struct {
	terms []string
}

// NewBlacklist creates a blacklist from in-memory terms
func NewBlacklist(terms ...string) *Blacklist {
	b := &Blacklist{}
	b.Add(terms...)
	return b
}

// LoadBlacklist loads blacklist terms from a file, merged with extra terms
func LoadBlacklist(path string, extra ...string) (*Blacklist, error) {
	b := NewBlacklist(extra...)

	// If file doesn't exist, return the extra terms only
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return b, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		term := strings.TrimSpace(scanner.Text())
		if term != "" && !strings.HasPrefix(term, "#") {
			b.Add(term)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return b, nil
}

// Add appends terms, skipping empty ones
func (b *Blacklist) Add(terms ...string) {
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			b.terms = append(b.terms, term)
		}
	}
}

// Len returns the number of terms
func (b *Blacklist) Len() int {
	return len(b.terms)
}

// IsBlacklisted checks if a release name matches any blacklist term
// Returns (isBlacklisted, matchedTerm)
func (b *Blacklist) IsBlacklisted(name string) (bool, string) {
	nameLower := strings.ToLower(name)

	for _, term := range b.terms {
		if strings.Contains(nameLower, term) {
			return true, term
		}
	}

	return false, ""
}
