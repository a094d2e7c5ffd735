package agent

import (
	"regexp"
	"strings"
)

// Category selects the library folder a download lands in.
type Category string

const (
	CategoryMovies Category = "movies"
	CategoryTV     Category = "tv"
)

var episodePattern = regexp.MustCompile(`(?i)s\d{1,2}e\d{1,2}`)

// episodic release-name markers; anything else defaults to a movie
var tvMarkers = []string{"season", "episode", "hdtv", "x264-"}

// Categorize decides whether a title names episodic content. Used only
// for local path selection; a mismatch just files the download in the
// other folder.
func Categorize(title string) Category {
	lower := strings.ToLower(title)
	if episodePattern.MatchString(lower) {
		return CategoryTV
	}
	for _, marker := range tvMarkers {
		if strings.Contains(lower, marker) {
			return CategoryTV
		}
	}
	return CategoryMovies
}

// SanitizeTitle strips characters unsuitable for a filename.
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
