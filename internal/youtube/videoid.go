package youtube

import (
	"regexp"
	"strings"

	"ytreport/internal/services"
)

var (
	videoIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:youtube\.com/watch\?(?:.*&)?v=|youtu\.be/)([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtube\.com/embed/([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtube\.com/v/([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
	}
	bareVideoID = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
)

// ExtractVideoID returns the 11-character video id from a watch, short,
// embed or legacy URL. A bare id is returned unchanged.
func ExtractVideoID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if bareVideoID.MatchString(ref) {
		return ref, nil
	}
	for _, pattern := range videoIDPatterns {
		if match := pattern.FindStringSubmatch(ref); match != nil {
			return match[1], nil
		}
	}
	return "", services.Wrap(services.ErrInvalidInput, "", "extract video id", "not a YouTube URL or id: "+ref, nil)
}

// WatchURL returns the canonical watch URL for id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
