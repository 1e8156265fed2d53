package youtube

import (
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
)

// Entry is one caption line.
type Entry struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Transcript is the caption track chosen for a video.
type Transcript struct {
	VideoID   string  `json:"video_id"`
	Language  string  `json:"language"`
	Generated bool    `json:"generated"`
	Entries   []Entry `json:"entries"`
}

// Text joins the caption lines with spaces.
func (t *Transcript) Text() string {
	if t == nil {
		return ""
	}
	parts := make([]string, 0, len(t.Entries))
	for _, entry := range t.Entries {
		if text := strings.TrimSpace(entry.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// selectTrack prefers a manual track in lang, then a generated track in lang,
// then the first track.
func selectTrack(tracks []captionTrack, lang string) (captionTrack, bool) {
	if len(tracks) == 0 {
		return captionTrack{}, false
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang != "" {
		for _, generated := range []bool{false, true} {
			for _, track := range tracks {
				if track.generated() == generated && languageMatches(track.LanguageCode, lang) {
					return track, true
				}
			}
		}
	}
	return tracks[0], true
}

func languageMatches(code, want string) bool {
	code = strings.ToLower(code)
	return code == want || strings.HasPrefix(code, want+"-")
}

type timedText struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

// parseTimedText decodes a timedtext XML caption document. Caption bodies are
// HTML-escaped a second time inside the XML, so entities are unescaped after
// decoding.
func parseTimedText(r io.Reader) ([]Entry, error) {
	var doc timedText
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode timedtext: %w", err)
	}
	entries := make([]Entry, 0, len(doc.Texts))
	for _, text := range doc.Texts {
		body := strings.TrimSpace(html.UnescapeString(text.Body))
		if body == "" {
			continue
		}
		start, _ := strconv.ParseFloat(text.Start, 64)
		dur, _ := strconv.ParseFloat(text.Dur, 64)
		entries = append(entries, Entry{
			Text:     strings.Join(strings.Fields(body), " "),
			Start:    start,
			Duration: dur,
		})
	}
	return entries, nil
}
