package youtube

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

const playerResponseMarker = "ytInitialPlayerResponse"

var errNoPlayerResponse = errors.New("watch page has no player response")

type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	VideoDetails struct {
		VideoID       string `json:"videoId"`
		Title         string `json:"title"`
		Author        string `json:"author"`
		LengthSeconds string `json:"lengthSeconds"`
	} `json:"videoDetails"`
	Microformat struct {
		Renderer struct {
			PublishDate string `json:"publishDate"`
			UploadDate  string `json:"uploadDate"`
		} `json:"playerMicroformatRenderer"`
	} `json:"microformat"`
	Captions *struct {
		Tracklist struct {
			Tracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
	Name         struct {
		SimpleText string `json:"simpleText"`
	} `json:"name"`
}

func (t captionTrack) generated() bool {
	return t.Kind == "asr"
}

// watchPage is the parsed subset of a watch page.
type watchPage struct {
	player       *playerResponse
	meta         map[string]string
	botChallenge bool
}

func parseWatchPage(r io.Reader) (*watchPage, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	page := &watchPage{meta: make(map[string]string)}
	walk(doc, func(n *html.Node) {
		switch n.Data {
		case "script":
			if page.player != nil {
				return
			}
			if player, ok := decodePlayerScript(textContent(n)); ok {
				page.player = player
			}
		case "meta":
			key := firstNonEmpty(getAttr(n, "itemprop"), getAttr(n, "property"), getAttr(n, "name"))
			if key != "" {
				page.meta[key] = getAttr(n, "content")
			}
		case "form", "div":
			if strings.Contains(getAttr(n, "class"), "g-recaptcha") || getAttr(n, "id") == "captcha-form" {
				page.botChallenge = true
			}
		}
	})
	if page.player == nil {
		return page, errNoPlayerResponse
	}
	return page, nil
}

// decodePlayerScript decodes the JSON object assigned to
// ytInitialPlayerResponse. The decoder stops at the end of the object, so any
// trailing script is ignored.
func decodePlayerScript(script string) (*playerResponse, bool) {
	idx := strings.Index(script, playerResponseMarker)
	if idx < 0 {
		return nil, false
	}
	rest := script[idx+len(playerResponseMarker):]
	start := strings.Index(rest, "{")
	if start < 0 {
		return nil, false
	}
	var player playerResponse
	if err := json.NewDecoder(strings.NewReader(rest[start:])).Decode(&player); err != nil {
		return nil, false
	}
	return &player, true
}

func walk(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
