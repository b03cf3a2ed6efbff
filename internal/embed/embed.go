// Package embed recognizes video-sharing URLs and normalizes them to the
// platform's iframe-embeddable form.
package embed

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"postcms/internal/richtext"
)

// Result is the outcome of classifying a pasted video URL.
type Result struct {
	URL      string `json:"url"`
	IsEmbed  bool   `json:"isEmbed"`
	Platform string `json:"platform,omitempty"`
}

// Platform turns a recognized share URL into its embed URL.
type Platform struct {
	Name  string
	Match func(u *url.URL) (embedURL string, ok bool)
}

var (
	youtubeID = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	vimeoID   = regexp.MustCompile(`^[0-9]+$`)
)

// YouTube recognizes watch pages, youtu.be short links, shorts and
// already-normalized embed URLs.
var YouTube = Platform{
	Name: "youtube",
	Match: func(u *url.URL) (string, bool) {
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		host = strings.TrimPrefix(host, "m.")
		var id string
		switch host {
		case "youtu.be":
			id = firstSegment(u.Path)
		case "youtube.com", "youtube-nocookie.com":
			switch seg := firstSegment(u.Path); seg {
			case "watch":
				id = u.Query().Get("v")
			case "shorts", "embed", "live", "v":
				id = secondSegment(u.Path)
			}
		}
		if !youtubeID.MatchString(id) {
			return "", false
		}
		return "https://www.youtube.com/embed/" + id, true
	},
}

// Vimeo recognizes vimeo.com/<id> and player.vimeo.com/video/<id>.
var Vimeo = Platform{
	Name: "vimeo",
	Match: func(u *url.URL) (string, bool) {
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		var id string
		switch host {
		case "vimeo.com":
			id = lastSegment(u.Path)
		case "player.vimeo.com":
			if firstSegment(u.Path) == "video" {
				id = secondSegment(u.Path)
			}
		}
		if !vimeoID.MatchString(id) {
			return "", false
		}
		return "https://player.vimeo.com/video/" + id, true
	},
}

// DirectFileExtensions are treated as directly playable files.
var DirectFileExtensions = map[string]bool{
	".mp4": true, ".webm": true, ".ogg": true, ".ogv": true,
	".mov": true, ".m4v": true, ".m3u8": true,
}

// Classifier normalizes pasted video URLs. The direct-file guess for
// unrecognized URLs is best effort: a file hosted elsewhere without a known
// extension is classified as an embed, and a deceptive extension wins.
type Classifier struct {
	Platforms []Platform
	// MediaHost is the host of the upload store; URLs on it are files.
	MediaHost string
}

// NewClassifier returns a classifier for YouTube and Vimeo.
func NewClassifier(mediaHost string) *Classifier {
	return &Classifier{
		Platforms: []Platform{YouTube, Vimeo},
		MediaHost: strings.ToLower(mediaHost),
	}
}

// Classify recognizes raw and returns the URL to store with its embed flag.
// Unrecognized URLs pass through unchanged. A URL with a scheme other than
// http or https yields the zero Result.
func (c *Classifier) Classify(raw string) Result {
	raw = strings.TrimSpace(raw)
	if !richtext.SafeURL(raw) {
		return Result{}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Result{URL: raw, IsEmbed: !c.looksLikeFile(raw, nil)}
	}
	for _, p := range c.Platforms {
		if embedURL, ok := p.Match(u); ok {
			return Result{URL: embedURL, IsEmbed: true, Platform: p.Name}
		}
	}
	return Result{URL: raw, IsEmbed: !c.looksLikeFile(raw, u)}
}

func (c *Classifier) looksLikeFile(raw string, u *url.URL) bool {
	p := raw
	if u != nil {
		p = u.Path
		if c.MediaHost != "" && strings.Contains(strings.ToLower(u.Host), c.MediaHost) {
			return true
		}
	}
	return DirectFileExtensions[strings.ToLower(path.Ext(p))]
}

func segments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstSegment(p string) string {
	if s := segments(p); len(s) > 0 {
		return s[0]
	}
	return ""
}

func secondSegment(p string) string {
	if s := segments(p); len(s) > 1 {
		return s[1]
	}
	return ""
}

func lastSegment(p string) string {
	if s := segments(p); len(s) > 0 {
		return s[len(s)-1]
	}
	return ""
}
