// Package ytutil pulls YouTube video ids out of pasted text.
package ytutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[-_a-zA-Z0-9]{11}$`)

func IsVideoID(s string) bool {
	return videoIDPattern.MatchString(s)
}

// ExtractVideoIDs finds every video id or video url in text, separated by
// whitespace or commas, in order and without duplicates. Anything else is
// returned as rejected.
func ExtractVideoIDs(text string) ([]string, []string) {
	var ids, rejected []string

	seen := make(map[string]bool)

	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	}) {
		id, err := ExtractVideoID(field)
		if err != nil {
			rejected = append(rejected, field)
			continue
		}

		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	return ids, rejected
}

func ExtractVideoID(urlOrID string) (string, error) {
	urlOrID = strings.TrimSpace(urlOrID)

	if IsVideoID(urlOrID) {
		return urlOrID, nil
	}

	parsed, err := url.Parse(urlOrID)
	if err != nil {
		return "", fmt.Errorf("ytutil.ExtractVideoID: %w", err)
	}

	var id string

	switch strings.TrimPrefix(parsed.Host, "www.") {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case parsed.Path == "/watch":
			id = parsed.Query().Get("v")
			if id == "" {
				return "", fmt.Errorf("ytutil.ExtractVideoID: no v query parameter in youtube.com url")
			}
		case strings.HasPrefix(parsed.Path, "/shorts/"), strings.HasPrefix(parsed.Path, "/live/"), strings.HasPrefix(parsed.Path, "/embed/"):
			parts := strings.Split(parsed.Path, "/")
			if len(parts) >= 3 {
				id = parts[2]
			}
		default:
			return "", fmt.Errorf("ytutil.ExtractVideoID: youtube.com url is not a video url")
		}
	case "youtu.be":
		id = strings.TrimPrefix(parsed.Path, "/")
		if id == "" {
			return "", fmt.Errorf("ytutil.ExtractVideoID: no path content found in youtu.be url")
		}
	default:
		return "", fmt.Errorf("ytutil.ExtractVideoID: invalid url or id; could not find a known pattern")
	}

	if !IsVideoID(id) {
		return "", fmt.Errorf("ytutil.ExtractVideoID: invalid video id %q; length should be 11", id)
	}

	return id, nil
}
