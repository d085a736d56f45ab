package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

var idPatterns = map[string]*regexp.Regexp{
	"track":    regexp.MustCompile(`/track/([a-zA-Z0-9]+)`),
	"album":    regexp.MustCompile(`/album/([a-zA-Z0-9]+)`),
	"playlist": regexp.MustCompile(`/playlist/([a-zA-Z0-9]+)`),
}

var rawIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// ExtractID normalizes a raw ID, share URL, or URI of the given kind
// down to the bare catalog identifier.
//
// Accepted forms:
//
//	4uLU6hMCjMI75M1A2tKUQC
//	https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc
//	spotify:track:4uLU6hMCjMI75M1A2tKUQC
func ExtractID(input, kind string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("empty %s identifier", kind)
	}

	// URI form: scheme:kind:id
	if parts := strings.Split(input, ":"); len(parts) == 3 {
		if parts[1] != kind {
			return "", fmt.Errorf("identifier %q is a %s, expected %s", input, parts[1], kind)
		}
		if !rawIDPattern.MatchString(parts[2]) {
			return "", fmt.Errorf("invalid %s identifier: %q", kind, input)
		}
		return parts[2], nil
	}

	// URL form
	if strings.Contains(input, "/") {
		pattern, ok := idPatterns[kind]
		if !ok {
			return "", fmt.Errorf("unknown identifier kind: %s", kind)
		}
		if m := pattern.FindStringSubmatch(input); m != nil {
			return m[1], nil
		}
		return "", fmt.Errorf("could not extract %s identifier from %q", kind, input)
	}

	if !rawIDPattern.MatchString(input) {
		return "", fmt.Errorf("invalid %s identifier: %q", kind, input)
	}
	return input, nil
}
