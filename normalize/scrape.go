package normalize

import (
	"regexp"
	"strings"
)

type imagePattern struct {
	re       *regexp.Regexp
	urlGroup int
}

// Checked in order, the first pattern that matches wins.
var imagePatterns = []imagePattern{
	{re: regexp.MustCompile(`(?i)!\[.*?\]\((https?://.*?\.(?:png|jpg|jpeg|gif))\)`), urlGroup: 1},
	{re: regexp.MustCompile(`(?i)\[(.*?)\]\((https?://.*?\.(?:png|jpg|jpeg|gif))\)`), urlGroup: 2},
	{re: regexp.MustCompile(`(?i)(https?://\S+\.(?:png|jpg|jpeg|gif))\b`), urlGroup: 1},
	{re: regexp.MustCompile(`(?i)\((https?://.*?\.(?:png|jpg|jpeg|gif))\)`), urlGroup: 1},
}

// ExtractEmbeddedImage finds the first image URL embedded in markdown text. It returns the
// URL and the text with the matched markup removed.
func ExtractEmbeddedImage(content string) (url, remaining string, ok bool) {
	for _, p := range imagePatterns {
		m := p.re.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		return m[p.urlGroup], strings.TrimSpace(strings.Replace(content, m[0], "", 1)), true
	}
	return "", content, false
}
