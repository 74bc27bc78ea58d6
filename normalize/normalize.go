// Package normalize turns workflow responses into the ordered message list shown to the user.
package normalize

import (
	"slices"

	"github.com/a-h/agentui/models"
)

const (
	ImageOnlyContent  = "Here is the image you requested:"
	NoMessagesContent = "Received response but no messages were found in the data."
)

type Options struct {
	// ScrapeEmbeddedImages moves image URLs found in AI message text into the message metadata.
	ScrapeEmbeddedImages bool
}

type Result struct {
	Messages []models.ChatMessage
	// Image is the image returned by the workflow, or the last one scraped from message text.
	Image string
	// FromHistory is true when the workflow supplied the message list, which then replaces local history.
	FromHistory bool
}

func Normalize(resp models.RelayResponse, opts Options) (r Result) {
	r.Image = resp.Image
	switch {
	case resp.HasMessages:
		r.Messages = slices.Clone(resp.Messages)
		if r.Messages == nil {
			r.Messages = []models.ChatMessage{}
		}
		r.FromHistory = true
		if resp.Image != "" {
			if i := LastNonHuman(r.Messages); i >= 0 {
				r.Messages[i] = r.Messages[i].WithImageURL(resp.Image)
			}
		}
	case resp.Image != "":
		r.Messages = []models.ChatMessage{models.NewAIMessage(ImageOnlyContent, resp.Image)}
	default:
		r.Messages = []models.ChatMessage{models.NewAIMessage(NoMessagesContent, "")}
	}
	if opts.ScrapeEmbeddedImages {
		scraped := scrape(r.Messages)
		if r.Image == "" {
			r.Image = scraped
		}
	}
	return r
}

// LastNonHuman returns the index of the last message not authored by the user, or -1.
func LastNonHuman(msgs []models.ChatMessage) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role() != models.RoleHuman {
			return i
		}
	}
	return -1
}

// scrape updates msgs in place and returns the last URL found.
func scrape(msgs []models.ChatMessage) (last string) {
	for i, m := range msgs {
		if m.Role() != models.RoleAI || m.ImageURL() != "" || m.Content() == "" {
			continue
		}
		url, content, ok := ExtractEmbeddedImage(m.Content())
		if !ok {
			continue
		}
		m = m.WithImageURL(url)
		m.Kwargs.Content = content
		msgs[i] = m
		last = url
	}
	return last
}
