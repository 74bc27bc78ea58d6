package models

type CompletionsPostRequest struct {
	Prompt string   `json:"prompt,omitempty"`
	Images []string `json:"images,omitempty"`
}

type CompletionsPostResponse struct {
	Output string `json:"output"`
}
