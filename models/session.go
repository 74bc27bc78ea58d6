package models

type RealtimeSessionPostRequest struct {
	Model string `json:"model,omitempty"`
	Voice string `json:"voice,omitempty"`
}
