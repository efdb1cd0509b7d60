package dto

type PersonaResponse struct {
	Id           string   `json:"id"`
	DisplayName  string   `json:"display_name"`
	Role         string   `json:"role"`
	Aliases      []string `json:"aliases,omitempty"`
	Grounded     bool     `json:"grounded"`
	Mediator     bool     `json:"mediator"`
	Expertise    []string `json:"expertise"`
	Tone         string   `json:"tone"`
	MentionNames []string `json:"mention_names"`
}
