package models

// Card is a single deck entry. Decks are validated before they reach the engine.
type Card struct {
	Title  string `json:"title" yaml:"title"`
	Artist string `json:"artist" yaml:"artist"`
	Year   int    `json:"year" yaml:"year"`
}
