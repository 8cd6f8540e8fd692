// Package deck loads and validates the ordered card list fed to the engine.
package deck

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jason-s-yu/hitline/internal/models"
	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyDeck   = errors.New("deck has no cards")
	ErrInvalidCard = errors.New("invalid card")
)

type file struct {
	Cards []models.Card `json:"cards" yaml:"cards"`
}

// Load reads a deck file. Files ending in .json are decoded as JSON, anything
// else as YAML. Both a bare list of cards and a {cards: [...]} document are accepted.
func Load(path string) ([]models.Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deck %s: %w", path, err)
	}
	cards, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, fmt.Errorf("deck %s: %w", path, err)
	}
	return cards, nil
}

// Parse decodes and validates deck bytes.
func Parse(data []byte, isJSON bool) ([]models.Card, error) {
	var cards []models.Card
	if isJSON {
		if err := json.Unmarshal(data, &cards); err != nil {
			var f file
			if err2 := json.Unmarshal(data, &f); err2 != nil {
				return nil, fmt.Errorf("decode json: %w", err)
			}
			cards = f.Cards
		}
	} else {
		if err := yaml.Unmarshal(data, &cards); err != nil {
			var f file
			if err2 := yaml.Unmarshal(data, &f); err2 != nil {
				return nil, fmt.Errorf("decode yaml: %w", err)
			}
			cards = f.Cards
		}
	}
	if err := Validate(cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// Validate checks that the deck is non-empty and every card has a title, artist and positive year.
func Validate(cards []models.Card) error {
	if len(cards) == 0 {
		return ErrEmptyDeck
	}
	for i, c := range cards {
		switch {
		case strings.TrimSpace(c.Title) == "":
			return fmt.Errorf("%w at %d: missing title", ErrInvalidCard, i)
		case strings.TrimSpace(c.Artist) == "":
			return fmt.Errorf("%w at %d (%q): missing artist", ErrInvalidCard, i, c.Title)
		case c.Year <= 0:
			return fmt.Errorf("%w at %d (%q): year %d", ErrInvalidCard, i, c.Title, c.Year)
		}
	}
	return nil
}
