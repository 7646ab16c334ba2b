package tui

import "github.com/muurk/hubcfg/internal/cards"

// CardType is the registered type of the configuration panel.
const CardType = "eedomus-config-panel-card"

func init() {
	cards.MustRegister(cards.Card{
		Type:        CardType,
		Name:        "Eedomus Configuration Panel",
		Description: "Manage dynamic update flags per entity type and per device",
	})
}
