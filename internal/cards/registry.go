// Package cards is the process-wide registry of panel cards a host can
// discover. Cards register themselves from init functions; the first lookup
// seals the registry and any later registration panics.
package cards

import (
	"fmt"
	"sort"
	"sync"
)

// Card describes one registered panel.
type Card struct {
	Type        string
	Name        string
	Description string
}

var (
	mu     sync.Mutex
	cards  = map[string]Card{}
	sealed bool
)

// MustRegister adds a card. It panics on a duplicate type or when called
// after the registry has been read.
func MustRegister(c Card) {
	mu.Lock()
	defer mu.Unlock()

	if sealed {
		panic(fmt.Sprintf("cards: register %q after first lookup", c.Type))
	}
	if c.Type == "" {
		panic("cards: empty card type")
	}
	if _, dup := cards[c.Type]; dup {
		panic(fmt.Sprintf("cards: duplicate card type %q", c.Type))
	}
	cards[c.Type] = c
}

// Lookup returns the card registered under typ.
func Lookup(typ string) (Card, bool) {
	mu.Lock()
	defer mu.Unlock()
	sealed = true
	c, ok := cards[typ]
	return c, ok
}

// All returns every card sorted by type.
func All() []Card {
	mu.Lock()
	defer mu.Unlock()
	sealed = true

	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
