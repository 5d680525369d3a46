package hanafuda

import (
	"fmt"
)

// CardType classifies a hanafuda card within its month.
type CardType int

const (
	Bright CardType = 1
	Animal CardType = 2
	Ribbon CardType = 3
	Plain  CardType = 4
)

// String returns the lowercase name used on the wire.
func (t CardType) String() string {
	switch t {
	case Bright:
		return "bright"
	case Animal:
		return "animal"
	case Ribbon:
		return "ribbon"
	case Plain:
		return "plain"
	}
	return "unknown"
}

// Card identifies one of the 48 hanafuda cards by its four character code
// MMTI: MM is the month (01-12), T the card type (1=bright, 2=animal,
// 3=ribbon, 4=plain) and I the index within that (month, type) pair.
// The code is also the JSON wire representation.
type Card string

// Month returns the card's month, 1 through 12.
func (c Card) Month() int {
	return int(c[0]-'0')*10 + int(c[1]-'0')
}

// Type returns the card's type digit.
func (c Card) Type() CardType {
	return CardType(c[2] - '0')
}

// Index returns the card's index within its (month, type) pair.
func (c Card) Index() int {
	return int(c[3] - '0')
}

// Matches reports whether two cards pair up on the field. Hanafuda cards
// match if and only if they share a month.
func (c Card) Matches(other Card) bool {
	return c.Month() == other.Month()
}

// monthTypes lists the card types present in each month, January first.
// Every month holds exactly four cards.
var monthTypes = [12][]CardType{
	{Bright, Ribbon, Plain, Plain},         // January: crane, poetry ribbon
	{Animal, Ribbon, Plain, Plain},         // February: bush warbler
	{Bright, Ribbon, Plain, Plain},         // March: curtain
	{Animal, Ribbon, Plain, Plain},         // April: cuckoo
	{Animal, Ribbon, Plain, Plain},         // May: bridge
	{Animal, Ribbon, Plain, Plain},         // June: butterfly, blue ribbon
	{Animal, Ribbon, Plain, Plain},         // July: boar
	{Bright, Animal, Plain, Plain},         // August: moon, geese
	{Animal, Ribbon, Plain, Plain},         // September: sake cup, blue ribbon
	{Animal, Ribbon, Plain, Plain},         // October: deer, blue ribbon
	{Bright, Animal, Ribbon, Plain},        // November: rain man, swallow
	{Bright, Plain, Plain, Plain},          // December: phoenix
}

// AllCards is the full 48 card catalog in month order.
var AllCards = buildCatalog()

func buildCatalog() []Card {
	catalog := make([]Card, 0, 48)
	for m := 1; m <= 12; m++ {
		idx := map[CardType]int{}
		for _, t := range monthTypes[m-1] {
			idx[t]++
			catalog = append(catalog, Card(fmt.Sprintf("%02d%d%d", m, t, idx[t])))
		}
	}
	return catalog
}

var catalogSet = func() map[Card]bool {
	set := make(map[Card]bool, len(AllCards))
	for _, c := range AllCards {
		set[c] = true
	}
	return set
}()

// ParseCard validates a wire code against the catalog.
func ParseCard(code string) (Card, error) {
	if len(code) != 4 {
		return "", fmt.Errorf("card code must be 4 characters, got %q", code)
	}
	c := Card(code)
	if !catalogSet[c] {
		return "", fmt.Errorf("unknown card code %q", code)
	}
	return c, nil
}

// Named cards referenced by yaku definitions.
const (
	Crane      Card = "0111" // January bright
	Curtain    Card = "0311" // March bright
	Moon       Card = "0811" // August bright
	RainMan    Card = "1111" // November bright
	Phoenix    Card = "1211" // December bright
	SakeCup    Card = "0921" // September animal
	Boar       Card = "0721"
	Deer       Card = "1021"
	Butterfly  Card = "0621"
)

// poetry (red) and blue ribbons for the ribbon yaku
var redRibbons = []Card{"0131", "0231", "0331"}
var blueRibbons = []Card{"0631", "0931", "1031"}

func containsCard(cards []Card, target Card) bool {
	for _, c := range cards {
		if c == target {
			return true
		}
	}
	return false
}

func removeCard(cards []Card, target Card) []Card {
	for i, c := range cards {
		if c == target {
			return append(cards[:i:i], cards[i+1:]...)
		}
	}
	return cards
}

func sameMonth(cards []Card, ref Card) []Card {
	var out []Card
	for _, c := range cards {
		if c.Matches(ref) {
			out = append(out, c)
		}
	}
	return out
}
