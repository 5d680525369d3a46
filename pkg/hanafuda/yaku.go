package hanafuda

// YakuName identifies a scoring combination.
type YakuName string

const (
	YakuGoko        YakuName = "GOKO"         // five brights
	YakuShiko       YakuName = "SHIKO"        // four brights without the rain man
	YakuAmeShiko    YakuName = "AME_SHIKO"    // four brights including the rain man
	YakuSanko       YakuName = "SANKO"        // three brights without the rain man
	YakuAkatan      YakuName = "AKATAN"       // the three poetry ribbons
	YakuAotan       YakuName = "AOTAN"        // the three blue ribbons
	YakuInoShikaCho YakuName = "INOSHIKACHO"  // boar, deer, butterfly
	YakuHanami      YakuName = "HANAMI_ZAKE"  // curtain + sake cup
	YakuTsukimi     YakuName = "TSUKIMI_ZAKE" // moon + sake cup
	YakuTane        YakuName = "TANE"         // five or more animals
	YakuTan         YakuName = "TAN"          // five or more ribbons
	YakuKasu        YakuName = "KASU"         // ten or more plains
)

// YakuResult is one held combination and its point value.
type YakuResult struct {
	Name   YakuName `json:"name"`
	Points int      `json:"points"`
}

// YakuSettings configures the catalog per game. Zero value enables every
// yaku at its default point value.
type YakuSettings struct {
	Disabled map[YakuName]bool
	Points   map[YakuName]int // overrides; missing entries use defaults
}

var defaultYakuPoints = map[YakuName]int{
	YakuGoko:        10,
	YakuShiko:       8,
	YakuAmeShiko:    7,
	YakuSanko:       5,
	YakuAkatan:      5,
	YakuAotan:       5,
	YakuInoShikaCho: 5,
	YakuHanami:      5,
	YakuTsukimi:     5,
	YakuTane:        1,
	YakuTan:         1,
	YakuKasu:        1,
}

func (s YakuSettings) enabled(name YakuName) bool {
	return !s.Disabled[name]
}

func (s YakuSettings) points(name YakuName) int {
	if p, ok := s.Points[name]; ok {
		return p
	}
	return defaultYakuPoints[name]
}

// DetectYaku evaluates a captured pile and returns every currently held
// yaku. It is a pure function of the depository; the caller compares
// successive results to decide whether a new combination was formed.
func DetectYaku(depository []Card, settings YakuSettings) []YakuResult {
	var results []YakuResult

	var brights, animals, ribbons, plains []Card
	for _, c := range depository {
		switch c.Type() {
		case Bright:
			brights = append(brights, c)
		case Animal:
			animals = append(animals, c)
		case Ribbon:
			ribbons = append(ribbons, c)
		case Plain:
			plains = append(plains, c)
		}
	}

	// The bright combinations are mutually exclusive; only the best one
	// counts.
	hasRain := containsCard(brights, RainMan)
	dry := len(brights)
	if hasRain {
		dry--
	}
	switch {
	case len(brights) == 5 && settings.enabled(YakuGoko):
		results = append(results, YakuResult{YakuGoko, settings.points(YakuGoko)})
	case dry == 4 && settings.enabled(YakuShiko):
		results = append(results, YakuResult{YakuShiko, settings.points(YakuShiko)})
	case len(brights) == 4 && hasRain && settings.enabled(YakuAmeShiko):
		results = append(results, YakuResult{YakuAmeShiko, settings.points(YakuAmeShiko)})
	case dry == 3 && settings.enabled(YakuSanko):
		results = append(results, YakuResult{YakuSanko, settings.points(YakuSanko)})
	}

	if settings.enabled(YakuAkatan) && holdsAll(depository, redRibbons) {
		results = append(results, YakuResult{YakuAkatan, settings.points(YakuAkatan)})
	}
	if settings.enabled(YakuAotan) && holdsAll(depository, blueRibbons) {
		results = append(results, YakuResult{YakuAotan, settings.points(YakuAotan)})
	}
	if settings.enabled(YakuInoShikaCho) && holdsAll(depository, []Card{Boar, Deer, Butterfly}) {
		results = append(results, YakuResult{YakuInoShikaCho, settings.points(YakuInoShikaCho)})
	}
	if settings.enabled(YakuHanami) && containsCard(depository, Curtain) && containsCard(depository, SakeCup) {
		results = append(results, YakuResult{YakuHanami, settings.points(YakuHanami)})
	}
	if settings.enabled(YakuTsukimi) && containsCard(depository, Moon) && containsCard(depository, SakeCup) {
		results = append(results, YakuResult{YakuTsukimi, settings.points(YakuTsukimi)})
	}

	// Counting yaku: base point plus one per card past the threshold.
	if settings.enabled(YakuTane) && len(animals) >= 5 {
		results = append(results, YakuResult{YakuTane, settings.points(YakuTane) + len(animals) - 5})
	}
	if settings.enabled(YakuTan) && len(ribbons) >= 5 {
		results = append(results, YakuResult{YakuTan, settings.points(YakuTan) + len(ribbons) - 5})
	}
	if settings.enabled(YakuKasu) && len(plains) >= 10 {
		results = append(results, YakuResult{YakuKasu, settings.points(YakuKasu) + len(plains) - 10})
	}

	return results
}

// TotalPoints sums the base score over a set of held yaku.
func TotalPoints(results []YakuResult) int {
	total := 0
	for _, r := range results {
		total += r.Points
	}
	return total
}

// ExtendsYaku reports whether after strictly extends the set of yaku names
// held in before. Point growth within an already held counting yaku does
// not count as an extension.
func ExtendsYaku(before, after []YakuResult) bool {
	held := make(map[YakuName]bool, len(before))
	for _, r := range before {
		held[r.Name] = true
	}
	for _, r := range after {
		if !held[r.Name] {
			return true
		}
	}
	return false
}

func holdsAll(depository []Card, wanted []Card) bool {
	for _, w := range wanted {
		if !containsCard(depository, w) {
			return false
		}
	}
	return true
}
