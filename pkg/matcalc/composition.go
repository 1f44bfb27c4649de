package matcalc

import (
	"fmt"
	"strings"
)

// Mode selects how enter-composition interprets a value.
type Mode string

const (
	MoleFraction   Mode = "X"
	WeightFraction Mode = "W"
	SiteFraction   Mode = "U"
)

// String returns the long name of the mode.
func (m Mode) String() string {
	switch m {
	case MoleFraction:
		return "mole"
	case WeightFraction:
		return "weight"
	case SiteFraction:
		return "site"
	default:
		return string(m)
	}
}

// ParseMode accepts mole|weight|site or the engine letters X|W|U, in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mole", "x":
		return MoleFraction, nil
	case "weight", "w":
		return WeightFraction, nil
	case "site", "u":
		return SiteFraction, nil
	default:
		return "", fmt.Errorf("unknown composition mode %q (want mole, weight or site)", s)
	}
}

// CompositionCommand builds the engine command that sets one element
// fraction. Values use the shortest %g rendering, e.g. 0.01 or 1e-05.
func CompositionCommand(mode Mode, element string, value float64) string {
	return fmt.Sprintf("enter-composition %s %s=%g", string(mode), element, value)
}

// SetElementFraction forwards CompositionCommand through ExecuteCommand and
// shares its error semantics.
func (a *API) SetElementFraction(mode Mode, element string, value float64) error {
	return a.ExecuteCommand(CompositionCommand(mode, element, value))
}

// SetElementMoleFraction sets the mole fraction of element.
func (a *API) SetElementMoleFraction(element string, value float64) error {
	return a.SetElementFraction(MoleFraction, element, value)
}

// SetElementWeightFraction sets the weight fraction of element.
func (a *API) SetElementWeightFraction(element string, value float64) error {
	return a.SetElementFraction(WeightFraction, element, value)
}

// SetElementSiteFraction sets the site fraction of element.
func (a *API) SetElementSiteFraction(element string, value float64) error {
	return a.SetElementFraction(SiteFraction, element, value)
}
