package expression

import (
	"fmt"
	"strings"

	"rnadiff/domain/core"
)

// Contrast compares two levels of a factor; log2 fold changes are
// Numerator over Denominator.
type Contrast struct {
	Factor      string `json:"factor"`
	Numerator   string `json:"numerator"`
	Denominator string `json:"denominator"`
}

// FactorName returns the tested factor, defaulting to the group label
func (c Contrast) FactorName() string {
	if c.Factor == "" {
		return FactorGroup
	}
	return c.Factor
}

// Validate checks that the contrast names two different levels
func (c Contrast) Validate() error {
	if strings.TrimSpace(c.Numerator) == "" || strings.TrimSpace(c.Denominator) == "" {
		return core.NewDesignError("contrast needs two levels")
	}
	if c.Numerator == c.Denominator {
		return core.NewDesignError(fmt.Sprintf("contrast compares %q with itself", c.Numerator))
	}
	return nil
}

func (c Contrast) String() string {
	return fmt.Sprintf("%s: %s vs %s", c.FactorName(), c.Numerator, c.Denominator)
}

// ParseContrast reads "treated:control" or "group:treated:control"
func ParseContrast(s string) (Contrast, error) {
	parts := strings.Split(s, ":")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	var c Contrast
	switch len(parts) {
	case 2:
		c = Contrast{Factor: FactorGroup, Numerator: parts[0], Denominator: parts[1]}
	case 3:
		c = Contrast{Factor: parts[0], Numerator: parts[1], Denominator: parts[2]}
	default:
		return c, core.NewDesignError(fmt.Sprintf("contrast %q: expected [factor:]numerator:denominator", s))
	}
	return c, c.Validate()
}
