package loader

import (
	"fmt"
	"strings"
)

// Variant selects the chainloader layout expected by a phone model.
type Variant int

const (
	C123 Variant = iota + 1
	C123xor
	C140
	C140xor
)

// Variants lists every supported phone variant.
var Variants = []Variant{C123, C123xor, C140, C140xor}

func (v Variant) String() string {
	switch v {
	case C123:
		return "c123"
	case C123xor:
		return "c123xor"
	case C140:
		return "c140"
	case C140xor:
		return "c140xor"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ParseVariant accepts the names returned by String, case insensitively.
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants {
		if strings.EqualFold(s, v.String()) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

func (v Variant) valid() bool {
	return v >= C123 && v <= C140xor
}

func (v Variant) usesXOR() bool {
	return v == C123xor || v == C140xor
}

func (v Variant) usesMagic() bool {
	return v == C140 || v == C140xor
}

func (v Variant) MarshalText() ([]byte, error) {
	if !v.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, int(v))
	}
	return []byte(v.String()), nil
}

func (v *Variant) UnmarshalText(text []byte) error {
	parsed, err := ParseVariant(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Set and Type make *Variant usable as a command line flag value.
func (v *Variant) Set(s string) error {
	return v.UnmarshalText([]byte(s))
}

func (v *Variant) Type() string {
	return "variant"
}
