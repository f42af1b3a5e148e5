package game

import (
	"fmt"
	"strings"
)

// Color identifies a seat. Seats are ordered RED, BLUE, WHITE, ORANGE.
type Color string

const (
	Red    Color = "RED"
	Blue   Color = "BLUE"
	White  Color = "WHITE"
	Orange Color = "ORANGE"
)

// SeatOrder is the order seats are assigned in.
var SeatOrder = []Color{Red, Blue, White, Orange}

// MaxSeats is the largest supported table.
const MaxSeats = 4

// ParseColor converts a case-insensitive color name.
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range SeatOrder {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown color %q", s)
}

func (c Color) String() string { return string(c) }

// Resource is one of the five producible resources.
type Resource int

const (
	Wood Resource = iota
	Brick
	Sheep
	Wheat
	Ore
)

// NumResources is the number of resource kinds.
const NumResources = 5

var resourceNames = [NumResources]string{"WOOD", "BRICK", "SHEEP", "WHEAT", "ORE"}

// Resources lists every resource kind in canonical order.
var Resources = []Resource{Wood, Brick, Sheep, Wheat, Ore}

func (r Resource) String() string {
	if r < 0 || int(r) >= NumResources {
		return fmt.Sprintf("Resource(%d)", int(r))
	}
	return resourceNames[r]
}

// ParseResource converts a case-insensitive resource name.
func ParseResource(s string) (Resource, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range resourceNames {
		if name == up {
			return Resource(i), nil
		}
	}
	return 0, fmt.Errorf("unknown resource %q", s)
}

func (r Resource) MarshalText() ([]byte, error) {
	if r < 0 || int(r) >= NumResources {
		return nil, fmt.Errorf("invalid resource %d", int(r))
	}
	return []byte(resourceNames[r]), nil
}

func (r *Resource) UnmarshalText(b []byte) error {
	parsed, err := ParseResource(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ResourceVector counts cards per resource, indexed by Resource.
type ResourceVector [NumResources]int

// Single returns a vector holding n of one resource.
func Single(r Resource, n int) ResourceVector {
	var v ResourceVector
	v[r] = n
	return v
}

func (v ResourceVector) Add(o ResourceVector) ResourceVector {
	for i := range v {
		v[i] += o[i]
	}
	return v
}

func (v ResourceVector) Sub(o ResourceVector) ResourceVector {
	for i := range v {
		v[i] -= o[i]
	}
	return v
}

// Total is the number of cards in the vector.
func (v ResourceVector) Total() int {
	n := 0
	for _, c := range v {
		n += c
	}
	return n
}

// Covers reports whether v holds at least the amounts in cost.
func (v ResourceVector) Covers(cost ResourceVector) bool {
	for i := range v {
		if v[i] < cost[i] {
			return false
		}
	}
	return true
}

func (v ResourceVector) IsZero() bool { return v == ResourceVector{} }

func (v ResourceVector) hasNegative() bool {
	for _, c := range v {
		if c < 0 {
			return true
		}
	}
	return false
}

// nth returns the resource of the i-th card when the vector is laid out in
// canonical order. i must be in [0, Total()).
func (v ResourceVector) nth(i int) Resource {
	for r, c := range v {
		if i < c {
			return Resource(r)
		}
		i -= c
	}
	panic("resource index out of range")
}

func (v ResourceVector) String() string {
	var parts []string
	for r, c := range v {
		if c > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c, Resource(r)))
		}
	}
	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, ", ")
}

var (
	SettlementCost  = ResourceVector{1, 1, 1, 1, 0}
	CityCost        = ResourceVector{0, 0, 0, 2, 3}
	DevelopmentCost = ResourceVector{0, 0, 1, 1, 1}
)
