package groupsize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind distinguishes the three accepted shapes of a players-per-group constraint.
type Kind int

const (
	// Unset means the app does not group players (multiple of 1).
	Unset Kind = iota
	// Fixed is a single group size k >= 1.
	Fixed
	// Roles is a list of per-role counts whose sum is the group size
	// (e.g. 2 buyers + 3 sellers).
	Roles
)

func (k Kind) String() string {
	switch k {
	case Unset:
		return "unset"
	case Fixed:
		return "fixed"
	case Roles:
		return "roles"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Spec is an app's players-per-group constraint.
// The zero value is Unset.
type Spec struct {
	kind  Kind
	size  int
	roles []int
}

// None returns the Unset constraint.
func None() Spec {
	return Spec{}
}

// Of returns a Fixed constraint. Panics if n < 1; use Parse for author input.
func Of(n int) Spec {
	if n < 1 {
		panic(fmt.Sprintf("groupsize.Of: size must be >= 1, got %d", n))
	}
	return Spec{kind: Fixed, size: n}
}

// OfRoles returns a Roles constraint. Panics on an empty list or a
// non-positive entry; use Parse for author input.
func OfRoles(counts ...int) Spec {
	if len(counts) == 0 {
		panic("groupsize.OfRoles: at least one role count is required")
	}
	total := 0
	for _, c := range counts {
		if c < 1 {
			panic(fmt.Sprintf("groupsize.OfRoles: role count must be >= 1, got %d", c))
		}
		total += c
	}
	roles := make([]int, len(counts))
	copy(roles, counts)
	return Spec{kind: Roles, size: total, roles: roles}
}

// Kind reports the constraint shape.
func (s Spec) Kind() Kind { return s.kind }

// RoleCounts returns a copy of the per-role counts (nil unless Kind is Roles).
func (s Spec) RoleCounts() []int {
	if s.kind != Roles {
		return nil
	}
	out := make([]int, len(s.roles))
	copy(out, s.roles)
	return out
}

// String renders the constraint the way an author would write it.
func (s Spec) String() string {
	switch s.kind {
	case Fixed:
		return strconv.Itoa(s.size)
	case Roles:
		parts := make([]string, len(s.roles))
		for i, r := range s.roles {
			parts[i] = strconv.Itoa(r)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "none"
	}
}

// SpecError reports a players-per-group value that is not an integer,
// a list of integers, or null.
type SpecError struct {
	Value   any
	Message string
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("invalid players_per_group %v: %s", e.Value, e.Message)
}

// Parse converts a decoded manifest value into a Spec.
//
// Accepted: nil or 0 (Unset), a positive integer (Fixed), or a non-empty
// list of positive integers (Roles). YAML decodes integers as int while JSON
// and CUE produce float64, so integral floats are accepted.
func Parse(v any) (Spec, error) {
	switch val := v.(type) {
	case nil:
		return None(), nil
	case Spec:
		return val, nil
	case []int:
		anys := make([]any, len(val))
		for i, n := range val {
			anys[i] = n
		}
		return parseList(v, anys)
	case []any:
		return parseList(v, val)
	}

	n, err := toInt(v)
	if err != nil {
		return Spec{}, &SpecError{Value: v, Message: err.Error()}
	}
	switch {
	case n == 0:
		return None(), nil
	case n < 0:
		return Spec{}, &SpecError{Value: v, Message: "group size must be >= 1"}
	default:
		return Spec{kind: Fixed, size: n}, nil
	}
}

func parseList(orig any, items []any) (Spec, error) {
	if len(items) == 0 {
		return Spec{}, &SpecError{Value: orig, Message: "role list must not be empty"}
	}
	counts := make([]int, len(items))
	total := 0
	for i, item := range items {
		n, err := toInt(item)
		if err != nil {
			return Spec{}, &SpecError{Value: orig, Message: fmt.Sprintf("role %d: %v", i, err)}
		}
		if n < 1 {
			return Spec{}, &SpecError{Value: orig, Message: fmt.Sprintf("role %d: count must be >= 1", i)}
		}
		counts[i] = n
		total += n
	}
	return Spec{kind: Roles, size: total, roles: counts}, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case bool:
		return 0, fmt.Errorf("boolean is not a group size")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// MinimumMultiple returns the smallest participant count the constraint
// accepts: k for Fixed, the role sum for Roles, 1 for Unset.
func MinimumMultiple(s Spec) int {
	switch s.kind {
	case Fixed, Roles:
		return s.size
	default:
		return 1
	}
}

// SessionMinimumMultiple folds LCM over each spec's minimum multiple,
// left to right. An empty list yields 1.
func SessionMinimumMultiple(specs ...Spec) int {
	result := 1
	for _, s := range specs {
		result = LCM(result, MinimumMultiple(s))
	}
	return result
}

// GCD returns the greatest common divisor using Euclid's algorithm.
func GCD(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// LCM returns the least common multiple of two positive integers.
func LCM(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / GCD(a, b) * b
}
