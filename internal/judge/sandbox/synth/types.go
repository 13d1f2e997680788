package synth

import (
	"strings"
	"sync"
)

// StrategyKind says how a raw JSON argument becomes the value handed to user code.
type StrategyKind int

const (
	// Passthrough hands the raw value over unchanged.
	Passthrough StrategyKind = iota
	// Construct invokes the named type's constructor with the raw value.
	Construct
	// ConstructEach constructs every non-null element of a raw array.
	ConstructEach
)

// Strategy is the resolved coercion for one declared parameter type.
type Strategy struct {
	Kind     StrategyKind
	TypeName string
}

var defaultPrimitives = []string{
	"number", "integer", "int", "float", "double", "long",
	"string", "char",
	"boolean", "bool",
	"object", "any", "map",
	"array",
	"null", "undefined", "void",
}

// TypeRegistry decides which declared types are primitives.
// Anything it does not know is a custom type constructed by name.
type TypeRegistry struct {
	mu         sync.RWMutex
	primitives map[string]struct{}
}

// NewTypeRegistry returns a registry seeded with the built-in primitive names plus aliases.
func NewTypeRegistry(aliases ...string) *TypeRegistry {
	r := &TypeRegistry{primitives: make(map[string]struct{}, len(defaultPrimitives)+len(aliases))}
	r.RegisterPrimitive(defaultPrimitives...)
	r.RegisterPrimitive(aliases...)
	return r
}

// RegisterPrimitive adds case-insensitive primitive aliases.
func (r *TypeRegistry) RegisterPrimitive(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			r.primitives[n] = struct{}{}
		}
	}
}

// Resolve maps a declared type to its coercion strategy.
func (r *TypeRegistry) Resolve(declared string) Strategy {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return Strategy{Kind: Passthrough}
	}

	if strings.Contains(declared, "|") {
		var custom string
		for _, part := range strings.Split(declared, "|") {
			s := r.Resolve(part)
			if s.Kind == Passthrough {
				continue
			}
			if custom != "" {
				// Ambiguous unions are handed over raw.
				return Strategy{Kind: Passthrough}
			}
			custom = s.TypeName
			if s.Kind == ConstructEach {
				return s
			}
		}
		if custom == "" {
			return Strategy{Kind: Passthrough}
		}
		return Strategy{Kind: Construct, TypeName: custom}
	}

	if elem, ok := elementType(declared); ok {
		inner := r.Resolve(elem)
		if inner.Kind == Construct {
			return Strategy{Kind: ConstructEach, TypeName: inner.TypeName}
		}
		return Strategy{Kind: Passthrough}
	}

	r.mu.RLock()
	_, primitive := r.primitives[strings.ToLower(declared)]
	r.mu.RUnlock()
	if primitive {
		return Strategy{Kind: Passthrough}
	}
	return Strategy{Kind: Construct, TypeName: declared}
}

// elementType unwraps T[], Array<T> and List<T> spellings.
func elementType(declared string) (string, bool) {
	if strings.HasSuffix(declared, "[]") {
		return strings.TrimSpace(strings.TrimSuffix(declared, "[]")), true
	}
	lt := strings.IndexByte(declared, '<')
	if lt > 0 && strings.HasSuffix(declared, ">") {
		switch strings.ToLower(strings.TrimSpace(declared[:lt])) {
		case "array", "list":
			return strings.TrimSpace(declared[lt+1 : len(declared)-1]), true
		}
	}
	return "", false
}
