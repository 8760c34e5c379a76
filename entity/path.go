// Package entity parses the textual entity path that names a foreign
// callable, field, attribute or global together with its binding modifiers.
//
// Grammar (no whitespace, case-sensitive):
//
//	<category>=<name>[,<modifier>]*
//	category ∈ callable | field | attribute | global
//	modifier ∈ instance_required | named_args | varargs | getter | setter
//
// Examples:
//
//	callable=Foo.Bar,instance_required
//	field=X,instance_required,setter
//	global=TTL,getter
//
// Generated glue code embeds these strings literally, so the grammar and the
// canonical rendering are stable.
package entity

import (
	"strings"
	"unicode"

	"github.com/wippyai/xcall/errors"
)

// Category is the kind of foreign entity a path names.
type Category uint8

const (
	CategoryCallable Category = iota + 1
	CategoryField
	CategoryAttribute
	CategoryGlobal
)

var categoryNames = map[Category]string{
	CategoryCallable:  "callable",
	CategoryField:     "field",
	CategoryAttribute: "attribute",
	CategoryGlobal:    "global",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return "unknown"
}

// Modifier is one binding flag.
type Modifier uint8

const (
	InstanceRequired Modifier = 1 << iota
	NamedArgs
	Varargs
	Getter
	Setter
)

// modifierOrder is the canonical rendering order.
var modifierOrder = []struct {
	mod  Modifier
	name string
}{
	{InstanceRequired, "instance_required"},
	{NamedArgs, "named_args"},
	{Varargs, "varargs"},
	{Getter, "getter"},
	{Setter, "setter"},
}

// Modifiers is a set of Modifier flags.
type Modifiers uint8

// Has reports whether m contains mod.
func (m Modifiers) Has(mod Modifier) bool {
	return m&Modifiers(mod) != 0
}

// With returns m plus mod.
func (m Modifiers) With(mod Modifier) Modifiers {
	return m | Modifiers(mod)
}

// ConstructorName is the callable name that denotes a constructor.
const ConstructorName = "<init>"

// Path identifies a foreign entity and how to bind it.
type Path struct {
	Name      string
	Category  Category
	Modifiers Modifiers
}

// Parse reads an entity path. It fails with MalformedSpec when the category
// token is missing or unknown, the name is empty, a modifier is unknown or
// empty, whitespace appears, or getter and setter are both present.
func Parse(spec string) (Path, error) {
	if spec == "" {
		return Path{}, errors.MalformedSpec(spec, "empty entity path")
	}
	if strings.IndexFunc(spec, unicode.IsSpace) >= 0 {
		return Path{}, errors.MalformedSpec(spec, "whitespace is not allowed")
	}

	tokens := strings.Split(spec, ",")

	cat, name, ok := strings.Cut(tokens[0], "=")
	if !ok {
		return Path{}, errors.MalformedSpec(spec, "first token must be <category>=<name>")
	}

	var p Path
	for c, s := range categoryNames {
		if s == cat {
			p.Category = c
			break
		}
	}
	if p.Category == 0 {
		return Path{}, errors.MalformedSpec(spec, "unknown category "+cat)
	}
	if name == "" {
		return Path{}, errors.MalformedSpec(spec, "entity name is empty")
	}
	p.Name = name

	for _, tok := range tokens[1:] {
		mod, ok := modifierByName(tok)
		if !ok {
			if tok == "" {
				return Path{}, errors.MalformedSpec(spec, "empty modifier")
			}
			return Path{}, errors.MalformedSpec(spec, "unknown modifier "+tok)
		}
		p.Modifiers = p.Modifiers.With(mod)
	}

	if p.Has(Getter) && p.Has(Setter) {
		return Path{}, errors.MalformedSpec(spec, "getter and setter are mutually exclusive")
	}
	return p, nil
}

// MustParse is Parse for literals known to be valid; it panics otherwise.
func MustParse(spec string) Path {
	p, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the canonical form of p; Parse(p.String()) == p.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString(p.Category.String())
	b.WriteByte('=')
	b.WriteString(p.Name)
	for _, m := range modifierOrder {
		if p.Modifiers.Has(m.mod) {
			b.WriteByte(',')
			b.WriteString(m.name)
		}
	}
	return b.String()
}

// Has reports whether p carries mod.
func (p Path) Has(mod Modifier) bool {
	return p.Modifiers.Has(mod)
}

// IsConstructor reports whether p names a constructor callable, either
// "<init>" or "<Type>.<init>".
func (p Path) IsConstructor() bool {
	if p.Category != CategoryCallable {
		return false
	}
	_, member := p.Split()
	return member == ConstructorName
}

// Split separates a dotted name into owner and member at the last dot:
// "Foo.Bar" is ("Foo", "Bar"), "Bar" is ("", "Bar").
func (p Path) Split() (owner, member string) {
	i := strings.LastIndexByte(p.Name, '.')
	if i < 0 {
		return "", p.Name
	}
	return p.Name[:i], p.Name[i+1:]
}

// IsAccessor reports whether p binds a field, attribute or global.
func (p Path) IsAccessor() bool {
	return p.Category != CategoryCallable
}

// ExtraParams is the number of trailing collection handles: one for
// varargs (ordered list) and one for named_args (string-keyed map).
func (p Path) ExtraParams() int {
	n := 0
	if p.Has(Varargs) {
		n++
	}
	if p.Has(NamedArgs) {
		n++
	}
	return n
}

// ImplicitParams counts the parameters a binding takes beyond the entity's
// own: the instance handle and the trailing collection handles.
func (p Path) ImplicitParams() int {
	n := p.ExtraParams()
	if p.Has(InstanceRequired) {
		n++
	}
	return n
}

func modifierByName(s string) (Modifier, bool) {
	for _, m := range modifierOrder {
		if m.name == s {
			return m.mod, true
		}
	}
	return 0, false
}
