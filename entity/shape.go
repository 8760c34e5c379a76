package entity

import (
	"fmt"

	"github.com/wippyai/xcall/errors"
)

// CheckShape validates the parameter and return counts a binding of p
// declares. Bindings are checked before any plugin looks the entity up, so
// every runtime enforces the same accessor and constructor rules:
//
//   - field, attribute and global paths need exactly one of getter or setter
//     and take neither varargs nor named_args
//   - a getter takes only the instance (if required) and returns one value
//   - a setter takes the instance (if required) plus the value and returns nothing
//   - globals never require an instance
//   - a constructor cannot require an instance and returns exactly one value
//   - any other callable takes at least its implicit parameters
func (p Path) CheckShape(params, returns int) error {
	spec := p.String()
	if p.IsAccessor() {
		if p.Has(Getter) == p.Has(Setter) {
			return errors.MalformedSpec(spec, fmt.Sprintf("%s entity must be getter or setter", p.Category))
		}
		if p.Has(Varargs) || p.Has(NamedArgs) {
			return errors.MalformedSpec(spec, "accessors take no varargs or named_args")
		}
		if p.Category == CategoryGlobal && p.Has(InstanceRequired) {
			return errors.MalformedSpec(spec, "globals cannot require an instance")
		}

		inst := 0
		if p.Has(InstanceRequired) {
			inst = 1
		}
		if p.Has(Getter) {
			if params != inst {
				return countMismatch(spec, "getter parameters", inst, params)
			}
			if returns != 1 {
				return countMismatch(spec, "getter return values", 1, returns)
			}
			return nil
		}
		if params != inst+1 {
			return countMismatch(spec, "setter parameters", inst+1, params)
		}
		if returns != 0 {
			return countMismatch(spec, "setter return values", 0, returns)
		}
		return nil
	}

	if p.IsConstructor() {
		if p.Has(InstanceRequired) {
			return errors.MalformedSpec(spec, "constructor cannot require instance")
		}
		if returns != 1 {
			return countMismatch(spec, "constructor return values", 1, returns)
		}
	}
	if params < p.ImplicitParams() {
		return countMismatch(spec, "implicit parameters", p.ImplicitParams(), params)
	}
	return nil
}

func countMismatch(spec, what string, want, got int) error {
	return errors.SignatureMismatch(errors.PhaseResolve, spec, fmt.Sprintf("%s: expected %d, declared %d", what, want, got))
}
