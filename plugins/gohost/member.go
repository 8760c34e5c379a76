package gohost

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wippyai/xcall/entity"
	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/plugin"
)

// memberBinding binds a field or attribute of the instance. Fields are
// exported struct fields; attributes are also map entries.
func (p *Plugin) memberBinding(req plugin.ResolveRequest) (call, error) {
	path := req.Entity
	_, name := path.Split()
	attr := path.Category == entity.CategoryAttribute

	if path.Has(entity.Getter) {
		return func(_ context.Context, args []any) ([]any, error) {
			obj, err := p.object(args[0])
			if err != nil {
				return nil, err
			}
			v, err := getMember(obj, name, attr)
			if err != nil {
				return nil, err
			}
			return []any{v}, nil
		}, nil
	}

	return func(ctx context.Context, args []any) ([]any, error) {
		obj, err := p.object(args[0])
		if err != nil {
			return nil, err
		}
		return nil, p.setMember(ctx, obj, name, args[1], attr)
	}, nil
}

func getMember(obj any, name string, attr bool) (any, error) {
	rv := reflect.ValueOf(obj)
	if attr && isStringMap(rv) {
		e := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !e.IsValid() {
			return nil, fmt.Errorf("%T has no attribute %s", obj, name)
		}
		return e.Interface(), nil
	}
	f, err := field(rv, name)
	if err != nil {
		return nil, err
	}
	return f.Interface(), nil
}

func (p *Plugin) setMember(ctx context.Context, obj any, name string, value any, attr bool) error {
	rv := reflect.ValueOf(obj)
	if attr && isStringMap(rv) {
		v, err := p.arg(ctx, value, rv.Type().Elem())
		if err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
		rv.SetMapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()), v)
		return nil
	}
	f, err := field(rv, name)
	if err != nil {
		return err
	}
	if !f.CanSet() {
		return fmt.Errorf("field %s of %T is not settable", name, obj)
	}
	v, err := p.arg(ctx, value, f.Type())
	if err != nil {
		return fmt.Errorf("field %s: %w", name, err)
	}
	f.Set(v)
	return nil
}

func field(rv reflect.Value, name string) (reflect.Value, error) {
	t := rv.Type()
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("instance %s is nil", t)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%s has no fields", t)
	}
	f := rv.FieldByName(name)
	if !f.IsValid() || !f.CanInterface() {
		return reflect.Value{}, fmt.Errorf("%s has no exported field %s", t, name)
	}
	return f, nil
}

func isStringMap(rv reflect.Value) bool {
	return rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String && !rv.IsNil()
}

// globalBinding binds a registered variable. Static fields and attributes
// resolve here as well.
func (p *Plugin) globalBinding(mod *module, req plugin.ResolveRequest) (call, error) {
	path := req.Entity
	ptr, ok := p.reg.global(mod, path.Name)
	if !ok {
		return nil, errors.BindingNotFound(req.ModulePath, path.String())
	}
	elem := ptr.Type().Elem()

	if path.Has(entity.Getter) {
		if !returnCompatible(req.Returns[0], elem) {
			return nil, errors.SignatureMismatch(errors.PhaseResolve, path.String(),
				fmt.Sprintf("%s cannot be read as %s", elem, req.Returns[0]))
		}
		return func(context.Context, []any) ([]any, error) {
			mod.mu.RLock()
			v := ptr.Elem().Interface()
			mod.mu.RUnlock()
			return []any{v}, nil
		}, nil
	}

	if !paramCompatible(req.Params[0], elem) {
		return nil, errors.SignatureMismatch(errors.PhaseResolve, path.String(),
			fmt.Sprintf("%s cannot be written from %s", elem, req.Params[0]))
	}
	return func(ctx context.Context, args []any) ([]any, error) {
		v, err := p.arg(ctx, args[0], elem)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", path.Name, err)
		}
		mod.mu.Lock()
		ptr.Elem().Set(v)
		mod.mu.Unlock()
		return nil, nil
	}, nil
}
