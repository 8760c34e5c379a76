package entity

import (
	"errors"
	"testing"

	xerrors "github.com/wippyai/xcall/errors"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		spec      string
		category  Category
		name      string
		modifiers []Modifier
	}{
		{"callable=Foo.Bar,instance_required", CategoryCallable, "Foo.Bar", []Modifier{InstanceRequired}},
		{"field=X,instance_required,setter", CategoryField, "X", []Modifier{InstanceRequired, Setter}},
		{"global=TTL,getter", CategoryGlobal, "TTL", []Modifier{Getter}},
		{"attribute=name,getter", CategoryAttribute, "name", []Modifier{Getter}},
		{"callable=print,varargs,named_args", CategoryCallable, "print", []Modifier{Varargs, NamedArgs}},
		{"callable=HashMap.<init>", CategoryCallable, "HashMap.<init>", nil},
		{"callable=a=b", CategoryCallable, "a=b", nil},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			p, err := Parse(tt.spec)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if p.Category != tt.category {
				t.Errorf("Category = %s, want %s", p.Category, tt.category)
			}
			if p.Name != tt.name {
				t.Errorf("Name = %q, want %q", p.Name, tt.name)
			}
			var want Modifiers
			for _, m := range tt.modifiers {
				want = want.With(m)
			}
			if p.Modifiers != want {
				t.Errorf("Modifiers = %b, want %b", p.Modifiers, want)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	specs := []string{
		"",
		"Foo",
		"=Foo",
		"method=Foo",
		"Callable=Foo",
		"callable=",
		"callable=Foo,getter,setter",
		"field=X,setter,getter",
		"callable=Foo,static",
		"callable=Foo,",
		"callable=Foo,,getter",
		"callable=Foo, getter",
		"callable= Foo",
		"callable=Foo,Getter",
	}
	for _, spec := range specs {
		t.Run(spec, func(t *testing.T) {
			_, err := Parse(spec)
			if !errors.Is(err, xerrors.ErrMalformedSpec) {
				t.Fatalf("Parse(%q) error = %v, want malformed spec", spec, err)
			}
		})
	}
}

func TestRender_RoundTrip(t *testing.T) {
	specs := []string{
		"callable=Foo.Bar,instance_required",
		"field=X,instance_required,setter",
		"global=TTL,getter",
		"callable=f,varargs,instance_required,named_args",
		"callable=f,getter,getter",
		"attribute=a,setter",
	}
	for _, spec := range specs {
		p, err := Parse(spec)
		if err != nil {
			t.Fatalf("Parse(%q): %v", spec, err)
		}
		again, err := Parse(p.String())
		if err != nil {
			t.Fatalf("Parse(render(%q)) = %q: %v", spec, p.String(), err)
		}
		if again != p {
			t.Errorf("render(parse(%q)) = %q is not equivalent", spec, p.String())
		}
	}

	p := MustParse("callable=f,varargs,instance_required,named_args")
	if got := p.String(); got != "callable=f,instance_required,named_args,varargs" {
		t.Errorf("canonical order = %q", got)
	}
}

func TestPath_Helpers(t *testing.T) {
	p := MustParse("callable=java.util.HashMap.<init>")
	if !p.IsConstructor() {
		t.Error("expected constructor")
	}
	owner, member := p.Split()
	if owner != "java.util.HashMap" || member != "<init>" {
		t.Errorf("Split = %q, %q", owner, member)
	}

	if MustParse("field=<init>,getter").IsConstructor() {
		t.Error("fields are never constructors")
	}

	v := MustParse("callable=f,instance_required,varargs,named_args")
	if v.ExtraParams() != 2 {
		t.Errorf("ExtraParams = %d", v.ExtraParams())
	}
	if v.ImplicitParams() != 3 {
		t.Errorf("ImplicitParams = %d", v.ImplicitParams())
	}
}

func TestMustParse_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustParse("callable=Foo,getter,setter")
}

func TestCheckShape(t *testing.T) {
	tests := []struct {
		spec     string
		params   int
		returns  int
		wantKind xerrors.Kind
	}{
		{"field=X,instance_required,getter", 1, 1, ""},
		{"field=X,getter", 0, 1, ""},
		{"field=X,getter", 1, 1, xerrors.KindSignatureMismatch},
		{"field=X,getter", 0, 0, xerrors.KindSignatureMismatch},
		{"field=X,instance_required,setter", 2, 0, ""},
		{"field=X,setter", 1, 0, ""},
		{"field=X,setter", 1, 1, xerrors.KindSignatureMismatch},
		{"field=X", 0, 1, xerrors.KindMalformedSpec},
		{"attribute=X,getter,varargs", 1, 1, xerrors.KindMalformedSpec},
		{"global=TTL,getter", 0, 1, ""},
		{"global=TTL,instance_required,getter", 1, 1, xerrors.KindMalformedSpec},
		{"callable=<init>", 2, 1, ""},
		{"callable=Foo.<init>", 0, 0, xerrors.KindSignatureMismatch},
		{"callable=Foo.<init>,instance_required", 1, 1, xerrors.KindMalformedSpec},
		{"callable=f,instance_required", 0, 0, xerrors.KindSignatureMismatch},
		{"callable=f,instance_required,varargs", 2, 1, ""},
		{"callable=f", 0, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := MustParse(tt.spec).CheckShape(tt.params, tt.returns)
			if got := xerrors.KindOf(err); got != tt.wantKind {
				t.Errorf("CheckShape(%d, %d) kind = %q (%v), want %q", tt.params, tt.returns, got, err, tt.wantKind)
			}
		})
	}
}
