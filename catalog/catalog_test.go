package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/pylower/host"
)

func TestBuiltinBaseChains(t *testing.T) {
	tests := []struct {
		typ, base *Type
		want      bool
	}{
		{Bool, Int, true},
		{Bool, Object, true},
		{Int, Bool, false},
		{StopIteration, BaseException, true},
		{BoundFunction, Function, true},
		{Str, Int, false},
	}
	for _, tt := range tests {
		if got := tt.typ.IsSubtypeOf(tt.base); got != tt.want {
			t.Errorf("%s.IsSubtypeOf(%s) = %v, want %v", tt.typ, tt.base, got, tt.want)
		}
	}
}

func TestDefiningType(t *testing.T) {
	tests := []struct {
		typ  *Type
		name string
		want *Type
	}{
		{Int, "__eq__", Int},
		{Bool, "__eq__", Int},
		{List, "__eq__", Object},
		{List, "__add__", nil},
	}
	for _, tt := range tests {
		if got := tt.typ.DefiningType(tt.name); got != tt.want {
			t.Errorf("%s.DefiningType(%q) = %v, want %v", tt.typ, tt.name, got, tt.want)
		}
	}
}

func TestDerivedHostMethod(t *testing.T) {
	sig, ok := Int.Method("__add__")
	if !ok {
		t.Fatal("int has no __add__")
	}
	want := "pyrt/Int.__add__(pyrt/Int)pyrt/Int"
	if got := sig.Method.Key(); got != want {
		t.Errorf("host method = %q, want %q", got, want)
	}
	if sig.Opcode() != host.OpINVOKEVIRTUAL {
		t.Errorf("opcode = %s, want INVOKEVIRTUAL", sig.Opcode())
	}
}

func TestVariadicHostParams(t *testing.T) {
	tp := NewType("Box", "user/Box", Object)
	sig := tp.AddMethod(NewSignature("make", ClassMethod, tp,
		Param{Name: "a", Type: Int}).WithVarArgs().WithVarKwargs())

	want := []string{TypeType.Host, Int.Host, Tuple.Host, Dict.Host}
	if strings.Join(sig.Method.Params, " ") != strings.Join(want, " ") {
		t.Errorf("params = %v, want %v", sig.Method.Params, want)
	}
	if sig.VarArgs != 1 || sig.VarKwargs != 2 {
		t.Errorf("varargs, varkwargs = %d, %d; want 1, 2", sig.VarArgs, sig.VarKwargs)
	}
	if sig.Opcode() != host.OpINVOKESTATIC {
		t.Errorf("opcode = %s, want INVOKESTATIC", sig.Opcode())
	}
	if got := sig.String(); got != "Box.make(a: int, *args, **kwargs) -> Box [classmethod]" {
		t.Errorf("String() = %q", got)
	}
}

func TestAccepts(t *testing.T) {
	sig := NewSignature("f", Virtual, Object,
		Param{Name: "a", Type: Int},
		Param{Name: "b", Type: Str, Nullable: true})

	tests := []struct {
		args []*Type
		want bool
	}{
		{[]*Type{Int}, true},
		{[]*Type{Bool, Str}, true},
		{[]*Type{Str}, false},
		{[]*Type{}, false},
		{[]*Type{Int, Str, Int}, false},
	}
	for _, tt := range tests {
		if got := sig.Accepts(tt.args...); got != tt.want {
			t.Errorf("Accepts(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup(Int, "__add__"); !ok {
		t.Error("int.__add__ not found")
	}
	if _, ok := r.Lookup(Bool, "__add__"); !ok {
		t.Error("bool.__add__ not inherited")
	}
	if _, ok := r.Lookup(Object, "__eq__"); ok {
		t.Error("lookup on object specialized")
	}
	if _, ok := r.Lookup(List, "__eq__"); ok {
		t.Error("list.__eq__ resolved to the object default")
	}
	if _, ok := (Dynamic{}).Lookup(Int, "__add__"); ok {
		t.Error("dynamic catalog specialized")
	}
	if err := r.Register(NewType("int", "x/Int", Object)); err == nil {
		t.Error("duplicate registration succeeded")
	}
}

const pointCatalog = `
[[type]]
name = "Point3"
host = "user/Point3"
base = "Point"

[[type]]
name = "Point"
host = "user/Point"

[[type.field]]
name = "x"
type = "int"

[[type.method]]
name = "__add__"
returns = "Point"
not-implemented = true

[[type.method.param]]
name = "other"
type = "Point"

[[type.method]]
name = "scale"
returns = "Point"
varkwargs = true

[[type.method.param]]
name = "k"
type = "int"
default = "user/Point.ONE"
`

func TestLoad(t *testing.T) {
	r := NewRegistry()
	if err := Load(r, []byte(pointCatalog)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	p, ok := r.Type("Point")
	if !ok {
		t.Fatal("Point not registered")
	}
	p3, _ := r.Type("Point3")
	if p3.Base != p {
		t.Errorf("Point3 base = %v, want Point", p3.Base)
	}
	if p.Base != Object {
		t.Errorf("Point base = %v, want object", p.Base)
	}

	f, ok := p3.Field("x")
	if !ok {
		t.Fatal("inherited field x not found")
	}
	if f.Host.Key() != "user/Point.x:pyrt/Int" {
		t.Errorf("field host = %q", f.Host.Key())
	}

	add, ok := r.Lookup(p3, "__add__")
	if !ok {
		t.Fatal("__add__ not found")
	}
	if !add.MayReturnNotImplemented {
		t.Error("__add__ not marked not-implemented")
	}
	if add.Method.Key() != "user/Point.__add__(user/Point)user/Point" {
		t.Errorf("__add__ host = %q", add.Method.Key())
	}

	scale, _ := p.Method("scale")
	if scale.VarKwargs != 1 {
		t.Errorf("scale varkwargs = %d, want 1", scale.VarKwargs)
	}
	d := scale.Params[0].Default
	if d == nil || d.Owner != "user/Point" || d.Name != "ONE" || d.Type != Int.Host {
		t.Errorf("scale default = %+v", d)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name, src, want string
	}{
		{"missing host", "[[type]]\nname = \"A\"\n", "name and host"},
		{"unknown base", "[[type]]\nname = \"A\"\nhost = \"u/A\"\nbase = \"Nope\"\n", "unknown type"},
		{"duplicate", "[[type]]\nname = \"A\"\nhost = \"u/A\"\n[[type]]\nname = \"A\"\nhost = \"u/B\"\n", "declared twice"},
		{"builtin clash", "[[type]]\nname = \"int\"\nhost = \"u/I\"\n", "already registered"},
		{"cycle", "[[type]]\nname = \"A\"\nhost = \"u/A\"\nbase = \"B\"\n[[type]]\nname = \"B\"\nhost = \"u/B\"\nbase = \"A\"\n", "cyclic"},
		{"bad kind", "[[type]]\nname = \"A\"\nhost = \"u/A\"\n[[type.method]]\nname = \"f\"\nkind = \"weird\"\n", "unknown call kind"},
		{"bad default", "[[type]]\nname = \"A\"\nhost = \"u/A\"\n[[type.method]]\nname = \"f\"\n[[type.method.param]]\nname = \"p\"\ndefault = \"NODOT\"\n", "not Owner.Name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Load(NewRegistry(), []byte(tt.src))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "types.toml")
	if err := os.WriteFile(path, []byte(pointCatalog), 0644); err != nil {
		t.Fatal(err)
	}
	r := NewRegistry()
	if err := LoadFile(r, path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if _, ok := r.Type("Point3"); !ok {
		t.Error("Point3 not registered")
	}
	if err := LoadFile(r, filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("LoadFile of a missing file succeeded")
	}
}
