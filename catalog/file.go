package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/chazu/pylower/host"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("pylower.catalog")

// File is the TOML form of a catalog file.
type File struct {
	Types []FileType `toml:"type"`
}

// FileType declares one type.
type FileType struct {
	Name    string       `toml:"name"`
	Host    string       `toml:"host"`
	Base    string       `toml:"base"`
	Fields  []FileField  `toml:"field"`
	Methods []FileMethod `toml:"method"`
}

// FileField declares a field-backed attribute.
type FileField struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

// FileMethod declares a method signature.
type FileMethod struct {
	Name           string      `toml:"name"`
	Kind           string      `toml:"kind"`
	Returns        string      `toml:"returns"`
	Params         []FileParam `toml:"param"`
	VarArgs        bool        `toml:"varargs"`
	VarKwargs      bool        `toml:"varkwargs"`
	NotImplemented bool        `toml:"not-implemented"`
}

// FileParam declares a parameter. Default names a static field as
// "Owner.Name", where Owner is a host class.
type FileParam struct {
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	Default  string `toml:"default"`
	Nullable bool   `toml:"nullable"`
}

// LoadFile reads a catalog file and registers its types in r.
func LoadFile(r *Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog: cannot read %s: %w", path, err)
	}
	if err := Load(r, data); err != nil {
		return fmt.Errorf("catalog: %s: %w", path, err)
	}
	return nil
}

// Load parses catalog TOML and registers its types in r. Types may refer
// to each other in any order within one file.
func Load(r *Registry, data []byte) error {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	// Pass 1: create every type so bases, fields and params can refer
	// forward.
	local := make(map[string]*Type, len(f.Types))
	for _, ft := range f.Types {
		if ft.Name == "" || ft.Host == "" {
			return fmt.Errorf("type needs both name and host")
		}
		if _, dup := local[ft.Name]; dup {
			return fmt.Errorf("type %q declared twice", ft.Name)
		}
		if _, exists := r.Type(ft.Name); exists {
			return fmt.Errorf("type %q already registered", ft.Name)
		}
		local[ft.Name] = NewType(ft.Name, ft.Host, nil)
	}
	resolve := func(name string) (*Type, error) {
		if name == "" {
			return Object, nil
		}
		if t, ok := local[name]; ok {
			return t, nil
		}
		if t, ok := r.Type(name); ok {
			return t, nil
		}
		return nil, fmt.Errorf("unknown type %q", name)
	}

	// Pass 2: bases, fields and methods.
	for _, ft := range f.Types {
		t := local[ft.Name]
		base, err := resolve(ft.Base)
		if err != nil {
			return fmt.Errorf("type %s: base: %w", ft.Name, err)
		}
		t.Base = base
		for _, ff := range ft.Fields {
			typ, err := resolve(ff.Type)
			if err != nil {
				return fmt.Errorf("type %s: field %s: %w", ft.Name, ff.Name, err)
			}
			t.AddField(ff.Name, typ)
		}
		for _, fm := range ft.Methods {
			sig, err := fm.signature(resolve)
			if err != nil {
				return fmt.Errorf("type %s: method %s: %w", ft.Name, fm.Name, err)
			}
			t.AddMethod(sig)
		}
	}
	for _, ft := range f.Types {
		seen := make(map[*Type]bool)
		for c := local[ft.Name]; c != nil; c = c.Base {
			if seen[c] {
				return fmt.Errorf("type %s: base chain is cyclic", ft.Name)
			}
			seen[c] = true
		}
	}

	for _, ft := range f.Types {
		if err := r.Register(local[ft.Name]); err != nil {
			return err
		}
		log.Debug("registered type", "name", ft.Name, "host", ft.Host,
			"fields", len(ft.Fields), "methods", len(ft.Methods))
	}
	return nil
}

func (fm FileMethod) signature(resolve func(string) (*Type, error)) (*Signature, error) {
	kind, err := ParseCallKind(fm.Kind)
	if err != nil {
		return nil, err
	}
	ret, err := resolve(fm.Returns)
	if err != nil {
		return nil, fmt.Errorf("returns: %w", err)
	}
	params := make([]Param, 0, len(fm.Params))
	for _, fp := range fm.Params {
		typ, err := resolve(fp.Type)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", fp.Name, err)
		}
		p := Param{Name: fp.Name, Type: typ, Nullable: fp.Nullable}
		if fp.Default != "" {
			i := strings.LastIndexByte(fp.Default, '.')
			if i <= 0 || i == len(fp.Default)-1 {
				return nil, fmt.Errorf("param %s: default %q is not Owner.Name", fp.Name, fp.Default)
			}
			p.Default = &host.FieldRef{Owner: fp.Default[:i], Name: fp.Default[i+1:], Type: typ.Host}
		}
		params = append(params, p)
	}
	sig := NewSignature(fm.Name, kind, ret, params...)
	if fm.VarArgs {
		sig.WithVarArgs()
	}
	if fm.VarKwargs {
		sig.WithVarKwargs()
	}
	if fm.NotImplemented {
		sig.NotImplementedPossible()
	}
	return sig, nil
}
