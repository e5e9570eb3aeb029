// pylower inspects archives of lowered host methods.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/chazu/pylower/catalog"
	"github.com/chazu/pylower/host"
	"github.com/chazu/pylower/host/wire"
	"github.com/chazu/pylower/manifest"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("pylower.cmd")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(fs *flag.FlagSet, stderr io.Writer) func() {
	return func() {
		fmt.Fprintf(stderr, "Usage: pylower [options] <command> [args]\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		fmt.Fprintf(stderr, "  disasm FILE             Disassemble every method in an archive\n")
		fmt.Fprintf(stderr, "  verify FILE             Run the stack verifier over an archive\n")
		fmt.Fprintf(stderr, "  hash FILE               Print the content hash of each method\n")
		fmt.Fprintf(stderr, "  catalog [-manifest DIR] List the configured catalog types\n")
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pylower", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Int("v", -1, "Log verbosity (overrides [log] verbosity)")
	fs.Usage = usage(fs, stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	verbosity := 0
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if m != nil {
		verbosity = m.Log.Verbosity
	}
	if *verbose >= 0 {
		verbosity = *verbose
	}
	commonlog.Configure(verbosity, nil)

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "disasm":
		err = withArchive(rest, func(a *wire.Archive) error { return disasm(stdout, a) })
	case "verify":
		err = withArchive(rest, func(a *wire.Archive) error { return verify(stdout, a) })
	case "hash":
		err = withArchive(rest, func(a *wire.Archive) error { return hash(stdout, a) })
	case "catalog":
		err = listCatalog(rest, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func withArchive(args []string, f func(*wire.Archive) error) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one archive file")
	}
	a, err := wire.ReadFile(args[0])
	if err != nil {
		return err
	}
	log.Infof("read %s: unit %q, %d methods", args[0], a.Unit, len(a.Methods))
	return f(a)
}

func disasm(w io.Writer, a *wire.Archive) error {
	for i, m := range a.Methods {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s.%s max_stack=%d max_locals=%d\n", m.Owner, m.Name, m.MaxStack, m.MaxLocals)
		fmt.Fprintln(w, m.Disassemble())
	}
	return nil
}

func verify(w io.Writer, a *wire.Archive) error {
	failed := 0
	for _, m := range a.Methods {
		declared := m.MaxStack
		if err := host.Verify(m); err != nil {
			fmt.Fprintf(w, "FAIL %s.%s: %v\n", m.Owner, m.Name, err)
			failed++
			continue
		}
		if declared != 0 && declared != m.MaxStack {
			fmt.Fprintf(w, "FAIL %s.%s: max_stack %d, verifier computed %d\n", m.Owner, m.Name, declared, m.MaxStack)
			failed++
			continue
		}
		fmt.Fprintf(w, "ok   %s.%s max_stack=%d\n", m.Owner, m.Name, m.MaxStack)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d methods failed verification", failed, len(a.Methods))
	}
	return nil
}

func hash(w io.Writer, a *wire.Archive) error {
	for _, m := range a.Methods {
		h, err := wire.Hash(m)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s  %s.%s\n", hex.EncodeToString(h[:]), m.Owner, m.Name)
	}
	return nil
}

func listCatalog(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("manifest", ".", "Directory to search for pylower.toml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		return err
	}
	var r *catalog.Registry
	if m == nil {
		log.Info("no pylower.toml found, listing builtins only")
		r = catalog.NewRegistry()
	} else {
		if r, err = m.Registry(); err != nil {
			return err
		}
	}

	types := r.Types()
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	for _, t := range types {
		base := ""
		if t.Base != nil {
			base = t.Base.Name
		}
		fmt.Fprintf(stdout, "%-24s %-32s %s\n", t.Name, t.Host, base)
	}
	return nil
}
