// weft - weaves advice method bodies into compiled JVM class files
//
// Build: go build ./cmd/weft
// Usage:
//   weft -advice Advice.class Target.class ...      # weave into classes
//   weft -advice Advice.class -disasm Target.class  # show woven code
//   weft Target.class                               # config from weft.toml
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/weft/manifest"
	"github.com/chazu/weft/pkg/advice"
	"github.com/chazu/weft/pkg/classfile"
	"github.com/chazu/weft/pkg/report"
)

var log = commonlog.GetLogger("weft")

func main() {
	advicePath := flag.String("advice", "", "Path to the compiled advice class")
	output := flag.String("o", "", "Output directory for woven classes (default from weft.toml, else 'woven')")
	methods := flag.String("methods", "", "Comma-separated method names to weave (default: all concrete methods)")
	noExceptional := flag.Bool("no-exceptional", false, "Do not route thrown exceptions through the exit advice")
	suppress := flag.String("suppress", "", "Internal name of a throwable type to suppress inside advice bodies")
	enterMarker := flag.String("enter-marker", "", "Override the enter marker annotation internal name")
	exitMarker := flag.String("exit-marker", "", "Override the exit marker annotation internal name")
	reportPath := flag.String("report", "", "Write a CBOR weave report to this path")
	disasm := flag.Bool("disasm", false, "Print a disassembly of each woven class instead of writing it")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: weft [options] [class files...]\n\n")
		fmt.Fprintf(os.Stderr, "Weaves the marked advice methods of an advice class into the given class files.\n")
		fmt.Fprintf(os.Stderr, "Options left unset fall back to the nearest weft.toml.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fatalf("loading weft.toml: %v", err)
	}

	opts := advice.DefaultOptions()
	targets := flag.Args()
	outDir := *output
	if m != nil {
		opts.ExceptionalInvocation = m.Advice.ExceptionalOrDefault()
		opts.SuppressedThrowable = m.Advice.Suppress
		opts.Markers = advice.MarkerSet{Enter: m.Markers.Enter, Exit: m.Markers.Exit}
		if *advicePath == "" {
			*advicePath = filepath.Join(m.Dir, m.Advice.Class)
		}
		if len(targets) == 0 {
			for _, c := range m.Target.Classes {
				targets = append(targets, filepath.Join(m.Dir, c))
			}
		}
		if outDir == "" {
			outDir = m.Target.Output
		}
		if *reportPath == "" && m.Report.Output != "" {
			*reportPath = filepath.Join(m.Dir, m.Report.Output)
		}
	}
	if *noExceptional {
		opts.ExceptionalInvocation = false
	}
	if *suppress != "" {
		opts.SuppressedThrowable = *suppress
	}
	if *enterMarker != "" {
		opts.Markers.Enter = *enterMarker
	}
	if *exitMarker != "" {
		opts.Markers.Exit = *exitMarker
	}
	if outDir == "" {
		outDir = "woven"
	}

	if *advicePath == "" {
		fmt.Fprintf(os.Stderr, "weft: no advice class given (use -advice or weft.toml)\n")
		flag.Usage()
		os.Exit(2)
	}
	if len(targets) == 0 {
		fmt.Fprintf(os.Stderr, "weft: no target class files given\n")
		flag.Usage()
		os.Exit(2)
	}

	adviceBytes, err := os.ReadFile(*advicePath)
	if err != nil {
		fatalf("reading advice class: %v", err)
	}
	composed, err := advice.Compose(adviceBytes, opts)
	if err != nil {
		fatalf("composing advice: %v", err)
	}
	log.Infof("composed advice from %s (enter=%v exit=%v)",
		*advicePath, composed.Enter().Active(), composed.Exit().Active())

	matcher := methodMatcher(*methods, m)

	rep := &report.WeaveReport{
		AdviceClass: *advicePath,
		EnterType:   composed.EnterType().Descriptor,
		Exceptional: opts.ExceptionalInvocation,
		Suppressed:  opts.SuppressedThrowable,
		GeneratedAt: time.Now().UTC(),
	}

	for _, target := range targets {
		in, err := os.ReadFile(target)
		if err != nil {
			fatalf("reading %s: %v", target, err)
		}
		out, woven, err := composed.WeaveClass(in, matcher)
		if err != nil {
			fatalf("weaving %s: %v", target, err)
		}
		cf, err := classfile.Parse(out)
		if err != nil {
			fatalf("re-parsing woven %s: %v", target, err)
		}
		log.Infof("wove %d method(s) in %s", len(woven), cf.ThisClass)

		if *disasm {
			fmt.Printf("// %s\n", target)
			if err := classfile.Disassemble(cf, os.Stdout); err != nil {
				fatalf("disassembling %s: %v", target, err)
			}
		} else {
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				fatalf("creating %s: %v", outDir, err)
			}
			dest := filepath.Join(outDir, filepath.Base(target))
			if err := os.WriteFile(dest, out, 0o644); err != nil {
				fatalf("writing %s: %v", dest, err)
			}
			log.Infof("wrote %s", dest)
		}

		cr := report.ClassReport{Name: cf.ThisClass, Input: target}
		for _, w := range woven {
			cr.Methods = append(cr.Methods, report.MethodReport{
				Name:       w.Name,
				Descriptor: w.Descriptor,
				SlotShift:  w.SlotShift,
				SizeBefore: w.SizeBefore,
				SizeAfter:  w.SizeAfter,
			})
		}
		rep.Classes = append(rep.Classes, cr)
	}

	if *reportPath != "" {
		if err := report.Write(*reportPath, rep); err != nil {
			fatalf("%v", err)
		}
		log.Infof("wrote report %s", *reportPath)
	}
}

// methodMatcher combines the -methods flag with the manifest's [target]
// method filters. Flag values win when both are present.
func methodMatcher(flagValue string, m *manifest.Manifest) func(name, descriptor string) bool {
	if flagValue != "" {
		names := strings.Split(flagValue, ",")
		return func(name, _ string) bool {
			for _, n := range names {
				if strings.TrimSpace(n) == name {
					return true
				}
			}
			return false
		}
	}
	if m != nil {
		return func(name, _ string) bool { return m.MatchesMethod(name) }
	}
	return nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "weft: "+format+"\n", args...)
	os.Exit(1)
}
