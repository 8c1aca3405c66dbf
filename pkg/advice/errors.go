// Package advice implements a bytecode-weaving engine for JVM class files.
// An advice class supplies blueprint method bodies marked as enter and exit
// advice; the engine splices translated copies of those bodies into another
// method at entry, at every normal return, and optionally on the exceptional
// path, keeping slots, verification frames and the exception table valid.
package advice

import (
	"errors"
	"fmt"
)

// The three failure classes. Every error returned by this package wraps
// exactly one of them, so callers can sort failures with errors.Is without
// string matching.
var (
	// ErrComposition covers invalid advice class shape: missing or duplicate
	// markers, non-static advice methods, conflicting or illegal parameter
	// bindings. Reported by Compose.
	ErrComposition = errors.New("advice composition error")

	// ErrBinding covers bindings that only fail against a concrete
	// instrumented method: out-of-range parameter index, receiver binding on
	// a static method, type mismatch, missing field. Reported when a weave
	// starts, before any code is emitted.
	ErrBinding = errors.New("advice binding error")

	// ErrStructural covers failures while rewriting: weaving an abstract or
	// native method, a store through a read-only binding, advice code the
	// translator cannot carry across class files.
	ErrStructural = errors.New("structural weave error")
)

func compositionErrf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrComposition, fmt.Sprintf(format, args...))
}

func bindingErrf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBinding, fmt.Sprintf(format, args...))
}

func structuralErrf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStructural, fmt.Sprintf(format, args...))
}
