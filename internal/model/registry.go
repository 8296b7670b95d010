package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// AutoEngine picks the engine from the model file extension.
const AutoEngine = "auto"

var ErrUnknownEngine = errors.New("unknown inference engine")

var (
	enginesMu sync.RWMutex
	engines   = make(map[string]Engine)
)

// Register makes an engine available by name. It panics on a duplicate
// name or a nil engine, like database/sql drivers.
func Register(e Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	if e == nil {
		panic("model: Register engine is nil")
	}
	name := e.Name()
	if _, dup := engines[name]; dup {
		panic("model: Register called twice for engine " + name)
	}
	engines[name] = e
}

// Unregister removes an engine. Used by tests that register fakes.
func Unregister(name string) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	delete(engines, name)
}

func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Lookup(name string) (Engine, error) {
	enginesMu.RLock()
	e, ok := engines[name]
	enginesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownEngine, name, strings.Join(Engines(), ", "))
	}
	return e, nil
}

// preferred orders engines that share a file format. Engines missing from
// the list are tried afterwards in name order.
var preferred = []string{"onnxruntime", "tensorflow", "gorgonnx"}

// Resolve returns the named engine, or for AutoEngine the preferred
// registered engine that parses modelPath's extension.
func Resolve(name, modelPath string) (Engine, error) {
	if name != "" && name != AutoEngine {
		return Lookup(name)
	}

	ext := strings.ToLower(filepath.Ext(modelPath))
	for _, n := range autoOrder() {
		e, err := Lookup(n)
		if err != nil {
			continue
		}
		for _, candidate := range e.Extensions() {
			if candidate == ext {
				return e, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no engine handles %q files", ErrUnknownEngine, ext)
}

func autoOrder() []string {
	registered := Engines()
	order := make([]string, 0, len(registered))
	seen := make(map[string]bool, len(registered))
	for _, n := range preferred {
		for _, r := range registered {
			if r == n {
				order = append(order, n)
				seen[n] = true
			}
		}
	}
	for _, r := range registered {
		if !seen[r] {
			order = append(order, r)
		}
	}
	return order
}
