package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/parloop/parloop/internal/core/loop"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"
)

// ErrUnknownKernel is returned when no loaded script defines the function.
var ErrUnknownKernel = errors.New("unknown kernel")

// Engine runs loop kernels written in Lua. An LState is not safe for
// concurrent use, so the engine keeps one VM per worker and hands them out
// per kernel call. Every VM runs the same compiled scripts.
type Engine struct {
	protos []*lua.FunctionProto
	pool   chan *lua.LState
	all    []*lua.LState
	log    *zap.Logger
}

// NewEngine compiles all .lua files in scriptsDir and starts size VMs.
func NewEngine(scriptsDir string, size int, log *zap.Logger) (*Engine, error) {
	if size < 1 {
		size = 1
	}
	protos, err := compileDir(scriptsDir, log)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		protos: protos,
		pool:   make(chan *lua.LState, size),
		all:    make([]*lua.LState, 0, size),
		log:    log,
	}
	for i := 0; i < size; i++ {
		vm, err := e.newVM()
		if err != nil {
			e.Close()
			return nil, err
		}
		e.all = append(e.all, vm)
		e.pool <- vm
	}
	return e, nil
}

func (e *Engine) newVM() (*lua.LState, error) {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	for _, proto := range e.protos {
		vm.Push(vm.NewFunctionFromProto(proto))
		if err := vm.PCall(0, lua.MultRet, nil); err != nil {
			vm.Close()
			return nil, fmt.Errorf("run %s: %w", proto.SourceName, err)
		}
	}
	return vm, nil
}

// compileDir parses every .lua file once, in name order.
func compileDir(dir string, log *zap.Logger) ([]*lua.FunctionProto, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var protos []*lua.FunctionProto
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		proto, err := compileFile(path)
		if err != nil {
			return nil, err
		}
		protos = append(protos, proto)
		log.Debug("loaded lua script", zap.String("file", path))
	}
	return protos, nil
}

func compileFile(path string) (*lua.FunctionProto, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	chunk, err := parse.Parse(f, path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	return proto, nil
}

// Size returns the number of VMs.
func (e *Engine) Size() int { return cap(e.pool) }

// Has reports whether a global function called name exists.
func (e *Engine) Has(name string) bool {
	vm := <-e.pool
	defer func() { e.pool <- vm }()
	_, ok := vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// Kernel returns a loop kernel calling the global Lua function name. Each
// argument is passed as a flat 1-based table of Count*Dim numbers; tables
// of writing arguments are copied back after the call.
func (e *Engine) Kernel(name string) (loop.Kernel, error) {
	if !e.Has(name) {
		return nil, fmt.Errorf("lua %q: %w", name, ErrUnknownKernel)
	}
	return func(args []loop.Arg) error {
		vm := <-e.pool
		defer func() { e.pool <- vm }()
		return call(vm, name, args)
	}, nil
}

func call(vm *lua.LState, name string, args []loop.Arg) error {
	fn := vm.GetGlobal(name)
	tables := make([]lua.LValue, len(args))
	for i, a := range args {
		tables[i] = toTable(vm, a)
	}
	if err := vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, tables...); err != nil {
		return fmt.Errorf("lua %s: %w", name, err)
	}
	for i, a := range args {
		if !a.Mode.Writes() {
			continue
		}
		if err := fromTable(tables[i].(*lua.LTable), a); err != nil {
			return fmt.Errorf("lua %s arg %d: %w", name, i, err)
		}
	}
	return nil
}

func toTable(vm *lua.LState, a loop.Arg) *lua.LTable {
	n := a.Len()
	t := vm.CreateTable(n, 0)
	switch buf := a.Raw().(type) {
	case []float64:
		for _, v := range buf[:n] {
			t.Append(lua.LNumber(v))
		}
	case []float32:
		for _, v := range buf[:n] {
			t.Append(lua.LNumber(v))
		}
	case []int32:
		for _, v := range buf[:n] {
			t.Append(lua.LNumber(v))
		}
	case []int64:
		for _, v := range buf[:n] {
			t.Append(lua.LNumber(v))
		}
	}
	return t
}

func fromTable(t *lua.LTable, a loop.Arg) error {
	n := a.Len()
	get := func(i int) (float64, error) {
		v, ok := t.RawGetInt(i + 1).(lua.LNumber)
		if !ok {
			return 0, fmt.Errorf("element %d is not a number", i+1)
		}
		return float64(v), nil
	}
	switch buf := a.Raw().(type) {
	case []float64:
		for i := 0; i < n; i++ {
			v, err := get(i)
			if err != nil {
				return err
			}
			buf[i] = v
		}
	case []float32:
		for i := 0; i < n; i++ {
			v, err := get(i)
			if err != nil {
				return err
			}
			buf[i] = float32(v)
		}
	case []int32:
		for i := 0; i < n; i++ {
			v, err := get(i)
			if err != nil {
				return err
			}
			buf[i] = int32(v)
		}
	case []int64:
		for i := 0; i < n; i++ {
			v, err := get(i)
			if err != nil {
				return err
			}
			buf[i] = int64(v)
		}
	}
	return nil
}

// Close shuts down every VM.
func (e *Engine) Close() {
	for _, vm := range e.all {
		vm.Close()
	}
	e.all = nil
}
