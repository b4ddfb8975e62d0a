package wasmgen

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func TestWriterLEB128(t *testing.T) {
	tests := []struct {
		name  string
		write func(*Writer)
		want  []byte
	}{
		{"u32 zero", func(w *Writer) { w.WriteU32(0) }, []byte{0x00}},
		{"u32 127", func(w *Writer) { w.WriteU32(127) }, []byte{0x7f}},
		{"u32 128", func(w *Writer) { w.WriteU32(128) }, []byte{0x80, 0x01}},
		{"u32 624485", func(w *Writer) { w.WriteU32(624485) }, []byte{0xe5, 0x8e, 0x26}},
		{"s32 -1", func(w *Writer) { w.WriteS32(-1) }, []byte{0x7f}},
		{"s32 63", func(w *Writer) { w.WriteS32(63) }, []byte{0x3f}},
		{"s32 64", func(w *Writer) { w.WriteS32(64) }, []byte{0xc0, 0x00}},
		{"s64 -123456", func(w *Writer) { w.WriteS64(-123456) }, []byte{0xc0, 0xbb, 0x78}},
		{"name", func(w *Writer) { w.WriteName("rdk") }, []byte{0x03, 'r', 'd', 'k'}},
		{"u32 le", func(w *Writer) { w.WriteU32LE(Magic) }, []byte{0x00, 'a', 's', 'm'}},
		{"f64 one", func(w *Writer) { w.WriteF64(1) }, []byte{0, 0, 0, 0, 0, 0, 0xf0, 0x3f}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter()
			tt.write(w)
			if !bytes.Equal(w.Bytes(), tt.want) {
				t.Errorf("got % x, want % x", w.Bytes(), tt.want)
			}
		})
	}
}

func TestAddTypeDeduplicates(t *testing.T) {
	m := &Module{}
	a := m.AddType(FuncType{Params: []ValType{ValI32}, Results: []ValType{ValI32}})
	b := m.AddType(FuncType{Params: []ValType{ValI32}, Results: []ValType{ValI32}})
	c := m.AddType(FuncType{Params: []ValType{ValI64}})
	if a != b || a == c {
		t.Fatalf("type indices a=%d b=%d c=%d", a, b, c)
	}
	if len(m.Types) != 2 {
		t.Fatalf("expected 2 types, got %d", len(m.Types))
	}
}

func TestEncodeHeader(t *testing.T) {
	got := (&Module{}).Encode()
	want := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x", got)
	}
}

func TestEncodedModuleRuns(t *testing.T) {
	ctx := context.Background()

	m := &Module{}
	hostDouble := m.AddImport("env", "double", FuncType{
		Params:  []ValType{ValI32},
		Results: []ValType{ValI32},
	})
	m.Memories = append(m.Memories, Limits{Min: 1})
	m.ExportMemory("memory")

	add := m.AddFunc(FuncType{
		Params:  []ValType{ValI32, ValI32},
		Results: []ValType{ValI32},
	}, NewCode().LocalGet(0).LocalGet(1).I32Add().Body())
	m.Export("add", add)

	// sum(n) = 1 + 2 + ... + n, using block/loop/br_if.
	const n, acc = 0, 1
	sum := m.AddFunc(FuncType{
		Params:  []ValType{ValI32},
		Results: []ValType{ValI32},
	}, NewCode().
		Block().
		Loop().
		LocalGet(n).I32Eqz().BrIf(1).
		LocalGet(acc).LocalGet(n).I32Add().LocalSet(acc).
		LocalGet(n).I32Const(1).I32Sub().LocalSet(n).
		Br(0).
		End().
		End().
		LocalGet(acc).
		Body(Local{Count: 1, ValType: ValI32}))
	m.Export("sum", sum)

	// store(addr, v) writes double(v) to memory and reads it back.
	store := m.AddFunc(FuncType{
		Params:  []ValType{ValI32, ValI32},
		Results: []ValType{ValI32},
	}, NewCode().
		LocalGet(0).LocalGet(1).Call(hostDouble).I32Store(4).
		LocalGet(0).I32Load(4).
		Body())
	m.Export("store", store)

	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	_, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = uint64(api.EncodeI32(api.DecodeI32(stack[0]) * 2))
		}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("double").
		Instantiate(ctx)
	if err != nil {
		t.Fatalf("host module: %v", err)
	}

	mod, err := r.Instantiate(ctx, m.Encode())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	call := func(name string, args ...uint64) uint32 {
		t.Helper()
		res, err := mod.ExportedFunction(name).Call(ctx, args...)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		return uint32(res[0])
	}

	if got := call("add", 2, 3); got != 5 {
		t.Errorf("add(2, 3) = %d", got)
	}
	if got := call("sum", 10); got != 55 {
		t.Errorf("sum(10) = %d", got)
	}
	if got := call("store", 100, 21); got != 42 {
		t.Errorf("store(100, 21) = %d", got)
	}
	if v, ok := mod.Memory().ReadUint32Le(104); !ok || v != 42 {
		t.Errorf("memory[104] = %d, %v", v, ok)
	}
}
