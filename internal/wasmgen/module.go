package wasmgen

import "slices"

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Import is a function import.
type Import struct {
	Module  string
	Name    string
	TypeIdx uint32
}

// Export names an exported function or memory.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Limits bounds a memory in pages.
type Limits struct {
	Max *uint32
	Min uint32
}

// Local declares Count locals of one type.
type Local struct {
	Count   uint32
	ValType ValType
}

// Body is a function body. Code must end with OpEnd.
type Body struct {
	Locals []Local
	Code   []byte
}

// Module is the encodable subset of a core module.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32
	Memories []Limits
	Exports  []Export
	Code     []Body
}

// AddType appends ft unless an identical type exists and returns its index.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if slices.Equal(t.Params, ft.Params) && slices.Equal(t.Results, ft.Results) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// AddImport appends a function import and returns its function index.
// Imports must be added before any defined function.
func (m *Module) AddImport(module, name string, ft FuncType) uint32 {
	m.Imports = append(m.Imports, Import{Module: module, Name: name, TypeIdx: m.AddType(ft)})
	return uint32(len(m.Imports) - 1)
}

// AddFunc appends a defined function and returns its function index.
func (m *Module) AddFunc(ft FuncType, body Body) uint32 {
	m.Funcs = append(m.Funcs, m.AddType(ft))
	m.Code = append(m.Code, body)
	return uint32(len(m.Imports) + len(m.Funcs) - 1)
}

// Export exports the function at idx under name.
func (m *Module) Export(name string, idx uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: KindFunc, Idx: idx})
}

// ExportMemory exports memory 0 under name.
func (m *Module) ExportMemory(name string) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: KindMemory, Idx: 0})
}

type section struct {
	id    byte
	count int
	each  func(w *Writer, i int)
}

// Encode returns the binary module. Empty sections are omitted.
func (m *Module) Encode() []byte {
	w := NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	sections := []section{
		{SectionType, len(m.Types), func(w *Writer, i int) {
			w.Byte(FuncTypeByte)
			writeValTypes(w, m.Types[i].Params)
			writeValTypes(w, m.Types[i].Results)
		}},
		{SectionImport, len(m.Imports), func(w *Writer, i int) {
			imp := m.Imports[i]
			w.WriteName(imp.Module)
			w.WriteName(imp.Name)
			w.Byte(KindFunc)
			w.WriteU32(imp.TypeIdx)
		}},
		{SectionFunction, len(m.Funcs), func(w *Writer, i int) {
			w.WriteU32(m.Funcs[i])
		}},
		{SectionMemory, len(m.Memories), func(w *Writer, i int) {
			writeLimits(w, m.Memories[i])
		}},
		{SectionExport, len(m.Exports), func(w *Writer, i int) {
			exp := m.Exports[i]
			w.WriteName(exp.Name)
			w.Byte(exp.Kind)
			w.WriteU32(exp.Idx)
		}},
		{SectionCode, len(m.Code), func(w *Writer, i int) {
			body := NewWriter()
			body.WriteU32(uint32(len(m.Code[i].Locals)))
			for _, l := range m.Code[i].Locals {
				body.WriteU32(l.Count)
				body.Byte(byte(l.ValType))
			}
			body.WriteBytes(m.Code[i].Code)
			w.WriteU32(uint32(body.Len()))
			w.WriteBytes(body.Bytes())
		}},
	}

	for _, sec := range sections {
		if sec.count == 0 {
			continue
		}
		body := NewWriter()
		body.WriteU32(uint32(sec.count))
		for i := 0; i < sec.count; i++ {
			sec.each(body, i)
		}
		w.Byte(sec.id)
		w.WriteU32(uint32(body.Len()))
		w.WriteBytes(body.Bytes())
	}
	return w.Bytes()
}

func writeValTypes(w *Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *Writer, l Limits) {
	if l.Max == nil {
		w.Byte(0)
		w.WriteU32(l.Min)
		return
	}
	w.Byte(LimitsHasMax)
	w.WriteU32(l.Min)
	w.WriteU32(*l.Max)
}
