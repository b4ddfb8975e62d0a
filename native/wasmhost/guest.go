package wasmhost

import (
	"github.com/wippyai/objbridge/internal/wasmgen"
)

// Guest memory layout. One page holds scratch space for evaluation calls
// followed by the twin records; record slot 0 is never used so a stable id
// is never zero.
const (
	scratchBase  = 256
	scratchSize  = 64
	scratchSlots = (recordBase - scratchBase) / scratchSize

	recordBase = 1024
	recordSize = 128
	maxSlots   = 480

	offSerial  = 0
	offKind    = 4
	offAlive   = 8
	offGen     = 12
	offNameLen = 16
	offTypeID  = 20
	offName    = 36
	maxName    = recordSize - offName
)

// Host functions the guest imports from module "rdk".
const (
	hostModule        = "rdk"
	importDeleteThis  = "delete_this"
	importGetColor    = "evaluator_get_color"
	importSimulateMat = "simulate_material"
	exportTwinNew     = "twin_new"
	exportTwinFind    = "twin_find"
	exportTwinDelete  = "twin_delete"
	exportEvalColor   = "eval_color"
	exportSimulateMat = "simulate_material"
	exportMemory      = "memory"
)

var (
	i32 = wasmgen.ValI32
	i64 = wasmgen.ValI64
	f64 = wasmgen.ValF64
)

func types(v ...wasmgen.ValType) []wasmgen.ValType { return v }

// guestModule builds the twin store. A stable id is gen<<32 | slot; the
// generation bumps every time a slot is reused, so ids of deleted twins
// never resolve again.
func guestModule() []byte {
	m := &wasmgen.Module{}

	deleteThis := m.AddImport(hostModule, importDeleteThis, wasmgen.FuncType{
		Params: types(i32, i32),
	})
	getColor := m.AddImport(hostModule, importGetColor, wasmgen.FuncType{
		Params:  types(i32, i32, f64, f64, f64),
		Results: types(i32),
	})
	simulate := m.AddImport(hostModule, importSimulateMat, wasmgen.FuncType{
		Params:  types(i32, i32),
		Results: types(i32),
	})

	one := uint32(1)
	m.Memories = append(m.Memories, wasmgen.Limits{Min: 1, Max: &one})
	m.ExportMemory(exportMemory)

	// twin_new(serial, kind) -> id, 0 when the store is full
	{
		const serial, kind, slot, addr, gen = 0, 1, 2, 3, 4
		c := wasmgen.NewCode().
			I32Const(1).LocalSet(slot).
			Block().
			Loop().
			LocalGet(slot).I32Const(maxSlots).I32GeU().
			If().I64Const(0).Return().End()
		recordAddr(c, slot, addr)
		c.LocalGet(addr).I32Load(offAlive).I32Eqz().BrIf(1).
			LocalGet(slot).I32Const(1).I32Add().LocalSet(slot).
			Br(0).
			End().
			End().
			LocalGet(addr).LocalGet(addr).I32Load(offGen).I32Const(1).I32Add().LocalTee(gen).I32Store(offGen).
			LocalGet(addr).LocalGet(serial).I32Store(offSerial).
			LocalGet(addr).LocalGet(kind).I32Store(offKind).
			LocalGet(addr).I32Const(1).I32Store(offAlive).
			LocalGet(addr).I32Const(0).I32Store(offNameLen).
			LocalGet(gen).I64ExtendI32U().I64Const(32).I64Shl().
			LocalGet(slot).I64ExtendI32U().
			I64Or()
		idx := m.AddFunc(wasmgen.FuncType{Params: types(i32, i32), Results: types(i64)},
			c.Body(wasmgen.Local{Count: 3, ValType: i32}))
		m.Export(exportTwinNew, idx)
	}

	// twin_find(id) -> record address, 0 when the twin is gone
	var find uint32
	{
		const id, slot, addr = 0, 1, 2
		c := wasmgen.NewCode().
			LocalGet(id).I32WrapI64().LocalSet(slot).
			LocalGet(slot).I32Eqz().If().I32Const(0).Return().End().
			LocalGet(slot).I32Const(maxSlots).I32GeU().If().I32Const(0).Return().End()
		recordAddr(c, slot, addr)
		c.LocalGet(addr).I32Load(offAlive).I32Eqz().If().I32Const(0).Return().End().
			LocalGet(addr).I32Load(offGen).
			LocalGet(id).I64Const(32).I64ShrU().I32WrapI64().
			I32Ne().If().I32Const(0).Return().End().
			LocalGet(addr)
		find = m.AddFunc(wasmgen.FuncType{Params: types(i64), Results: types(i32)},
			c.Body(wasmgen.Local{Count: 2, ValType: i32}))
		m.Export(exportTwinFind, find)
	}

	// twin_delete(id) -> 1 if deleted; notifies the host for twins with a serial
	{
		const id, addr = 0, 1
		c := wasmgen.NewCode().
			LocalGet(id).Call(find).LocalTee(addr).I32Eqz().If().I32Const(0).Return().End().
			LocalGet(addr).I32Const(0).I32Store(offAlive).
			LocalGet(addr).I32Load(offSerial).
			If().
			LocalGet(addr).I32Load(offSerial).LocalGet(addr).I32Load(offKind).Call(deleteThis).
			End().
			I32Const(1)
		idx := m.AddFunc(wasmgen.FuncType{Params: types(i64), Results: types(i32)},
			c.Body(wasmgen.Local{Count: 1, ValType: i32}))
		m.Export(exportTwinDelete, idx)
	}

	// eval_color(addr, out, u, v, w) -> handled
	{
		const addr, out, u, v, w = 0, 1, 2, 3, 4
		c := wasmgen.NewCode().
			LocalGet(addr).I32Load(offSerial).I32Eqz().If().I32Const(0).Return().End().
			LocalGet(addr).I32Load(offSerial).
			LocalGet(out).LocalGet(u).LocalGet(v).LocalGet(w).
			Call(getColor)
		idx := m.AddFunc(wasmgen.FuncType{Params: types(i32, i32, f64, f64, f64), Results: types(i32)}, c.Body())
		m.Export(exportEvalColor, idx)
	}

	// simulate_material(addr, out) -> handled
	{
		const addr, out = 0, 1
		c := wasmgen.NewCode().
			LocalGet(addr).I32Load(offSerial).I32Eqz().If().I32Const(0).Return().End().
			LocalGet(addr).I32Load(offSerial).LocalGet(out).
			Call(simulate)
		idx := m.AddFunc(wasmgen.FuncType{Params: types(i32, i32), Results: types(i32)}, c.Body())
		m.Export(exportSimulateMat, idx)
	}

	return m.Encode()
}

// recordAddr emits addr = recordBase + slot*recordSize.
func recordAddr(c *wasmgen.Code, slot, addr uint32) {
	c.LocalGet(slot).I32Const(recordSize).I32Mul().I32Const(recordBase).I32Add().LocalSet(addr)
}
