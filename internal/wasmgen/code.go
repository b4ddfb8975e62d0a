package wasmgen

// Code assembles an instruction sequence. Methods return the receiver so
// sequences read in stack order.
type Code struct {
	w *Writer
}

// NewCode starts an empty instruction sequence.
func NewCode() *Code {
	return &Code{w: NewWriter()}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	return c.w.Bytes()
}

// Body wraps the sequence, terminated with end, as a function body.
func (c *Code) Body(locals ...Local) Body {
	c.w.Byte(OpEnd)
	return Body{Locals: locals, Code: c.w.Bytes()}
}

func (c *Code) op(b byte) *Code {
	c.w.Byte(b)
	return c
}

func (c *Code) opIdx(b byte, idx uint32) *Code {
	c.w.Byte(b)
	c.w.WriteU32(idx)
	return c
}

// memarg writes natural alignment and offset.
func (c *Code) mem(b byte, align, offset uint32) *Code {
	c.w.Byte(b)
	c.w.WriteU32(align)
	c.w.WriteU32(offset)
	return c
}

func (c *Code) LocalGet(i uint32) *Code { return c.opIdx(OpLocalGet, i) }
func (c *Code) LocalSet(i uint32) *Code { return c.opIdx(OpLocalSet, i) }
func (c *Code) LocalTee(i uint32) *Code { return c.opIdx(OpLocalTee, i) }
func (c *Code) Call(fn uint32) *Code    { return c.opIdx(OpCall, fn) }
func (c *Code) Br(depth uint32) *Code   { return c.opIdx(OpBr, depth) }
func (c *Code) BrIf(depth uint32) *Code { return c.opIdx(OpBrIf, depth) }

func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(OpI32Const)
	c.w.WriteS32(v)
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.w.Byte(OpI64Const)
	c.w.WriteS64(v)
	return c
}

func (c *Code) I32Load(offset uint32) *Code  { return c.mem(OpI32Load, 2, offset) }
func (c *Code) I32Store(offset uint32) *Code { return c.mem(OpI32Store, 2, offset) }
func (c *Code) F32Store(offset uint32) *Code { return c.mem(OpF32Store, 2, offset) }
func (c *Code) F64Load(offset uint32) *Code  { return c.mem(OpF64Load, 3, offset) }
func (c *Code) F64Store(offset uint32) *Code { return c.mem(OpF64Store, 3, offset) }

// Block opens a block with no result.
func (c *Code) Block() *Code {
	c.w.Byte(OpBlock)
	c.w.Byte(BlockVoid)
	return c
}

// Loop opens a loop with no result.
func (c *Code) Loop() *Code {
	c.w.Byte(OpLoop)
	c.w.Byte(BlockVoid)
	return c
}

// If opens an if with no result.
func (c *Code) If() *Code {
	c.w.Byte(OpIf)
	c.w.Byte(BlockVoid)
	return c
}

func (c *Code) Else() *Code        { return c.op(OpElse) }
func (c *Code) End() *Code         { return c.op(OpEnd) }
func (c *Code) Return() *Code      { return c.op(OpReturn) }
func (c *Code) Drop() *Code        { return c.op(OpDrop) }
func (c *Code) Unreachable() *Code { return c.op(OpUnreachable) }

func (c *Code) I32Eqz() *Code        { return c.op(OpI32Eqz) }
func (c *Code) I32Eq() *Code         { return c.op(OpI32Eq) }
func (c *Code) I32Ne() *Code         { return c.op(OpI32Ne) }
func (c *Code) I32LtU() *Code        { return c.op(OpI32LtU) }
func (c *Code) I32GeU() *Code        { return c.op(OpI32GeU) }
func (c *Code) I32Add() *Code        { return c.op(OpI32Add) }
func (c *Code) I32Sub() *Code        { return c.op(OpI32Sub) }
func (c *Code) I32Mul() *Code        { return c.op(OpI32Mul) }
func (c *Code) I64Or() *Code         { return c.op(OpI64Or) }
func (c *Code) I64Shl() *Code        { return c.op(OpI64Shl) }
func (c *Code) I64ShrU() *Code       { return c.op(OpI64ShrU) }
func (c *Code) I32WrapI64() *Code    { return c.op(OpI32WrapI64) }
func (c *Code) I64ExtendI32U() *Code { return c.op(OpI64ExtendI32U) }
