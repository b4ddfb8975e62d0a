package wasmgen

const (
	Magic   uint32 = 0x6D736100
	Version uint32 = 0x00000001
)

// Section IDs
const (
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionMemory   byte = 5
	SectionExport   byte = 7
	SectionCode     byte = 10
)

// Import/export kinds
const (
	KindFunc   byte = 0
	KindMemory byte = 2
)

// ValType is a WebAssembly value type.
type ValType byte

const (
	ValI32 ValType = 0x7F
	ValI64 ValType = 0x7E
	ValF32 ValType = 0x7D
	ValF64 ValType = 0x7C
)

const (
	FuncTypeByte byte = 0x60
	BlockVoid    byte = 0x40
	LimitsHasMax byte = 0x01
)

// Opcodes used by Code.
const (
	OpUnreachable byte = 0x00
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpEnd         byte = 0x0B
	OpBr          byte = 0x0C
	OpBrIf        byte = 0x0D
	OpReturn      byte = 0x0F
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A

	OpLocalGet byte = 0x20
	OpLocalSet byte = 0x21
	OpLocalTee byte = 0x22

	OpI32Load  byte = 0x28
	OpI64Load  byte = 0x29
	OpF32Load  byte = 0x2A
	OpF64Load  byte = 0x2B
	OpI32Store byte = 0x36
	OpI64Store byte = 0x37
	OpF32Store byte = 0x38
	OpF64Store byte = 0x39

	OpI32Const byte = 0x41
	OpI64Const byte = 0x42

	OpI32Eqz byte = 0x45
	OpI32Eq  byte = 0x46
	OpI32Ne  byte = 0x47
	OpI32LtU byte = 0x49
	OpI32GeU byte = 0x4F

	OpI32Add  byte = 0x6A
	OpI32Sub  byte = 0x6B
	OpI32Mul  byte = 0x6C
	OpI64Or   byte = 0x84
	OpI64Shl  byte = 0x86
	OpI64ShrU byte = 0x88

	OpI32WrapI64    byte = 0xA7
	OpI64ExtendI32U byte = 0xAD
)
