package host

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single host machine instruction.
type Opcode byte

// Constants
const (
	OpNOP        Opcode = 0x00 // no operation
	OpACONSTNULL Opcode = 0x01 // push null
	OpSIPUSH     Opcode = 0x02 // push signed 16-bit integer
	OpLDC        Opcode = 0x03 // push pool constant (16-bit index)
)

// Stack shuffles. Every value occupies exactly one stack slot.
const (
	OpPOP   Opcode = 0x10 // discard top
	OpPOP2  Opcode = 0x11 // discard top two
	OpDUP   Opcode = 0x12 // a -> a a
	OpDUPX1 Opcode = 0x13 // b a -> a b a
	OpDUPX2 Opcode = 0x14 // c b a -> a c b a
	OpDUP2  Opcode = 0x15 // b a -> b a b a
	OpSWAP  Opcode = 0x16 // b a -> a b
)

// Typed locals (16-bit local index)
const (
	OpALOAD  Opcode = 0x20
	OpASTORE Opcode = 0x21
	OpILOAD  Opcode = 0x22
	OpISTORE Opcode = 0x23
	OpLLOAD  Opcode = 0x24
	OpLSTORE Opcode = 0x25
	OpDLOAD  Opcode = 0x26
	OpDSTORE Opcode = 0x27
	OpIINC   Opcode = 0x28 // 16-bit local index, signed 8-bit delta
)

// Types (16-bit class index)
const (
	OpNEW        Opcode = 0x30 // allocate uninitialized instance
	OpCHECKCAST  Opcode = 0x31 // fail unless top is null or an instance
	OpINSTANCEOF Opcode = 0x32 // replace top with 1 or 0
)

// Fields (16-bit field index)
const (
	OpGETFIELD  Opcode = 0x40
	OpPUTFIELD  Opcode = 0x41
	OpGETSTATIC Opcode = 0x42
	OpPUTSTATIC Opcode = 0x43
)

// Invocation (16-bit method index)
const (
	OpINVOKEVIRTUAL   Opcode = 0x50
	OpINVOKEINTERFACE Opcode = 0x51
	OpINVOKESTATIC    Opcode = 0x52
	OpINVOKESPECIAL   Opcode = 0x53 // constructors; pops the receiver
)

// Branches (signed 16-bit offset from the end of the operand)
const (
	OpGOTO      Opcode = 0x60
	OpIFEQ      Opcode = 0x61 // pop int, jump if zero
	OpIFNE      Opcode = 0x62 // pop int, jump if non-zero
	OpIFNULL    Opcode = 0x63
	OpIFNONNULL Opcode = 0x64
	OpIFACMPEQ  Opcode = 0x65 // pop two references, jump if identical
	OpIFACMPNE  Opcode = 0x66
	OpIFICMPEQ  Opcode = 0x67
	OpIFICMPNE  Opcode = 0x68
	OpIFICMPLT  Opcode = 0x69
	OpIFICMPGT  Opcode = 0x6A
	OpIFICMPGE  Opcode = 0x6B
)

// Exits
const (
	OpRETURN  Opcode = 0x70 // return void
	OpARETURN Opcode = 0x71 // return top
	OpATHROW  Opcode = 0x72 // throw top
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// VariableEffect marks opcodes whose stack effect depends on the referenced
// method descriptor.
const VariableEffect = -128

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	StackEffect  int    // net effect on stack (VariableEffect = see descriptor)
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP:        {"NOP", 0, 0},
	OpACONSTNULL: {"ACONST_NULL", 0, 1},
	OpSIPUSH:     {"SIPUSH", 2, 1},
	OpLDC:        {"LDC", 2, 1},

	OpPOP:   {"POP", 0, -1},
	OpPOP2:  {"POP2", 0, -2},
	OpDUP:   {"DUP", 0, 1},
	OpDUPX1: {"DUP_X1", 0, 1},
	OpDUPX2: {"DUP_X2", 0, 1},
	OpDUP2:  {"DUP2", 0, 2},
	OpSWAP:  {"SWAP", 0, 0},

	OpALOAD:  {"ALOAD", 2, 1},
	OpASTORE: {"ASTORE", 2, -1},
	OpILOAD:  {"ILOAD", 2, 1},
	OpISTORE: {"ISTORE", 2, -1},
	OpLLOAD:  {"LLOAD", 2, 1},
	OpLSTORE: {"LSTORE", 2, -1},
	OpDLOAD:  {"DLOAD", 2, 1},
	OpDSTORE: {"DSTORE", 2, -1},
	OpIINC:   {"IINC", 3, 0},

	OpNEW:        {"NEW", 2, 1},
	OpCHECKCAST:  {"CHECKCAST", 2, 0},
	OpINSTANCEOF: {"INSTANCEOF", 2, 0},

	OpGETFIELD:  {"GETFIELD", 2, 0},
	OpPUTFIELD:  {"PUTFIELD", 2, -2},
	OpGETSTATIC: {"GETSTATIC", 2, 1},
	OpPUTSTATIC: {"PUTSTATIC", 2, -1},

	OpINVOKEVIRTUAL:   {"INVOKEVIRTUAL", 2, VariableEffect},
	OpINVOKEINTERFACE: {"INVOKEINTERFACE", 2, VariableEffect},
	OpINVOKESTATIC:    {"INVOKESTATIC", 2, VariableEffect},
	OpINVOKESPECIAL:   {"INVOKESPECIAL", 2, VariableEffect},

	OpGOTO:      {"GOTO", 2, 0},
	OpIFEQ:      {"IFEQ", 2, -1},
	OpIFNE:      {"IFNE", 2, -1},
	OpIFNULL:    {"IFNULL", 2, -1},
	OpIFNONNULL: {"IFNONNULL", 2, -1},
	OpIFACMPEQ:  {"IF_ACMPEQ", 2, -2},
	OpIFACMPNE:  {"IF_ACMPNE", 2, -2},
	OpIFICMPEQ:  {"IF_ICMPEQ", 2, -2},
	OpIFICMPNE:  {"IF_ICMPNE", 2, -2},
	OpIFICMPLT:  {"IF_ICMPLT", 2, -2},
	OpIFICMPGT:  {"IF_ICMPGT", 2, -2},
	OpIFICMPGE:  {"IF_ICMPGE", 2, -2},

	OpRETURN:  {"RETURN", 0, 0},
	OpARETURN: {"ARETURN", 0, -1},
	OpATHROW:  {"ATHROW", 0, -1},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), OperandBytes: 0, StackEffect: 0}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsBranch reports whether op carries a branch offset.
func (op Opcode) IsBranch() bool {
	return op >= OpGOTO && op <= OpIFICMPGE
}

// IsConditional reports whether op is a branch that may fall through.
func (op Opcode) IsConditional() bool {
	return op.IsBranch() && op != OpGOTO
}

// IsTerminal reports whether control never falls through op.
func (op Opcode) IsTerminal() bool {
	switch op {
	case OpGOTO, OpRETURN, OpARETURN, OpATHROW:
		return true
	}
	return false
}

// IsInvoke reports whether op is a method invocation.
func (op Opcode) IsInvoke() bool {
	return op >= OpINVOKEVIRTUAL && op <= OpINVOKESPECIAL
}

// LoadOp returns the local load opcode for a value kind.
func LoadOp(k Kind) Opcode {
	switch k {
	case KindInt:
		return OpILOAD
	case KindLong:
		return OpLLOAD
	case KindDouble:
		return OpDLOAD
	}
	return OpALOAD
}

// StoreOp returns the local store opcode for a value kind.
func StoreOp(k Kind) Opcode {
	switch k {
	case KindInt:
		return OpISTORE
	case KindLong:
		return OpLSTORE
	case KindDouble:
		return OpDSTORE
	}
	return OpASTORE
}
