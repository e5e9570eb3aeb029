package host

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Stack-depth verification
// ---------------------------------------------------------------------------

// VerifyError reports a structural defect in host code.
type VerifyError struct {
	Offset int
	Msg    string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("host: verify %04d: %s", e.Offset, e.Msg)
}

// Analysis is the result of stack-depth dataflow over a method.
type Analysis struct {
	// Depth maps each reachable instruction offset to the operand stack
	// depth before it executes.
	Depth    map[int]int
	MaxStack int
}

// Analyze computes the operand stack depth at every reachable instruction.
// Every control-flow join must agree on depth; handler targets start at
// depth 1 (the thrown value).
func Analyze(m *Method) (*Analysis, error) {
	starts := make(map[int]bool)
	r := NewReader(m.Code)
	for r.HasMore() {
		starts[r.Position()] = true
		op := r.ReadOpcode()
		if _, ok := opcodeTable[op]; !ok {
			return nil, &VerifyError{r.Position() - 1, fmt.Sprintf("unknown opcode 0x%02X", byte(op))}
		}
		r.Skip(op.OperandBytes())
	}
	if r.Position() != len(m.Code) {
		return nil, &VerifyError{len(m.Code), "truncated instruction"}
	}

	a := &Analysis{Depth: make(map[int]int)}
	var work []int

	enter := func(from, at, depth int) error {
		if !starts[at] {
			return &VerifyError{from, fmt.Sprintf("branch into middle of instruction at %04d", at)}
		}
		if prev, ok := a.Depth[at]; ok {
			if prev != depth {
				return &VerifyError{at, fmt.Sprintf("stack depth mismatch at join: %d vs %d", prev, depth)}
			}
			return nil
		}
		a.Depth[at] = depth
		if depth > a.MaxStack {
			a.MaxStack = depth
		}
		work = append(work, at)
		return nil
	}

	if len(m.Code) == 0 {
		return a, nil
	}
	if err := enter(0, 0, 0); err != nil {
		return nil, err
	}
	for _, h := range m.Handlers {
		if h.Start < 0 || h.End > len(m.Code) || h.Start >= h.End {
			return nil, &VerifyError{h.Start, "malformed exception range"}
		}
		if err := enter(h.Start, h.Target, 1); err != nil {
			return nil, err
		}
	}

	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		depth := a.Depth[pc]

		r.Seek(pc)
		op := r.ReadOpcode()
		need, effect, err := stackUse(m, op, r)
		if err != nil {
			return nil, &VerifyError{pc, err.Error()}
		}
		if depth < need {
			return nil, &VerifyError{pc, fmt.Sprintf("%s needs %d operands, stack has %d", op, need, depth)}
		}
		after := depth + effect

		if op >= OpALOAD && op <= OpIINC {
			r.Seek(pc + 1)
			if idx := int(r.ReadUint16()); idx >= m.MaxLocals {
				return nil, &VerifyError{pc, fmt.Sprintf("local %d exceeds max locals %d", idx, m.MaxLocals)}
			}
		}

		if op.IsBranch() {
			r.Seek(pc + 1)
			offset := int(r.ReadInt16())
			if err := enter(pc, r.Position()+offset, after); err != nil {
				return nil, err
			}
		}
		if !op.IsTerminal() {
			next := pc + 1 + op.OperandBytes()
			if next >= len(m.Code) {
				return nil, &VerifyError{pc, "control falls off the end of the method"}
			}
			if err := enter(pc, next, after); err != nil {
				return nil, err
			}
		}
	}
	return a, nil
}

// Verify analyzes m and records its maximum stack depth.
func Verify(m *Method) error {
	a, err := Analyze(m)
	if err != nil {
		return err
	}
	m.MaxStack = a.MaxStack
	return nil
}

// stackUse returns the minimum depth op requires and its net effect.
// r must be positioned just after the opcode.
func stackUse(m *Method, op Opcode, r *Reader) (need, effect int, err error) {
	effect = op.Info().StackEffect
	switch op {
	case OpPOP, OpDUP, OpCHECKCAST, OpINSTANCEOF, OpGETFIELD, OpPUTSTATIC,
		OpIFEQ, OpIFNE, OpIFNULL, OpIFNONNULL, OpARETURN, OpATHROW,
		OpASTORE, OpISTORE, OpLSTORE, OpDSTORE:
		need = 1
	case OpPOP2, OpDUPX1, OpDUP2, OpSWAP, OpPUTFIELD,
		OpIFACMPEQ, OpIFACMPNE, OpIFICMPEQ, OpIFICMPNE, OpIFICMPLT, OpIFICMPGT, OpIFICMPGE:
		need = 2
	case OpDUPX2:
		need = 3
	case OpINVOKEVIRTUAL, OpINVOKEINTERFACE, OpINVOKESTATIC, OpINVOKESPECIAL:
		ref, ferr := m.MethodAt(r.ReadUint16())
		if ferr != nil {
			return 0, 0, ferr
		}
		need = len(ref.Params)
		if op != OpINVOKESTATIC {
			need++
		}
		effect = ref.StackEffect(op)
	}
	return need, effect, nil
}

// Offsets returns the reachable instruction offsets in ascending order.
func (a *Analysis) Offsets() []int {
	out := make([]int, 0, len(a.Depth))
	for pc := range a.Depth {
		out = append(out, pc)
	}
	sort.Ints(out)
	return out
}
