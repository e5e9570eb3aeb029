// Package host defines the target instruction set the lowering layer emits:
// a statically typed stack machine with fixed local slots, two-operand
// native stack shuffles and verifier-enforced stack depth.
//
// This package contains:
//   - Opcode table with operand widths and stack effects
//   - Constant pool of strings, integers, class, field and method references
//   - Builder with forward-patched labels and exception table entries
//   - Reader and disassembler
//   - Stack-depth verifier enforcing depth agreement at control-flow joins
//
// Every value occupies one stack slot and one local slot regardless of its
// kind, so DUP2 and POP2 always act on two values. Locals are typed by the
// load and store opcodes used to access them.
package host
