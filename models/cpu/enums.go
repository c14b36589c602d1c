package cpu

// memory geometry of the simulated machine
const (
	PageSize = 0x400
	InsnSize = 4
)

// user-visible register enums
const (
	PC = iota + 1
	NEXTPC
	SP
	// V0 carries the syscall number in and the result out
	V0
	A0
	A1
	A2
	A3
)

// Registers lists every user register in dump order.
var Registers = []int{PC, NEXTPC, SP, V0, A0, A1, A2, A3}

var RegNames = map[int]string{
	PC:     "pc",
	NEXTPC: "nextpc",
	SP:     "sp",
	V0:     "v0",
	A0:     "a0",
	A1:     "a1",
	A2:     "a2",
	A3:     "a3",
}

// trap causes delivered by the interpreter
const (
	TRAP_SYSCALL = iota
	TRAP_ADDR_ERROR
	TRAP_BUS_ERROR
	TRAP_ILL_INSN
	TRAP_OVERFLOW
)

var TrapNames = map[int]string{
	TRAP_SYSCALL:    "syscall",
	TRAP_ADDR_ERROR: "address error",
	TRAP_BUS_ERROR:  "bus error",
	TRAP_ILL_INSN:   "illegal instruction",
	TRAP_OVERFLOW:   "overflow",
}
