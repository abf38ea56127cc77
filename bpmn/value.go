package bpmn

import "fmt"

// ValueKind discriminates the scalar Value domain (§3.2: flags are
// bool/int/string, scalar-only — no nested structures, since flags exist
// only to drive condition checks and counters, not to carry payload data).
type ValueKind int

const (
	ValueBool ValueKind = iota
	ValueInt
	ValueString
)

// Value is the scalar union stored in ProcessInstance.Flags. Exactly one of
// the typed fields is meaningful, selected by Kind — the same "tagged
// struct" shape used throughout this package for bytecode operands, chosen
// over an interface{} so flag values stay comparable and trivially
// JSON-serializable without a custom (Un)MarshalJSON.
type Value struct {
	Kind ValueKind
	B    bool
	I    int64
	S    string
}

func BoolValue(b bool) Value     { return Value{Kind: ValueBool, B: b} }
func IntValue(i int64) Value     { return Value{Kind: ValueInt, I: i} }
func StringValue(s string) Value { return Value{Kind: ValueString, S: s} }

// Truthy reports whether the value should be treated as a satisfied
// condition flag (ForkInclusive branch conditions, ExclusiveGateway
// routing). Ints are truthy when non-zero, strings when non-empty,
// mirroring how most scripting-language truthiness rules treat scalars —
// the only rule that actually gets exercised by this engine is the bool
// one, since conditions are pre-lowered flag checks (§1 Non-goals), but the
// other two keep Value total rather than partial.
func (v Value) Truthy() bool {
	switch v.Kind {
	case ValueBool:
		return v.B
	case ValueInt:
		return v.I != 0
	case ValueString:
		return v.S != ""
	default:
		return false
	}
}

// FlagID assigns a stable small integer id to a flag name by hashing. The
// bytecode only ever refers to flags by int id (Flags is keyed by int),
// while BPMN XML and worker-supplied orch_flags refer to flags by name —
// this is the one function both the compiler (lowering a condition flag)
// and the engine (merging complete_job's orch_flags) must agree on, so it
// lives in the shared types package rather than being duplicated.
func FlagID(name string) int {
	var h uint32 = 2166136261
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 16777619
	}
	return int(h & 0x7fffffff)
}

func (v Value) String() string {
	switch v.Kind {
	case ValueBool:
		return fmt.Sprintf("%t", v.B)
	case ValueInt:
		return fmt.Sprintf("%d", v.I)
	case ValueString:
		return v.S
	default:
		return "<invalid>"
	}
}
