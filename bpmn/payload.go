package bpmn

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FlagPath returns the dotted JSON path a domain payload uses to seed a
// condition flag, e.g. "flags.high_risk". Flag seeding from payload is an
// engine/start-time concern (§11's "flag/condition extraction at start
// time"), not part of the bytecode contract itself — the bytecode only
// ever reads instance.Flags, never the payload directly.
func FlagPath(flagName string) string {
	return "flags." + flagName
}

// ExtractFlag reads a scalar flag value out of an opaque domain_payload
// JSON document by dotted path, without a full unmarshal — the same
// "read one field out of a big JSON blob" shape the teacher reaches
// gjson for when poking at tool-call arguments. Returns ok=false if the
// path is absent.
func ExtractFlag(domainPayload, path string) (Value, bool) {
	res := gjson.Get(domainPayload, path)
	if !res.Exists() {
		return Value{}, false
	}
	switch res.Type {
	case gjson.True, gjson.False:
		return BoolValue(res.Bool()), true
	case gjson.Number:
		return IntValue(res.Int()), true
	case gjson.String:
		return StringValue(res.String()), true
	default:
		return Value{}, false
	}
}

// SeedFlagsFromPayload enumerates every entry under a domain_payload's
// top-level "flags" object and extracts each one via ExtractFlag, keyed
// by FlagID — this is the production call site ExtractFlag was added
// for: Start uses it to seed instance.Flags with whatever condition
// flags the caller's initial payload already carries (§11 DOMAIN STACK:
// payload-driven flag seeding at start time). Non-scalar entries
// (objects, arrays, null) are skipped by ExtractFlag itself.
func SeedFlagsFromPayload(domainPayload string) map[int]Value {
	out := map[int]Value{}
	gjson.Get(domainPayload, "flags").ForEach(func(key, _ gjson.Result) bool {
		name := key.String()
		if v, ok := ExtractFlag(domainPayload, FlagPath(name)); ok {
			out[FlagID(name)] = v
		}
		return true
	})
	return out
}

// MergeOrchFlags merges a flat map of orchestration flags (supplied by a
// worker on complete_job, per §4.3.3) into a domain_payload JSON document
// under "flags.<name>", returning the new document. This plays the role of
// the teacher's reducer (graph/engine.go mergeDeltas) at the JSON-document
// level, since our "state" is an opaque payload blob rather than a typed Go
// struct the engine could merge field-by-field.
func MergeOrchFlags(domainPayload string, orchFlags map[string]Value) (string, error) {
	out := domainPayload
	if out == "" {
		out = "{}"
	}
	var err error
	for name, v := range orchFlags {
		path := FlagPath(name)
		switch v.Kind {
		case ValueBool:
			out, err = sjson.Set(out, path, v.B)
		case ValueInt:
			out, err = sjson.Set(out, path, v.I)
		case ValueString:
			out, err = sjson.Set(out, path, v.S)
		}
		if err != nil {
			return "", err
		}
	}
	return out, nil
}
