package adapter

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// recordFilter wraps a compiled CEL program evaluated against a candidate
// record for the admin diagnostic tail (spec section 9 "Dynamic dispatch
// over record kinds" generalized to an optional predicate). When disabled,
// Eval always returns true.
type recordFilter struct {
	prog    cel.Program
	enabled bool
}

// newRecordFilter compiles expr. An empty expr yields a filter that matches
// everything.
func newRecordFilter(expr string) (recordFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return recordFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("nsp", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("uid", cel.StringType),
		cel.Variable("rooms", cel.ListType(cel.StringType)),
		cel.Variable("age_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return recordFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return recordFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return recordFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return recordFilter{}, err
	}
	return recordFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against a candidate record's
// routing metadata. Evaluation errors are treated as non-matches.
func (f recordFilter) Eval(nsp, typ, uid string, rooms []string, createdAtMs int64) bool {
	if !f.enabled {
		return true
	}
	nowMs := time.Now().UnixMilli()
	ageMs := int64(0)
	if createdAtMs > 0 {
		ageMs = nowMs - createdAtMs
	}
	out, _, err := f.prog.Eval(map[string]interface{}{
		"nsp":    nsp,
		"type":   typ,
		"uid":    uid,
		"rooms":  rooms,
		"age_ms": ageMs,
		"now_ms": nowMs,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
