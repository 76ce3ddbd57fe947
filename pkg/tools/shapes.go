package tools

import (
	"context"
	"fmt"

	"github.com/itchyny/gojq"

	"researchcopilot/pkg/logx"
	"researchcopilot/pkg/utils"
)

// shape is one tolerated upstream response layout. Its query emits
// {records: [...], total?: n} when the document has that layout and nothing otherwise.
type shape struct {
	name  string
	query *gojq.Query
}

// shapeSet is an ordered list of shapes; the first that matches wins.
type shapeSet []shape

// mustShapes compiles name/expression pairs. It panics on a bad expression since
// the expressions are package constants.
func mustShapes(pairs ...string) shapeSet {
	if len(pairs)%2 != 0 {
		panic("mustShapes needs name/expression pairs")
	}
	set := make(shapeSet, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		query, err := gojq.Parse(pairs[i+1])
		if err != nil {
			panic(fmt.Sprintf("invalid jq expression for shape %q: %v", pairs[i], err))
		}
		set = append(set, shape{name: pairs[i], query: query})
	}
	return set
}

// shapeMatch is the normalized view of a matched document.
type shapeMatch struct {
	Shape   string
	Records []map[string]any
	// Total is the upstream total when the shape carries one, else -1.
	Total int
}

// match returns the first shape the document fits. Records that are not objects
// are dropped and logged as parse degradation.
func (s shapeSet) match(ctx context.Context, op string, doc any) (shapeMatch, bool) {
	for _, sh := range s {
		iter := sh.query.Run(doc)
		v, ok := iter.Next()
		if !ok {
			continue
		}
		if err, isErr := v.(error); isErr {
			logx.Debug(ctx, "shapes", "%s: shape %s failed: %v", op, sh.name, err)
			continue
		}
		envelope, isObj := v.(map[string]any)
		if !isObj {
			continue
		}
		raw, _ := envelope["records"].([]any)
		m := shapeMatch{Shape: sh.name, Records: make([]map[string]any, 0, len(raw)), Total: -1}
		for i, rec := range raw {
			obj, isMap := rec.(map[string]any)
			if !isMap {
				logx.Debug(ctx, "shapes", "%s: ParseDegradation: record %d in shape %s is %T", op, i, sh.name, rec)
				continue
			}
			m.Records = append(m.Records, obj)
		}
		if total, hasTotal := utils.ToFloat(envelope["total"]); hasTotal {
			m.Total = int(total)
		}
		return m, true
	}
	return shapeMatch{Total: -1}, false
}

// Search result layouts shared by the REST and MCP backends. Each record is
// rewritten to {url, title, content, score}.
//
//nolint:gochecknoglobals // compiled once, read-only
var searchShapes = mustShapes(
	"results", `select(type == "object" and (.results | type) == "array") | {records: .results}`,
	"sources", `select(type == "object" and (.sources | type) == "array")
		| {records: [.sources[] | select(type == "object") | {
			url: (.url // .source // ""),
			title: (.title // .url // .source // ""),
			content: (.snippet // .content // ""),
			score: (.score // 0)}]}`,
	"list", `select(type == "array") | {records: .}`,
)

// NTRS citation search layouts.
//
//nolint:gochecknoglobals // compiled once, read-only
var ntrsShapes = mustShapes(
	"items", `select(type == "object" and (.items | type) == "array") | {records: .items, total: .total}`,
	"results", `select(type == "object" and (.results | type) == "array") | {records: .results, total: .total}`,
	"hits", `select(type == "object" and (.hits | type) == "object" and (.hits.hits | type) == "array")
		| {records: .hits.hits, total: (.hits.total | if type == "object" then .value else . end)}`,
	"object", `select(type == "object") | {records: [.]}`,
	"list", `select(type == "array") | {records: .}`,
)
