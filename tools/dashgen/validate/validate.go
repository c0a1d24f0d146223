// Package validate checks generated dashboards and rules for PromQL syntax
// errors and references to metrics the service does not export.
package validate

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/prometheus/prometheus/promql/parser"

	"github.com/donaldgifford/property-price-tracker/tools/dashgen/rules"
)

// Result collects validation findings. Errors fail generation, warnings don't.
type Result struct {
	Errors   []string
	Warnings []string
}

// Ok reports whether no errors were found.
func (r Result) Ok() bool { return len(r.Errors) == 0 }

// Dashboard validates every "expr" found in the built dashboard.
func Dashboard(dash any, known map[string]bool) Result {
	var res Result

	data, err := json.Marshal(dash)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("marshal dashboard: %v", err))
		return res
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("unmarshal dashboard: %v", err))
		return res
	}

	exprs := collectExprs(tree, nil)
	if len(exprs) == 0 {
		res.Warnings = append(res.Warnings, "dashboard has no queries")
	}
	for _, e := range exprs {
		res.merge(Expr(e, known))
	}
	return res
}

// Rules validates the expressions of every rule in cr.
func Rules(cr rules.PrometheusRule, known map[string]bool) Result {
	var res Result
	for _, r := range cr.Rules() {
		if r.Record == "" && r.Alert == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("%q: rule has neither record nor alert", r.Expr))
		}
		res.merge(Expr(r.Expr, known))
	}
	return res
}

// Expr parses one PromQL expression and checks its metric references.
func Expr(expr string, known map[string]bool) Result {
	var res Result

	node, err := parser.ParseExpr(expr)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%q: %v", expr, err))
		return res
	}

	for _, name := range metricNames(node) {
		if !known[name] {
			res.Errors = append(res.Errors, fmt.Sprintf("%q: unknown metric %s", expr, name))
		}
	}
	return res
}

func (r *Result) merge(o Result) {
	r.Errors = append(r.Errors, o.Errors...)
	r.Warnings = append(r.Warnings, o.Warnings...)
}

func metricNames(node parser.Node) []string {
	seen := map[string]bool{}
	parser.Inspect(node, func(n parser.Node, _ []parser.Node) error {
		if vs, ok := n.(*parser.VectorSelector); ok && vs.Name != "" {
			seen[vs.Name] = true
		}
		return nil
	})

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// collectExprs walks decoded JSON and returns every string under an "expr" key.
func collectExprs(v any, acc []string) []string {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if s, ok := child.(string); ok && k == "expr" {
				acc = append(acc, s)
				continue
			}
			acc = collectExprs(child, acc)
		}
	case []any:
		for _, child := range t {
			acc = collectExprs(child, acc)
		}
	}
	return acc
}
