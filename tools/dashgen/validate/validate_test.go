package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/property-price-tracker/tools/dashgen/rules"
)

var known = map[string]bool{
	"ppt_http_requests_total":  true,
	"ppt:http_requests:rate5m": true,
}

func TestExpr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "known metric", expr: `sum(rate(ppt_http_requests_total[5m]))`},
		{name: "recording rule", expr: `ppt:http_requests:rate5m * 60`},
		{name: "unknown metric", expr: `rate(ppt_nope_total[5m])`, wantErr: true},
		{name: "syntax error", expr: `sum(rate(ppt_http_requests_total[5m])`, wantErr: true},
		{name: "scalar only", expr: `time()`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := Expr(tt.expr, known)
			assert.Equal(t, !tt.wantErr, res.Ok(), "errors: %v", res.Errors)
		})
	}
}

func TestDashboard_CollectsNestedExprs(t *testing.T) {
	t.Parallel()

	dash := map[string]any{
		"panels": []any{
			map[string]any{"targets": []any{map[string]any{"expr": "ppt:http_requests:rate5m"}}},
			map[string]any{"panels": []any{
				map[string]any{"targets": []any{map[string]any{"expr": "rate(ppt_missing_total[5m])"}}},
			}},
		},
	}

	res := Dashboard(dash, known)
	assert.Len(t, res.Errors, 1)

	empty := Dashboard(map[string]any{}, known)
	assert.True(t, empty.Ok())
	assert.Len(t, empty.Warnings, 1)
}

func TestRules(t *testing.T) {
	t.Parallel()

	cr := rules.PrometheusRule{Spec: rules.PrometheusRuleSpec{Groups: []rules.RuleGroup{{
		Rules: []rules.Rule{
			{Record: "ppt:http_requests:rate5m", Expr: `sum(rate(ppt_http_requests_total[5m]))`},
			{Alert: "Bad", Expr: `ppt_other > 0`},
		},
	}}}}

	res := Rules(cr, known)
	assert.Len(t, res.Errors, 1)

	unnamed := rules.PrometheusRule{Spec: rules.PrometheusRuleSpec{Groups: []rules.RuleGroup{{
		Rules: []rules.Rule{{Expr: `sum(rate(ppt_http_requests_total[5m]))`}},
	}}}}
	res = Rules(unnamed, known)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "neither record nor alert")
}
