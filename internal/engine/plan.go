package engine

import (
	"github.com/rowforge/rowforge/internal/artifact"
	"github.com/rowforge/rowforge/internal/rules"
)

// planColumn is one resolved output column: where its values come from and
// which field rules, if any, run against them. field is nil for appended
// unmapped columns, which pass through untouched.
type planColumn struct {
	header       string
	sourceCol    int // 1-based absolute sheet column
	sourceHeader string
	field        *rules.FieldRules
}

// buildPlan derives a table's output plan from its mapping: mapped target
// fields in manifest order, then, when configured, the unmapped raw columns
// in sheet order under a prefixed header. The plan is a pure function of the
// mapping, so the write loop can emit the header row before pass 5 records
// the plan in the artifact.
func buildPlan(fields []rules.FieldRules, mappings []ColumnMapping, appendUnmapped bool, prefix string) []planColumn {
	byTarget := make(map[string]*ColumnMapping, len(mappings))
	for i := range mappings {
		if mappings[i].TargetField != "" {
			byTarget[mappings[i].TargetField] = &mappings[i]
		}
	}

	var plan []planColumn
	for i := range fields {
		field := &fields[i]
		cm, ok := byTarget[field.Field]
		if !ok {
			continue
		}
		plan = append(plan, planColumn{
			header:       field.Label,
			sourceCol:    cm.Index,
			sourceHeader: cm.SourceHeader,
			field:        field,
		})
	}
	if appendUnmapped {
		for _, cm := range mappings {
			if cm.TargetField != "" {
				continue
			}
			plan = append(plan, planColumn{
				header:       prefix + cm.SourceHeader,
				sourceCol:    cm.Index,
				sourceHeader: cm.SourceHeader,
			})
		}
	}
	return plan
}

// outputColumns renders a plan into its artifact form.
func outputColumns(plan []planColumn) []artifact.OutputColumn {
	cols := make([]artifact.OutputColumn, len(plan))
	for i, pc := range plan {
		cols[i] = artifact.OutputColumn{Header: pc.header, Order: i + 1}
		if pc.field != nil {
			cols[i].Field = pc.field.Field
		} else {
			cols[i].SourceHeader = pc.sourceHeader
		}
	}
	return cols
}

func planHeaders(plan []planColumn) []string {
	headers := make([]string, len(plan))
	for i, pc := range plan {
		headers[i] = pc.header
	}
	return headers
}
