package gateway

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/claimguard/internal/model"
)

// odataBuilder renders structured queries as OData v4 $filter expressions
type odataBuilder struct {
	lineNavigation string
}

func odataLiteral(f model.Field, v interface{}) string {
	switch x := v.(type) {
	case string:
		// lookup columns hold GUIDs, which OData expects unquoted
		if strings.HasPrefix(f.Column, "_") && strings.HasSuffix(f.Column, "_value") {
			if id, err := uuid.Parse(x); err == nil {
				return id.String()
			}
		}
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case time.Time:
		return x.UTC().Format("2006-01-02T15:04:05Z")
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(x), "'", "''") + "'"
	}
}

func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// odataModifierMatch is the OData form of sqlModifierMatch, inside a lines/any lambda
func odataModifierMatch(mods ...string) string {
	parts := make([]string, len(mods))
	for i, m := range mods {
		s := odataString(m)
		parts[i] = fmt.Sprintf("contains(l/%s,%s) or contains(l/%s,%s)", colModifiers, s, colAddlModifiers, s)
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

func (b odataBuilder) identity(claimID, op string) string {
	if id, err := uuid.Parse(claimID); err == nil {
		return fmt.Sprintf("%s %s %s", colClaimID, op, id.String())
	}
	return fmt.Sprintf("%s %s %s", colClaimName, op, odataString(claimID))
}

func (b odataBuilder) filter(q model.StructuredQuery) (string, error) {
	var conds []string
	if q.Where.Op != "" {
		c, err := b.predicate(q.Where)
		if err != nil {
			return "", err
		}
		conds = append(conds, c)
	}
	if !q.Window.From.IsZero() {
		conds = append(conds, colCreatedOn+" ge "+q.Window.From.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if !q.Window.To.IsZero() {
		conds = append(conds, colCreatedOn+" le "+q.Window.To.UTC().Format("2006-01-02T15:04:05Z"))
	}
	for _, id := range q.Exclude {
		conds = append(conds, b.identity(id, "ne"))
	}
	return strings.Join(conds, " and "), nil
}

func (b odataBuilder) predicate(p model.Predicate) (string, error) {
	switch p.Op {
	case model.OpAnd, model.OpOr:
		parts := make([]string, 0, len(p.Args))
		for _, a := range p.Args {
			s, err := b.predicate(a)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "(" + strings.Join(parts, " "+string(p.Op)+" ") + ")", nil
	case model.OpNot:
		if len(p.Args) != 1 {
			return "", fmt.Errorf("not takes one argument")
		}
		s, err := b.predicate(p.Args[0])
		if err != nil {
			return "", err
		}
		return "not " + s, nil
	}

	f, ok := model.LookupField(p.Field)
	if !ok {
		return "", fmt.Errorf("unknown field %q", p.Field)
	}
	v, err := model.NormalizeValue(f, p.Op, p.Value)
	if err != nil {
		return "", err
	}

	col := f.Column
	if f.Line {
		col = "l/" + col
	}

	var cond string
	switch {
	case f.Name == "modifier" && p.Op == model.OpIn:
		cond = odataModifierMatch(modifierItems(v)...)
	case f.Name == "modifier" && (p.Op == model.OpEq || p.Op == model.OpNe || p.Op == model.OpContains):
		cond = odataModifierMatch(v.(string))
		if p.Op == model.OpNe {
			cond = "not " + cond
		}
	case p.Op == model.OpContains:
		cond = fmt.Sprintf("contains(%s,%s)", col, odataString(v.(string)))
	case p.Op == model.OpIn:
		items := v.([]interface{})
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprintf("%s eq %s", col, odataLiteral(f, item))
		}
		cond = "(" + strings.Join(parts, " or ") + ")"
	default:
		op := string(p.Op)
		switch p.Op {
		case model.OpGte:
			op = "ge"
		case model.OpLte:
			op = "le"
		}
		cond = fmt.Sprintf("%s %s %s", col, op, odataLiteral(f, v))
	}

	if f.Line {
		return fmt.Sprintf("%s/any(l:%s)", b.lineNavigation, cond), nil
	}
	return cond, nil
}
