package gateway

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/claimguard/internal/model"
)

var sqlOps = map[model.Op]string{
	model.OpEq:  "=",
	model.OpNe:  "<>",
	model.OpGt:  ">",
	model.OpGte: ">=",
	model.OpLt:  "<",
	model.OpLte: "<=",
}

// sqlBuilder renders structured queries as the T-SQL subset the read_query tool accepts
type sqlBuilder struct {
	claimTable string
	lineTable  string
}

func sqlLiteral(v interface{}) string {
	switch x := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case time.Time:
		return "'" + x.UTC().Format("2006-01-02T15:04:05Z") + "'"
	default:
		return sqlLiteral(fmt.Sprint(x))
	}
}

// sqlLike escapes a LIKE pattern fragment
func sqlLike(s string) string {
	s = strings.NewReplacer("'", "''", "%", "[%]", "_", "[_]", "[", "[[]").Replace(s)
	return "'%" + s + "%'"
}

// sqlModifierMatch matches a line carrying any of mods. Modifiers are stored
// colon-joined across two columns, so each one is a substring test on both.
func sqlModifierMatch(mods ...string) string {
	parts := make([]string, len(mods))
	for i, m := range mods {
		like := sqlLike(m)
		parts[i] = fmt.Sprintf("%s LIKE %s OR %s LIKE %s", colModifiers, like, colAddlModifiers, like)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func modifierItems(v interface{}) []string {
	items := v.([]interface{})
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = fmt.Sprint(item)
	}
	return out
}

// identity returns the predicate selecting one claim: by GUID when the id parses, else by name
func (b sqlBuilder) identity(claimID string, op string) string {
	if id, err := uuid.Parse(claimID); err == nil {
		return fmt.Sprintf("%s %s %s", colClaimID, op, sqlLiteral(id.String()))
	}
	return fmt.Sprintf("%s %s %s", colClaimName, op, sqlLiteral(claimID))
}

func (b sqlBuilder) fetch(claimID string) string {
	return fmt.Sprintf("SELECT TOP 1 * FROM %s WHERE %s", b.claimTable, b.identity(claimID, "="))
}

func (b sqlBuilder) lines(claimID string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE %s = %s", b.lineTable, colLineClaim, sqlLiteral(claimID))
}

func (b sqlBuilder) query(q model.StructuredQuery, limit int) (string, error) {
	var conds []string
	if q.Where.Op != "" {
		c, err := b.predicate(q.Where)
		if err != nil {
			return "", err
		}
		conds = append(conds, c)
	}
	if !q.Window.From.IsZero() {
		conds = append(conds, colCreatedOn+" >= "+sqlLiteral(q.Window.From))
	}
	if !q.Window.To.IsZero() {
		conds = append(conds, colCreatedOn+" <= "+sqlLiteral(q.Window.To))
	}
	for _, id := range q.Exclude {
		conds = append(conds, b.identity(id, "<>"))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	return fmt.Sprintf("SELECT TOP %d * FROM %s%s ORDER BY %s DESC", limit, b.claimTable, where, colCreatedOn), nil
}

func (b sqlBuilder) predicate(p model.Predicate) (string, error) {
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
		return "(" + strings.Join(parts, " "+strings.ToUpper(string(p.Op))+" ") + ")", nil
	case model.OpNot:
		if len(p.Args) != 1 {
			return "", fmt.Errorf("not takes one argument")
		}
		s, err := b.predicate(p.Args[0])
		if err != nil {
			return "", err
		}
		return "NOT " + s, nil
	}

	f, ok := model.LookupField(p.Field)
	if !ok {
		return "", fmt.Errorf("unknown field %q", p.Field)
	}
	v, err := model.NormalizeValue(f, p.Op, p.Value)
	if err != nil {
		return "", err
	}

	var cond string
	switch {
	case f.Name == "modifier" && p.Op == model.OpIn:
		cond = sqlModifierMatch(modifierItems(v)...)
	case f.Name == "modifier" && (p.Op == model.OpEq || p.Op == model.OpNe || p.Op == model.OpContains):
		cond = sqlModifierMatch(v.(string))
		if p.Op == model.OpNe {
			cond = "NOT " + cond
		}
	case p.Op == model.OpContains:
		cond = fmt.Sprintf("%s LIKE %s", f.Column, sqlLike(v.(string)))
	case p.Op == model.OpIn:
		items := v.([]interface{})
		lits := make([]string, len(items))
		for i, item := range items {
			lits[i] = sqlLiteral(item)
		}
		cond = fmt.Sprintf("%s IN (%s)", f.Column, strings.Join(lits, ", "))
	default:
		cond = fmt.Sprintf("%s %s %s", f.Column, sqlOps[p.Op], sqlLiteral(v))
	}

	if f.Line {
		return fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s)", colClaimID, colLineClaim, b.lineTable, cond), nil
	}
	return cond, nil
}
