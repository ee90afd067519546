package qrouter

import (
	"strings"

	"github.com/pg-sharding/lyx/lyx"

	"github.com/pg-sharding/readreplicas/pkg/conn"
)

// Functions known not to modify data. Any other function call makes a
// statement unsafe for a replica since it may be volatile.
var readOnlyFuncs = map[string]struct{}{
	"now":               {},
	"current_timestamp": {},
	"current_schema":    {},
	"current_database":  {},
	"pg_is_in_recovery": {},
	"version":           {},
	"count":             {},
	"sum":               {},
	"min":               {},
	"max":               {},
	"avg":               {},
	"coalesce":          {},
	"lower":             {},
	"upper":             {},
	"length":            {},
}

// rawStatementIsReadOnly reports whether the SQL of a raw query is a single
// statement that cannot modify data. Unparsable text is not.
func rawStatementIsReadOnly(args any) bool {
	raw, err := conn.ToRawArgs(args)
	if err != nil {
		return false
	}

	calls, ok := scanTokens(raw.SQL)
	if !ok {
		return false
	}

	stmt, err := lyx.Parse(raw.SQL)
	if err != nil || stmt == nil {
		return false
	}

	w := &roWalker{}
	if !w.stmt(stmt) {
		return false
	}
	// The parser drops some constructs (CASE, IS NULL, casts) from the
	// tree. A call seen by the lexer but not by the walker was inside one.
	return w.calls >= calls
}

// scanTokens lexes sql and counts identifier call sites. It fails on a
// second statement or a row locking clause.
func scanTokens(sql string) (int, bool) {
	t := lyx.NewStringTokenizer(sql)

	calls := 0
	prev, prev2 := 0, 0
	ended := false
	for {
		tok := t.LexT()
		if tok == 0 {
			break
		}
		if ended {
			return 0, false
		}
		switch {
		case tok == lyx.TSEMICOLON:
			ended = true
		case tok == lyx.TOPENBR && prev == lyx.IDENT:
			calls++
		case prev == lyx.FOR && (tok == lyx.UPDATE || tok == lyx.SHARE || tok == lyx.KEY):
			return 0, false
		case prev2 == lyx.FOR && prev == lyx.IDENT && tok == lyx.KEY:
			// FOR NO KEY UPDATE
			return 0, false
		}
		prev2, prev = prev, tok
	}
	return calls, true
}

func lexesAsIdent(name string) bool {
	t := lyx.NewStringTokenizer(name)
	return t.LexT() == lyx.IDENT && t.LexT() == 0
}

type roWalker struct {
	calls int
}

func (w *roWalker) stmt(stmt any) bool {
	switch s := stmt.(type) {
	case *lyx.Select:
		for _, cte := range s.WithClause {
			if !w.stmt(cte.SubQuery) {
				return false
			}
		}
		for _, expr := range s.TargetList {
			if !w.expr(expr) {
				return false
			}
		}
		for _, node := range s.FromClause {
			if !w.from(node) {
				return false
			}
		}
		if !w.expr(s.Where) {
			return false
		}
		if s.LArg != nil && !w.stmt(s.LArg) {
			return false
		}
		if s.RArg != nil && !w.stmt(s.RArg) {
			return false
		}
		return true
	case *lyx.ValueClause:
		for _, row := range s.Values {
			for _, v := range row {
				if !w.expr(v) {
					return false
				}
			}
		}
		return true
	}
	return false
}

func (w *roWalker) from(node any) bool {
	switch q := node.(type) {
	case *lyx.RangeVar:
		return true
	case *lyx.JoinExpr:
		return w.from(q.Larg) && w.from(q.Rarg)
	case *lyx.SubSelect:
		return w.stmt(q.Arg)
	case *lyx.FuncApplication:
		return w.fn(q)
	}
	return false
}

func (w *roWalker) fn(f *lyx.FuncApplication) bool {
	if _, ok := readOnlyFuncs[strings.ToLower(f.Name)]; !ok {
		return false
	}
	if lexesAsIdent(f.Name) {
		w.calls++
	}
	for _, arg := range f.Args {
		if !w.expr(arg) {
			return false
		}
	}
	return true
}

// expr accepts only the expression nodes listed here.
func (w *roWalker) expr(expr any) bool {
	switch e := expr.(type) {
	case nil:
		return true
	case *lyx.ColumnRef, *lyx.ParamRef, *lyx.AExprEmpty,
		*lyx.AExprSConst, *lyx.AExprIConst, *lyx.AExprBConst, *lyx.AExprNConst:
		return true
	case *lyx.ResTarget:
		return w.expr(e.Value)
	case *lyx.FuncApplication:
		return w.fn(e)
	case *lyx.SubLink:
		return w.stmt(e.SubSelect)
	case *lyx.AExprOp:
		return w.expr(e.Left) && w.expr(e.Right)
	case *lyx.AExprNot:
		return w.expr(e.Arg)
	case *lyx.AExprIn:
		return w.expr(e.Expr) && w.expr(e.SubLink)
	case *lyx.AExprList:
		for _, item := range e.List {
			if !w.expr(item) {
				return false
			}
		}
		return true
	case *lyx.Select, *lyx.ValueClause:
		return w.stmt(e)
	}
	return false
}
