package opsc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/structmesh/opsgen/expr"
)

// Operator precedence levels for parenthesisation.
const (
	precAdd = iota + 1
	precMul
	precAtom
)

// printer converts a symbolic expression into the kernel-body literal form.
// With accessTags set, indexed field reads and writes print in the
// access-mode-annotated form u[OPS_ACC0(...)] with index symbols zeroed to
// the relative offset; source mode keeps indices as written and is used for
// the block-comment rendition of the equations.
type printer struct {
	accessTags map[string]string
	source     bool
}

// ccode prints an equality as the kernel assignment statement "lhs = rhs".
func (p *printer) ccode(eq expr.Eq) (string, error) {
	lhs, err := p.print(eq.LHS, precAdd)
	if err != nil {
		return "", err
	}
	rhs, err := p.print(eq.RHS, precAdd)
	if err != nil {
		return "", err
	}
	return lhs + " = " + rhs, nil
}

func (p *printer) print(e expr.Expr, parent int) (string, error) {
	switch n := e.(type) {
	case expr.Rational:
		return p.printRational(n), nil
	case expr.Symbol:
		return n.Name, nil
	case expr.GridVar:
		return n.Name, nil
	case expr.Constant:
		return n.Name, nil
	case expr.GridIdx:
		return fmt.Sprintf("idx[%d]", n.Dim), nil
	case expr.ConstIndexed:
		return p.printConstIndexed(n)
	case *expr.Access:
		return p.printAccess(n)
	case expr.Add:
		return p.printAdd(n, parent)
	case expr.Mul:
		return p.printMul(n, parent)
	case expr.Pow:
		return p.printPow(n)
	default:
		return "", fmt.Errorf("cannot print expression node %T", e)
	}
}

// printRational renders non-integer rationals as a literal floating-point
// division, preserving exact re-derivability; integers stay integers.
func (p *printer) printRational(r expr.Rational) string {
	if r.IsInt() {
		return strconv.FormatInt(r.P, 10)
	}
	return fmt.Sprintf("%d.0/%d.0", r.P, r.Q)
}

func (p *printer) printAccess(a *expr.Access) (string, error) {
	if p.source {
		parts := make([]string, len(a.Indices))
		for i, idx := range a.Indices {
			s, err := p.print(idx, precAdd)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return fmt.Sprintf("%s[%s]", a.Base.Name, strings.Join(parts, ",")), nil
	}
	offsets, err := expr.OffsetsOf(a)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(offsets))
	for i, v := range offsets {
		parts[i] = strconv.Itoa(v)
	}
	if tag := p.accessTags[a.Base.Name]; tag != "" {
		return fmt.Sprintf("%s[%s(%s)]", a.Base.Name, tag, strings.Join(parts, ",")), nil
	}
	return fmt.Sprintf("%s[%s]", a.Base.Name, strings.Join(parts, ",")), nil
}

func (p *printer) printConstIndexed(c expr.ConstIndexed) (string, error) {
	if p.source {
		s, err := p.print(c.Index, precAdd)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s[%s]", c.Name, s), nil
	}
	// Kernel bodies receive one element of the constant array, so the
	// index symbol zeroes like a field offset.
	a := &expr.Access{Base: &expr.Field{Name: c.Name, NDim: 1}, Indices: []expr.Expr{c.Index}}
	offsets, err := expr.OffsetsOf(a)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s[%d]", c.Name, offsets[0]), nil
}

func (p *printer) printAdd(a expr.Add, parent int) (string, error) {
	var sb strings.Builder
	for i, term := range a.Terms {
		neg, pos := splitSign(term)
		s, err := p.print(pos, precAdd+1)
		if err != nil {
			return "", err
		}
		switch {
		case i == 0 && neg:
			sb.WriteString("-")
			sb.WriteString(s)
		case i == 0:
			sb.WriteString(s)
		case neg:
			sb.WriteString(" - ")
			sb.WriteString(s)
		default:
			sb.WriteString(" + ")
			sb.WriteString(s)
		}
	}
	out := sb.String()
	if parent > precAdd {
		out = "(" + out + ")"
	}
	return out, nil
}

// splitSign peels a leading negative coefficient off a term so sums print
// with "-" instead of "+ -1*".
func splitSign(e expr.Expr) (neg bool, positive expr.Expr) {
	switch n := e.(type) {
	case expr.Rational:
		if n.P < 0 {
			return true, expr.Rational{P: -n.P, Q: n.Q}
		}
	case expr.Mul:
		if r, ok := n.Factors[0].(expr.Rational); ok && r.P < 0 {
			abs := expr.Rational{P: -r.P, Q: r.Q}
			if abs.P == 1 && abs.Q == 1 && len(n.Factors) > 1 {
				return true, expr.NewMul(n.Factors[1:]...)
			}
			rest := append([]expr.Expr{abs}, n.Factors[1:]...)
			return true, expr.NewMul(rest...)
		}
	}
	return false, e
}

func (p *printer) printMul(m expr.Mul, parent int) (string, error) {
	factors := m.Factors
	prefix := ""
	if r, ok := factors[0].(expr.Rational); ok && r.P < 0 {
		prefix = "-"
		abs := expr.Rational{P: -r.P, Q: r.Q}
		if abs.P == 1 && abs.Q == 1 && len(factors) > 1 {
			factors = factors[1:]
		} else {
			factors = append([]expr.Expr{abs}, factors[1:]...)
		}
	}
	parts := make([]string, len(factors))
	for i, f := range factors {
		s, err := p.print(f, precMul)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	out := prefix + strings.Join(parts, "*")
	if parent > precMul || (prefix != "" && parent > precAdd) {
		out = "(" + out + ")"
	}
	return out, nil
}

func (p *printer) printPow(pw expr.Pow) (string, error) {
	base, err := p.print(pw.Base, precAtom)
	if err != nil {
		return "", err
	}
	if r, ok := pw.Exp.(expr.Rational); ok && r.IsInt() {
		switch {
		case r.P == -1:
			return "1.0/" + base, nil
		case r.P < 0:
			return fmt.Sprintf("1.0/pow(%s, %d)", base, -r.P), nil
		default:
			return fmt.Sprintf("pow(%s, %d)", base, r.P), nil
		}
	}
	exp, err := p.print(pw.Exp, precAdd)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("pow(%s, %s)", base, exp), nil
}
