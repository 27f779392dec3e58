package ir

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const indentationStep = "  "

// Script renders an expression, statement, IterVar or PrimFunc in a compact human-readable
// text form, used in error messages, debugging and tests.
func Script(node any) string {
	p := &printer{}
	p.print(node)
	return p.sb.String()
}

type printer struct {
	sb     strings.Builder
	indent string
}

func (p *printer) w(format string, args ...any) {
	fmt.Fprintf(&p.sb, format, args...)
}

func (p *printer) print(node any) {
	switch n := node.(type) {
	case nil:
		p.w("<nil>")
	case Expr:
		p.expr(n)
	case Stmt:
		p.stmt(n)
	case *IterVar:
		p.iterVar(n)
	case *Range:
		p.w("range(min=%s, ext=%s)", Script(n.Min), Script(n.Extent))
	case *Buffer:
		p.buffer(n)
	case *PrimFunc:
		p.sb.WriteString(scriptPrimFunc(n.GlobalSymbol(), n))
	default:
		p.w("%v", n)
	}
}

func (p *printer) exprList(exprs []Expr) {
	for i, e := range exprs {
		if i > 0 {
			p.w(", ")
		}
		p.expr(e)
	}
}

func (p *printer) expr(e Expr) {
	switch n := e.(type) {
	case *IntImm:
		switch {
		case n.DType.IsBool():
			if n.Value != 0 {
				p.w("True")
			} else {
				p.w("False")
			}
		case n.DType == Int32():
			p.w("%d", n.Value)
		default:
			p.w("%s(%d)", n.DType, n.Value)
		}
	case *FloatImm:
		text := strconv.FormatFloat(n.Value, 'g', -1, 64)
		if !strings.ContainsAny(text, ".eEnN") {
			text += ".0"
		}
		switch n.DType.Bits {
		case 32:
			p.w("%sf", text)
		case 64:
			p.w("%s", text)
		default:
			p.w("%s(%s)", n.DType, text)
		}
	case *StringImm:
		p.w("%q", n.Value)
	case *Var:
		p.w("%s", n.Name)
	case *Binary:
		if sym := n.Op.InfixSymbol(); sym != "" {
			p.w("(")
			p.expr(n.A)
			p.w(" %s ", sym)
			p.expr(n.B)
			p.w(")")
			return
		}
		p.w("%s(", strings.ToLower(n.Op.String()))
		p.expr(n.A)
		p.w(", ")
		p.expr(n.B)
		p.w(")")
	case *Not:
		p.w("!")
		p.expr(n.A)
	case *Cast:
		p.w("%s(", n.DType)
		p.expr(n.Value)
		p.w(")")
	case *Select:
		p.w("select(")
		p.exprList([]Expr{n.Cond, n.True, n.False})
		p.w(")")
	case *ProducerLoad:
		p.w("%s[", n.Producer.ProducerName())
		p.exprList(n.Indices)
		p.w("]")
	case *BufferLoad:
		p.w("%s[", n.Buffer.Name)
		p.expr(n.Index)
		p.w("]")
	case *Call:
		p.w("@%s(", n.Op)
		p.exprList(n.Args)
		p.w(", dtype=%s)", n.DType)
	default:
		p.w("<unknown expr %T>", e)
	}
}

func (p *printer) iterVar(iv *IterVar) {
	p.w("IterVar(%s: %s, ", iv.Var.Name, iv.Var.DType)
	if iv.Dom != nil {
		p.print(iv.Dom)
	} else {
		p.w("(nullptr)")
	}
	p.w(", %q, %q)", iv.Kind.String(), iv.ThreadTag)
}

func (p *printer) buffer(b *Buffer) {
	p.w("Buffer(%s, %s, [", b.Data.Name, b.DType)
	p.exprList(b.Shape)
	p.w("], [")
	p.exprList(b.Strides)
	p.w("])")
}

func (p *printer) line(format string, args ...any) {
	p.w("%s", p.indent)
	p.w(format, args...)
	p.w("\n")
}

func (p *printer) nested(body Stmt) {
	saved := p.indent
	p.indent += indentationStep
	p.stmt(body)
	p.indent = saved
}

func (p *printer) stmt(s Stmt) {
	switch n := s.(type) {
	case *LetStmt:
		p.line("%s: %s = %s", n.Var.Name, n.Var.DType, Script(n.Value))
		p.stmt(n.Body)
	case *AttrStmt:
		p.line("attr [%s] %q = %s", Script(n.Node), n.Key, Script(n.Value))
		p.stmt(n.Body)
	case *AssertStmt:
		p.line("assert(%s, %q)", Script(n.Cond), n.Message)
		p.stmt(n.Body)
	case *For:
		if n.Kind == ForSerial {
			p.line("for (%s, %s, %s) {", n.LoopVar.Name, Script(n.Min), Script(n.Extent))
		} else {
			p.line("for (%s, %s, %s) %q {", n.LoopVar.Name, Script(n.Min), Script(n.Extent), n.Kind.String())
		}
		p.nested(n.Body)
		p.line("}")
	case *IfThenElse:
		p.line("if %s {", Script(n.Cond))
		p.nested(n.Then)
		if n.Else != nil {
			p.line("} else {")
			p.nested(n.Else)
		}
		p.line("}")
	case *BufferStore:
		p.line("%s[%s] = %s", n.Buffer.Name, Script(n.Index), Script(n.Value))
	case *SeqStmt:
		for _, child := range n.Seq {
			p.stmt(child)
		}
	case *Evaluate:
		p.line("%s", Script(n.Value))
	default:
		p.line("<unknown stmt %T>", s)
	}
}

func scriptAttrValue(v any) string {
	switch value := v.(type) {
	case string:
		return strconv.Quote(value)
	case bool:
		if value {
			return "True"
		}
		return "False"
	case []string:
		quoted := make([]string, len(value))
		for i, s := range value {
			quoted[i] = strconv.Quote(s)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	case fmt.Stringer:
		return strconv.Quote(value.String())
	default:
		return fmt.Sprintf("%v", value)
	}
}

func scriptPrimFunc(name string, f *PrimFunc) string {
	p := &printer{}
	p.w("primfn %s(", name)
	for i, param := range f.Params {
		if i > 0 {
			p.w(", ")
		}
		p.w("%s: %s", param.Name, param.DType)
	}
	p.w(") -> %s {\n", f.RetType)
	p.indent = indentationStep
	if len(f.Attrs) > 0 {
		keys := make([]string, 0, len(f.Attrs))
		for k := range f.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%q: %s", k, scriptAttrValue(f.Attrs[k]))
		}
		p.line("attr = {%s}", strings.Join(parts, ", "))
	}
	if len(f.BufferMap) > 0 {
		var parts []string
		for _, param := range f.Params {
			if buf, found := f.BufferMap[param]; found {
				parts = append(parts, fmt.Sprintf("%s: %s", param.Name, Script(buf)))
			}
		}
		p.line("buffers = {%s}", strings.Join(parts, ", "))
	}
	p.stmt(f.Body)
	p.w("}\n")
	return p.sb.String()
}
