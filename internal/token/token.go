// Package token defines the messages that travel over connections and the
// type tags used to decide whether two connectors may be linked.
//
// Payloads are cty values. A connector's token type is a cty.Type, with
// cty.DynamicPseudoType standing for "any".
package token

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Any accepts every token type.
var Any = cty.DynamicPseudoType

// Token is one message committed by an output in one cycle.
type Token struct {
	Value cty.Value
	Seq   int64

	noMessage bool
}

// New wraps a payload.
func New(v cty.Value) *Token {
	return &Token{Value: v}
}

// NoMessage returns the explicit "nothing this cycle" token.
func NoMessage() *Token {
	return &Token{Value: cty.NullVal(cty.DynamicPseudoType), noMessage: true}
}

// IsNoMessage reports whether t carries no payload.
func (t *Token) IsNoMessage() bool {
	return t == nil || t.noMessage
}

// WithSeq returns a copy of t stamped with a sequence number.
func (t *Token) WithSeq(seq int64) *Token {
	c := *t
	c.Seq = seq
	return &c
}

// String is used in logs.
func (t *Token) String() string {
	if t.IsNoMessage() {
		return fmt.Sprintf("#%d <no message>", t.Seq)
	}
	return fmt.Sprintf("#%d %s", t.Seq, t.Value.GoString())
}

// Compatible reports whether an output of type from may feed an input of
// type to: the types are identical or either side accepts any.
func Compatible(from, to cty.Type) bool {
	if from == cty.DynamicPseudoType || to == cty.DynamicPseudoType {
		return true
	}
	return from.Equals(to)
}

// TypeName renders a token type the way it is written in graph files,
// e.g. `number`, `list(string)`, or `any`.
func TypeName(t cty.Type) string {
	return typeexpr.TypeString(t)
}

// ParseType parses a type expression such as `map(number)`.
func ParseType(name string) (cty.Type, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(name), "type", hcl.InitialPos)
	if diags.HasErrors() {
		return cty.NilType, fmt.Errorf("failed to parse type %q: %s", name, diags.Error())
	}
	ty, diags := typeexpr.TypeConstraint(expr)
	if diags.HasErrors() {
		return cty.NilType, fmt.Errorf("invalid type %q: %s", name, diags.Error())
	}
	return ty, nil
}

// MustParseType is like ParseType but panics on error.
func MustParseType(name string) cty.Type {
	ty, err := ParseType(name)
	if err != nil {
		panic(err)
	}
	return ty
}
