/*
Package expr compiles route conditions that are evaluated against graph state.

Declarative graph definitions use conditions to pick a branch without a
registered router:

	conditional_edges:
	  - from: review
	    cases:
	      - {when: "verdict == 'approve' and score >= 3", to: publish}
	      - {when: "attempts > 2", to: __end__}
	    default: write

Conditions are parsed once with Compile; syntax errors surface when the
definition loads, not when the route is taken.

# Syntax

	<expr>    := <or>
	<or>      := <and> ('or' <and>)*
	<and>     := <unary> ('and' <unary>)*
	<unary>   := ('not' | '!') <unary> | <compare>
	<compare> := <operand> [<op> <operand>]
	<op>      := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'contains'
	<operand> := 'string' | "string" | number | true | false | null
	           | identifier | '(' <expr> ')'

Identifiers name state keys. A dotted identifier walks nested maps:
"review.score" reads the "score" entry of the map under "review". Missing
keys resolve to null.

# Comparison

  - == and != compare numbers numerically and everything else by its
    printed form.
  - <, >, <= and >= compare numerically when both sides are numbers and
    lexically when both are strings; mixed operands are false.
  - contains tests substring membership for strings and element membership
    for lists.

A lone operand is tested for truthiness: null, false, "", zero numbers and
empty lists are false.
*/
package expr
