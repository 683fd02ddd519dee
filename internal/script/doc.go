// Package script is a small action interpreter that implements
// engine.Evaluator.
//
// A routine body is a list of actions executed in order:
//
//	set <var> <operand>        assign
//	add <var> <operand>        integer add
//	concat <var> <operand>     text append
//	return [<operand>]         stop and return a value
//	dispatch <routine> [a [b]] nested host event, synchronous
//	critical on|off            leave or enter the interruptible state
//	seterror <operand>         write the global error indicator
//	setflag <flag> <operand>   write one global state flag
//	fail <operand>             routine-body failure
//	exitapp | reload           terminal request for the host
//
// Operands are literals or contain %name% references to the routine's
// variables. An operand that is exactly one reference yields the variable's
// value unchanged; otherwise references are substituted into the text.
// Integer literals become ir.Int.
package script
