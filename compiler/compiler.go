// Package compiler implements the single-pass Pratt compiler: it reads a
// token stream directly from source and emits bytecode into vm.Chunk
// values, with no intermediate AST.
package compiler

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"

	"github.com/covec/lumen/vm"
)

// Precedence orders the binding strength of infix operators, from no
// binding power at all up to primary expressions.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

var rules map[TokenType]parseRule

func init() {
	rules = map[TokenType]parseRule{
		TokenLeftParen:    {(*Compiler).grouping, (*Compiler).call, PrecCall},
		TokenMinus:        {(*Compiler).unary, (*Compiler).binary, PrecTerm},
		TokenPlus:         {nil, (*Compiler).binary, PrecTerm},
		TokenSlash:        {nil, (*Compiler).binary, PrecFactor},
		TokenStar:         {nil, (*Compiler).binary, PrecFactor},
		TokenPercent:      {nil, (*Compiler).binary, PrecFactor},
		TokenBang:         {(*Compiler).unary, nil, PrecNone},
		TokenBangEqual:    {nil, (*Compiler).binary, PrecEquality},
		TokenEqualEqual:   {nil, (*Compiler).binary, PrecEquality},
		TokenGreater:      {nil, (*Compiler).binary, PrecComparison},
		TokenGreaterEqual: {nil, (*Compiler).binary, PrecComparison},
		TokenLess:         {nil, (*Compiler).binary, PrecComparison},
		TokenLessEqual:    {nil, (*Compiler).binary, PrecComparison},
		TokenIdentifier:   {(*Compiler).variable, nil, PrecNone},
		TokenString:       {(*Compiler).stringLiteral, nil, PrecNone},
		TokenNumber:       {(*Compiler).number, nil, PrecNone},
		TokenAnd:          {nil, (*Compiler).and_, PrecAnd},
		TokenOr:           {nil, (*Compiler).or_, PrecOr},
		TokenTrue:         {(*Compiler).literal, nil, PrecNone},
		TokenFalse:        {(*Compiler).literal, nil, PrecNone},
		TokenNil:          {(*Compiler).literal, nil, PrecNone},
	}
}

func getRule(t TokenType) parseRule {
	return rules[t]
}

// local tracks one compile-time local variable: its lexeme and the scope
// depth at which it became readable. depth == -1 means "reserved, its own
// initializer is still compiling" -- resolveLocal treats such an entry as
// absent, so `var x = x;` at local scope resolves the right-hand x to
// whatever x is visible in an enclosing scope or the globals, not to
// itself.
type local struct {
	name  string
	depth int
}

type loopState struct {
	start      int
	scopeDepth int
}

type breakable struct {
	jumps      []int
	scopeDepth int
}

// funcScope holds everything specific to compiling one function body
// (including the implicit top-level script function). Functions don't
// nest lexically for variable capture -- there are no closures -- so a
// funcScope only chains to its enclosing funcScope to resume compiling
// the surrounding code once the nested function is finished.
type funcScope struct {
	enclosing *funcScope
	fnObj     *vm.Obj
	fn        *vm.Function

	locals     []local
	scopeDepth int

	loops      []loopState
	breakables []*breakable
}

// newFuncScope starts a fresh function-compilation context with the
// sentinel slot-0 local every frame reserves for the function object
// itself.
func newFuncScope(machine *vm.VM, enclosing *funcScope, name string) *funcScope {
	fnObj := machine.NewFunctionObj(name)
	return &funcScope{
		enclosing: enclosing,
		fnObj:     fnObj,
		fn:        fnObj.AsFunction(),
		locals:    []local{{name: "", depth: 0}},
	}
}

// Compiler is the single-pass parser/code generator. All parsing methods
// hang off it rather than being free functions with an explicit state
// pointer, but the effect is the same: no per-token-kind virtual dispatch,
// just a rule table of plain function values keyed by token kind.
type Compiler struct {
	vm      *vm.VM
	scanner *Scanner

	previous Token
	current  Token

	hadError   bool
	panicMode  bool
	errorCount int
	errOut     io.Writer

	scope *funcScope
}

// Compile compiles source into a root Function object belonging to
// machine, or returns a *vm.CompileError if any parse error occurred.
// Diagnostics are written to errOut as they're found.
func Compile(machine *vm.VM, source string, errOut io.Writer) (*vm.Obj, error) {
	c := &Compiler{
		vm:      machine,
		scanner: NewScanner(source),
		errOut:  errOut,
	}
	c.scope = newFuncScope(machine, nil, "")

	c.advance()
	for !c.check(TokenEOF) {
		c.declaration()
	}
	c.emitOp(vm.OpNil)
	c.emitOp(vm.OpReturn)

	if c.hadError {
		return nil, &vm.CompileError{Count: c.errorCount}
	}
	return c.scope.fnObj, nil
}

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.scanner.NextToken()
		if c.current.Type != TokenError {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(t TokenType) bool {
	return c.current.Type == t
}

func (c *Compiler) match(t TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t TokenType, message string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

// --- error reporting ---------------------------------------------------

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.current, message)
}

func (c *Compiler) error(message string) {
	c.errorAt(c.previous, message)
}

func (c *Compiler) errorAt(token Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true
	c.errorCount++

	fmt.Fprint(c.errOut, color.RedString("[line %d] Error", token.Line))
	switch token.Type {
	case TokenEOF:
		fmt.Fprint(c.errOut, " at end")
	case TokenError:
		// location already implied by the scanner's own message
	default:
		fmt.Fprintf(c.errOut, " at '%s'", token.Lexeme)
	}
	fmt.Fprintf(c.errOut, ": %s\n", message)
}

// synchronize consumes tokens until a likely statement boundary, so one
// error doesn't cascade into a flood of follow-on errors.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for !c.check(TokenEOF) {
		if c.previous.Type == TokenSemicolon {
			return
		}
		switch c.current.Type {
		case TokenFun, TokenVar, TokenFor, TokenIf, TokenWhile, TokenSwitch, TokenPrint, TokenReturn:
			return
		}
		c.advance()
	}
}

// --- bytecode emission -------------------------------------------------

func (c *Compiler) chunk() *vm.Chunk {
	return c.scope.fn.Chunk
}

func (c *Compiler) currentOffset() int {
	return c.chunk().Len()
}

func (c *Compiler) emitByte(b byte) {
	c.chunk().Write(b, c.previous.Line)
}

func (c *Compiler) emitOp(op vm.Opcode) {
	c.chunk().WriteOp(op, c.previous.Line)
}

func (c *Compiler) emitUint16(v int) {
	c.emitByte(byte(v))
	c.emitByte(byte(v >> 8))
}

func (c *Compiler) emitUint24(v int) {
	c.emitByte(byte(v))
	c.emitByte(byte(v >> 8))
	c.emitByte(byte(v >> 16))
}

func (c *Compiler) emitConstant(v vm.Value) {
	idx := c.chunk().AddConstant(v)
	if idx <= 255 {
		c.emitOp(vm.OpConstant)
		c.emitByte(byte(idx))
	} else {
		c.emitOp(vm.OpConstantLong)
		c.emitUint24(idx)
	}
}

func (c *Compiler) emitDefineGlobal(slot int) {
	if slot <= 255 {
		c.emitOp(vm.OpDefineGlobal)
		c.emitByte(byte(slot))
	} else {
		c.emitOp(vm.OpDefineGlobalLong)
		c.emitUint24(slot)
	}
}

// emitJump writes op followed by a 2-byte placeholder and returns the
// offset of op itself, to be patched once the jump target is known.
func (c *Compiler) emitJump(op vm.Opcode) int {
	offset := c.currentOffset()
	c.emitOp(op)
	c.emitUint16(0xFFFF)
	return offset
}

// patchJump fills in a forward jump's offset to land on the next byte to
// be emitted.
func (c *Compiler) patchJump(opOffset int) {
	target := c.currentOffset()
	delta := target - (opOffset + 3)
	if delta > 65535 {
		c.error("Too much code to jump over.")
		return
	}
	code := c.chunk().Code
	code[opOffset+1] = byte(delta)
	code[opOffset+2] = byte(delta >> 8)
}

// emitLoopBack emits JUMP_BACK targeting loopStart.
func (c *Compiler) emitLoopBack(loopStart int) {
	opOffset := c.currentOffset()
	c.emitOp(vm.OpJumpBack)
	delta := (opOffset + 3) - loopStart
	if delta < 0 || delta > 65535 {
		c.error("Loop body too large.")
		c.emitUint16(0)
		return
	}
	c.emitUint16(delta)
}

// --- scope management ---------------------------------------------------

func (c *Compiler) beginScope() {
	c.scope.scopeDepth++
}

func (c *Compiler) endScope() {
	c.scope.scopeDepth--
	locals := c.scope.locals
	for len(locals) > 0 && locals[len(locals)-1].depth > c.scope.scopeDepth {
		c.emitOp(vm.OpPop)
		locals = locals[:len(locals)-1]
	}
	c.scope.locals = locals
}

func (c *Compiler) declareLocal(name Token) {
	if len(c.scope.locals) >= 256 {
		c.error("Too many local variables in scope.")
		return
	}
	c.scope.locals = append(c.scope.locals, local{name: name.Lexeme, depth: -1})
}

func (c *Compiler) markInitialized() {
	c.scope.locals[len(c.scope.locals)-1].depth = c.scope.scopeDepth
}

// resolveLocal walks this function's locals from innermost to outermost,
// skipping reserved (depth == -1) entries, and returns the slot index or
// -1 if name isn't a local.
func (c *Compiler) resolveLocal(name string) int {
	locals := c.scope.locals
	for i := len(locals) - 1; i >= 0; i-- {
		if locals[i].depth == -1 {
			continue
		}
		if locals[i].name == name {
			return i
		}
	}
	return -1
}

// --- loop / break-target bookkeeping ------------------------------------

func (c *Compiler) pushLoop(start int) {
	c.scope.loops = append(c.scope.loops, loopState{start: start, scopeDepth: c.scope.scopeDepth})
}

func (c *Compiler) popLoop() {
	c.scope.loops = c.scope.loops[:len(c.scope.loops)-1]
}

func (c *Compiler) pushBreakable() {
	c.scope.breakables = append(c.scope.breakables, &breakable{scopeDepth: c.scope.scopeDepth})
}

func (c *Compiler) popBreakable() []int {
	b := c.scope.breakables[len(c.scope.breakables)-1]
	c.scope.breakables = c.scope.breakables[:len(c.scope.breakables)-1]
	return b.jumps
}

// popLocalsAbove emits a POP for every local declared deeper than depth,
// without removing them from the compiler's tracking -- the enclosing
// block's own endScope will do that once normal control flow reaches it.
func (c *Compiler) popLocalsAbove(depth int) {
	locals := c.scope.locals
	for i := len(locals) - 1; i >= 0 && locals[i].depth > depth; i-- {
		c.emitOp(vm.OpPop)
	}
}

// --- declarations & statements -------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(TokenFun):
		c.funDeclaration()
	case c.match(TokenVar):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	c.consume(TokenIdentifier, "Expect variable name.")
	name := c.previous

	if c.scope.scopeDepth > 0 {
		c.declareLocal(name)
		if c.match(TokenEqual) {
			c.expression()
		} else {
			c.emitOp(vm.OpNil)
		}
		c.consume(TokenSemicolon, "Expect ';' after variable declaration.")
		c.markInitialized()
		return
	}

	slot := c.vm.Globals.SlotFor(name.Lexeme)
	if c.match(TokenEqual) {
		c.expression()
	} else {
		c.emitOp(vm.OpNil)
	}
	c.consume(TokenSemicolon, "Expect ';' after variable declaration.")
	c.emitDefineGlobal(slot)
}

func (c *Compiler) funDeclaration() {
	c.consume(TokenIdentifier, "Expect function name.")
	name := c.previous

	isLocal := c.scope.scopeDepth > 0
	var slot int
	if isLocal {
		c.declareLocal(name)
		c.markInitialized()
	} else {
		slot = c.vm.Globals.SlotFor(name.Lexeme)
	}

	c.function(name.Lexeme)

	if !isLocal {
		c.emitDefineGlobal(slot)
	}
}

// function compiles one function body (parameters + block) into a new
// funcScope, then emits the resulting Function as a constant in the
// enclosing chunk.
func (c *Compiler) function(name string) {
	enclosing := c.scope
	c.scope = newFuncScope(c.vm, enclosing, name)
	c.beginScope()

	c.consume(TokenLeftParen, "Expect '(' after function name.")
	if !c.check(TokenRightParen) {
		for {
			c.scope.fn.Arity++
			if c.scope.fn.Arity > 255 {
				c.errorAtCurrent("Cannot have more than 255 parameters.")
			}
			c.consume(TokenIdentifier, "Expect parameter name.")
			param := c.previous
			c.declareLocal(param)
			c.markInitialized()
			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRightParen, "Expect ')' after parameters.")
	c.consume(TokenLeftBrace, "Expect '{' before function body.")
	c.block()

	c.emitOp(vm.OpNil)
	c.emitOp(vm.OpReturn)

	fnObj := c.scope.fnObj
	c.scope = enclosing
	c.emitConstant(vm.ObjValue(fnObj))
}

func (c *Compiler) block() {
	for !c.check(TokenRightBrace) && !c.check(TokenEOF) {
		c.declaration()
	}
	c.consume(TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) statement() {
	switch {
	case c.match(TokenPrint):
		c.printStatement()
	case c.match(TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	case c.match(TokenIf):
		c.ifStatement()
	case c.match(TokenWhile):
		c.whileStatement()
	case c.match(TokenFor):
		c.forStatement()
	case c.match(TokenReturn):
		c.returnStatement()
	case c.match(TokenBreak):
		c.breakStatement()
	case c.match(TokenContinue):
		c.continueStatement()
	case c.match(TokenSwitch):
		c.switchStatement()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(TokenSemicolon, "Expect ';' after value.")
	c.emitOp(vm.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(vm.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitOp(vm.OpPop)
	c.statement()

	elseJump := c.emitJump(vm.OpJump)
	c.patchJump(thenJump)
	c.emitOp(vm.OpPop)

	if c.match(TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := c.currentOffset()
	c.consume(TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitOp(vm.OpPop)

	c.pushLoop(loopStart)
	c.pushBreakable()
	c.statement()
	c.emitLoopBack(loopStart)

	c.patchJump(exitJump)
	c.emitOp(vm.OpPop)

	for _, j := range c.popBreakable() {
		c.patchJump(j)
	}
	c.popLoop()
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(TokenLeftParen, "Expect '(' after 'for'.")

	switch {
	case c.match(TokenSemicolon):
		// no initializer
	case c.match(TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := c.currentOffset()
	exitJump := -1
	if !c.match(TokenSemicolon) {
		c.expression()
		c.consume(TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(vm.OpJumpIfFalse)
		c.emitOp(vm.OpPop)
	}

	if !c.check(TokenRightParen) {
		bodyJump := c.emitJump(vm.OpJump)
		incrStart := c.currentOffset()
		c.expression()
		c.emitOp(vm.OpPop)
		c.consume(TokenRightParen, "Expect ')' after for clauses.")

		c.emitLoopBack(loopStart)
		loopStart = incrStart
		c.patchJump(bodyJump)
	} else {
		c.consume(TokenRightParen, "Expect ')' after for clauses.")
	}

	c.pushLoop(loopStart)
	c.pushBreakable()
	c.statement()
	c.emitLoopBack(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(vm.OpPop)
	}

	for _, j := range c.popBreakable() {
		c.patchJump(j)
	}
	c.popLoop()
	c.endScope()
}

func (c *Compiler) returnStatement() {
	if c.scope.enclosing == nil {
		c.error("Can't return from top-level code.")
	}
	if c.match(TokenSemicolon) {
		c.emitOp(vm.OpNil)
		c.emitOp(vm.OpReturn)
		return
	}
	c.expression()
	c.consume(TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(vm.OpReturn)
}

func (c *Compiler) breakStatement() {
	if len(c.scope.breakables) == 0 {
		c.error("Can't use 'break' outside of a loop or switch.")
		c.consume(TokenSemicolon, "Expect ';' after 'break'.")
		return
	}
	top := c.scope.breakables[len(c.scope.breakables)-1]
	c.popLocalsAbove(top.scopeDepth)
	top.jumps = append(top.jumps, c.emitJump(vm.OpJump))
	c.consume(TokenSemicolon, "Expect ';' after 'break'.")
}

func (c *Compiler) continueStatement() {
	if len(c.scope.loops) == 0 {
		c.error("Can't use 'continue' outside of a loop.")
		c.consume(TokenSemicolon, "Expect ';' after 'continue'.")
		return
	}
	top := c.scope.loops[len(c.scope.loops)-1]
	c.popLocalsAbove(top.scopeDepth)
	c.emitLoopBack(top.start)
	c.consume(TokenSemicolon, "Expect ';' after 'continue'.")
}

// switchStatement implements switch/case/default. The subject value is
// left on the stack for the statement's duration as a synthetic,
// unnamed local; each case re-compares it with DUP/EQUAL/JUMP_IF_FALSE,
// and every case body ends with an unconditional jump to the switch's
// end so bodies never fall through into the next case by default.
func (c *Compiler) switchStatement() {
	c.consume(TokenLeftParen, "Expect '(' after 'switch'.")
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after switch subject.")

	c.beginScope()
	c.declareLocal(Token{Lexeme: ""})
	c.markInitialized()

	c.consume(TokenLeftBrace, "Expect '{' before switch body.")
	c.pushBreakable()

	if !c.check(TokenCase) && !c.check(TokenDefault) && !c.check(TokenRightBrace) {
		c.errorAtCurrent("Expect 'case' or 'default'.")
	}

	seenDefault := false
	pendingFalseJump := -1

	for !c.check(TokenRightBrace) && !c.check(TokenEOF) {
		switch {
		case c.match(TokenCase):
			if seenDefault {
				c.error("Can't have a case after a default case.")
			}
			if pendingFalseJump != -1 {
				c.patchJump(pendingFalseJump)
				c.emitOp(vm.OpPop)
			}
			c.emitOp(vm.OpDup)
			c.expression()
			c.consume(TokenColon, "Expect ':' after case value.")
			c.emitOp(vm.OpEqual)
			pendingFalseJump = c.emitJump(vm.OpJumpIfFalse)
			c.emitOp(vm.OpPop)

			for !c.check(TokenCase) && !c.check(TokenDefault) && !c.check(TokenRightBrace) && !c.check(TokenEOF) {
				c.statement()
			}
			top := c.scope.breakables[len(c.scope.breakables)-1]
			top.jumps = append(top.jumps, c.emitJump(vm.OpJump))

		case c.match(TokenDefault):
			if seenDefault {
				c.error("Can't have two default cases.")
			}
			seenDefault = true
			if pendingFalseJump != -1 {
				c.patchJump(pendingFalseJump)
				c.emitOp(vm.OpPop)
				pendingFalseJump = -1
			}
			c.consume(TokenColon, "Expect ':' after 'default'.")
			for !c.check(TokenCase) && !c.check(TokenDefault) && !c.check(TokenRightBrace) && !c.check(TokenEOF) {
				c.statement()
			}

		default:
			c.errorAtCurrent("Expect 'case' or 'default'.")
			c.advance()
		}
	}
	c.consume(TokenRightBrace, "Expect '}' after switch body.")

	if pendingFalseJump != -1 {
		c.patchJump(pendingFalseJump)
		c.emitOp(vm.OpPop)
	}
	for _, j := range c.popBreakable() {
		c.patchJump(j)
	}

	c.endScope()
}

// --- expressions ---------------------------------------------------------

func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

func (c *Compiler) parsePrecedence(prec Precedence) {
	c.advance()
	prefix := getRule(c.previous.Type).prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := prec <= PrecAssignment
	prefix(c, canAssign)

	for prec <= getRule(c.current.Type).precedence {
		c.advance()
		infix := getRule(c.previous.Type).infix
		infix(c, canAssign)
	}

	if canAssign && c.check(TokenEqual) {
		c.errorAtCurrent("Invalid assignment target.")
	}
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after expression.")
}

func (c *Compiler) unary(canAssign bool) {
	opType := c.previous.Type
	c.parsePrecedence(PrecUnary)
	switch opType {
	case TokenMinus:
		c.emitOp(vm.OpNegate)
	case TokenBang:
		c.emitOp(vm.OpNot)
	}
}

func (c *Compiler) binary(canAssign bool) {
	opType := c.previous.Type
	rule := getRule(opType)
	c.parsePrecedence(rule.precedence + 1)

	switch opType {
	case TokenPlus:
		c.emitOp(vm.OpAdd)
	case TokenMinus:
		c.emitOp(vm.OpSubtract)
	case TokenStar:
		c.emitOp(vm.OpMultiply)
	case TokenSlash:
		c.emitOp(vm.OpDivide)
	case TokenPercent:
		c.emitOp(vm.OpModulo)
	case TokenEqualEqual:
		c.emitOp(vm.OpEqual)
	case TokenBangEqual:
		c.emitOp(vm.OpEqual)
		c.emitOp(vm.OpNot)
	case TokenGreater:
		c.emitOp(vm.OpGreater)
	case TokenGreaterEqual: // a >= b  ==  !(a < b)
		c.emitOp(vm.OpLess)
		c.emitOp(vm.OpNot)
	case TokenLess:
		c.emitOp(vm.OpLess)
	case TokenLessEqual: // a <= b  ==  !(a > b)
		c.emitOp(vm.OpGreater)
		c.emitOp(vm.OpNot)
	}
}

func (c *Compiler) call(canAssign bool) {
	argCount := c.argumentList()
	c.emitOp(vm.OpCall)
	c.emitByte(byte(argCount))
}

func (c *Compiler) argumentList() int {
	count := 0
	if !c.check(TokenRightParen) {
		for {
			c.expression()
			if count == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRightParen, "Expect ')' after arguments.")
	return count
}

func (c *Compiler) number(canAssign bool) {
	value, _ := strconv.ParseFloat(c.previous.Lexeme, 64)
	c.emitConstant(vm.NumberValue(value))
}

func (c *Compiler) stringLiteral(canAssign bool) {
	lexeme := c.previous.Lexeme
	content := lexeme[1 : len(lexeme)-1]
	obj := c.vm.NewStringObj(content)
	c.emitConstant(vm.ObjValue(obj))
}

func (c *Compiler) literal(canAssign bool) {
	switch c.previous.Type {
	case TokenFalse:
		c.emitOp(vm.OpFalse)
	case TokenTrue:
		c.emitOp(vm.OpTrue)
	case TokenNil:
		c.emitOp(vm.OpNil)
	}
}

func (c *Compiler) and_(canAssign bool) {
	endJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitOp(vm.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or_(canAssign bool) {
	endJump := c.emitJump(vm.OpJumpIfTrue)
	c.emitOp(vm.OpPop)
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

// compoundOps maps each compound-assignment token to the arithmetic op
// x ⊕= e lowers to.
var compoundOps = map[TokenType]vm.Opcode{
	TokenPlusEqual:    vm.OpAdd,
	TokenMinusEqual:   vm.OpSubtract,
	TokenStarEqual:    vm.OpMultiply,
	TokenSlashEqual:   vm.OpDivide,
	TokenPercentEqual: vm.OpModulo,
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous, canAssign)
}

func (c *Compiler) namedVariable(name Token, canAssign bool) {
	slot := c.resolveLocal(name.Lexeme)
	isLocal := slot != -1
	if !isLocal {
		slot = c.vm.Globals.SlotFor(name.Lexeme)
	}

	if canAssign && c.match(TokenEqual) {
		c.expression()
		c.emitVariableStore(isLocal, slot)
		return
	}

	if canAssign {
		for tok, op := range compoundOps {
			if c.match(tok) {
				c.emitVariableLoad(isLocal, slot)
				c.expression()
				c.emitOp(op)
				c.emitVariableStore(isLocal, slot)
				return
			}
		}
	}

	c.emitVariableLoad(isLocal, slot)
}

func (c *Compiler) emitVariableLoad(isLocal bool, slot int) {
	switch {
	case isLocal && slot <= 255:
		c.emitOp(vm.OpGetLocal)
		c.emitByte(byte(slot))
	case isLocal:
		c.emitOp(vm.OpGetLocalShort)
		c.emitUint16(slot)
	case slot <= 255:
		c.emitOp(vm.OpGetGlobal)
		c.emitByte(byte(slot))
	default:
		c.emitOp(vm.OpGetGlobalLong)
		c.emitUint24(slot)
	}
}

func (c *Compiler) emitVariableStore(isLocal bool, slot int) {
	switch {
	case isLocal && slot <= 255:
		c.emitOp(vm.OpSetLocal)
		c.emitByte(byte(slot))
	case isLocal:
		c.emitOp(vm.OpSetLocalShort)
		c.emitUint16(slot)
	case slot <= 255:
		c.emitOp(vm.OpSetGlobal)
		c.emitByte(byte(slot))
	default:
		c.emitOp(vm.OpSetGlobalLong)
		c.emitUint24(slot)
	}
}
