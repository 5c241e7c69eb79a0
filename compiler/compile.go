package compiler

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/catena-lang/catena/vm"
)

// ---------------------------------------------------------------------------
// Single-pass code generator
// ---------------------------------------------------------------------------

// Sentinel errors for errors.Is on compilation failures.
var (
	ErrSyntax    = errors.New("syntax error")
	ErrUndefined = errors.New("undefined word")
)

// Compiler turns Catena source into bytecode in a machine's code segment.
// It is single-pass: each unit compiles straight at the machine's
// allocation pointer, and definition and quotation bodies are skipped over
// with a forward jump so the surrounding stream stays executable.
//
// A Compiler holds no state between Compile calls beyond what it stores in
// the machine (code bytes, dictionary entries, interned strings), so one
// Compiler per machine is enough for a whole session.
type Compiler struct {
	machine *vm.VM
}

// New creates a compiler targeting the given machine.
func New(machine *vm.VM) *Compiler {
	return &Compiler{machine: machine}
}

// group tracks an open list or tuple literal: the closing delimiter decides
// the pack operation, and the item count feeds it.
type group struct {
	close TokenType // TokenRParen or TokenRBracket
	items int
	depth int // enclosing group count at open, for seal decisions
}

// scope is one compilation unit with its own locals: a definition body, a
// quotation body, or the top-level stream.
type scope struct {
	locals map[string]int
	groups []group
}

func newScope() *scope {
	return &scope{locals: make(map[string]int)}
}

// unit is the in-flight state of one Compile call.
type unit struct {
	c       *Compiler
	scanner *Scanner
	tok     Token
	scopes  []*scope
}

// Compile compiles one source string and returns the entry address of its
// top-level code, which ends in a halt. Definitions made with `: name ... ;`
// outlive the call through the machine's dictionary; on error nothing is
// defined and the caller should rewind the allocation pointer with SetHere.
func (c *Compiler) Compile(src string) (int, error) {
	u := &unit{
		c:       c,
		scanner: NewScanner(src),
		scopes:  []*scope{newScope()},
	}
	u.next()

	entry := c.machine.Here()
	mark := c.machine.Dict().Mark()
	if err := u.compileStream(TokenEOF); err != nil {
		c.machine.Dict().Forget(mark)
		return 0, err
	}
	if err := c.machine.EmitByte(byte(vm.OpHalt)); err != nil {
		return 0, err
	}
	return entry, nil
}

func (u *unit) next() {
	u.tok = u.scanner.NextToken()
}

func (u *unit) scope() *scope {
	return u.scopes[len(u.scopes)-1]
}

func (u *unit) errf(pos Position, sentinel error, format string, args ...any) error {
	return fmt.Errorf("compiler: %v: %w: %s", pos, sentinel, fmt.Sprintf(format, args...))
}

// countItem bumps the innermost open group; net is the number of values the
// compiled form leaves on the stack (1 for most forms, -1 for a bind).
func (u *unit) countItem(net int) {
	sc := u.scope()
	if len(sc.groups) > 0 {
		sc.groups[len(sc.groups)-1].items += net
	}
}

// compileStream compiles tokens until the given terminator, which is left
// current. TokenEOF terminates the top level; TokenSemicolon a definition
// body; TokenRBrace a quotation body.
func (u *unit) compileStream(until TokenType) error {
	for {
		t := u.tok
		if t.Type == until {
			if len(u.scope().groups) > 0 {
				return u.errf(t.Pos, ErrSyntax, "unclosed %v", u.scope().groups[len(u.scope().groups)-1].close)
			}
			return nil
		}
		switch t.Type {
		case TokenEOF, TokenSemicolon, TokenRBrace:
			return u.errf(t.Pos, ErrSyntax, "unexpected %v", t.Type)
		case TokenError:
			return u.errf(t.Pos, ErrSyntax, "%s", t.Literal)
		case TokenNumber:
			if err := u.compileNumber(t); err != nil {
				return err
			}
		case TokenString:
			if err := u.compileString(t); err != nil {
				return err
			}
		case TokenBind:
			if err := u.compileBind(t); err != nil {
				return err
			}
		case TokenRef:
			if err := u.compileRef(t); err != nil {
				return err
			}
		case TokenWord:
			if err := u.compileWord(t); err != nil {
				return err
			}
		case TokenColon:
			if err := u.compileDefinition(t); err != nil {
				return err
			}
			continue // compileDefinition advances past its terminator
		case TokenLBrace:
			if err := u.compileQuotation(t); err != nil {
				return err
			}
			continue
		case TokenLParen:
			u.openGroup(TokenRParen)
		case TokenLBracket:
			u.openGroup(TokenRBracket)
		case TokenRParen, TokenRBracket:
			if err := u.closeGroup(t); err != nil {
				return err
			}
		default:
			return u.errf(t.Pos, ErrSyntax, "unexpected %v", t.Type)
		}
		u.next()
	}
}

// ---------------------------------------------------------------------------
// Literals, locals and references
// ---------------------------------------------------------------------------

func (u *unit) emitLit(v vm.Value) error {
	if err := u.c.machine.EmitByte(byte(vm.OpLit)); err != nil {
		return err
	}
	return u.c.machine.EmitCell(v)
}

func (u *unit) compileNumber(t Token) error {
	f, err := strconv.ParseFloat(t.Literal, 32)
	if err != nil {
		return u.errf(t.Pos, ErrSyntax, "bad number %q", t.Literal)
	}
	v := vm.FromFloat32(float32(f))
	// Small integral literals stay INTEGER cells so counts and indexes
	// survive exactly.
	if n := int32(f); float64(n) == f {
		if cell, ok := vm.FromInteger(n); ok {
			v = cell
		}
	}
	u.countItem(1)
	return u.emitLit(v)
}

func (u *unit) compileString(t Token) error {
	cell, err := u.c.machine.Strings().Value(t.Literal)
	if err != nil {
		return fmt.Errorf("compiler: %v: %w", t.Pos, err)
	}
	u.countItem(1)
	return u.emitLit(cell)
}

func (u *unit) compileBind(t Token) error {
	sc := u.scope()
	if _, exists := sc.locals[t.Literal]; exists {
		return u.errf(t.Pos, ErrSyntax, "local %q already bound", t.Literal)
	}
	slot := len(sc.locals)
	if slot > 0xFF {
		return u.errf(t.Pos, ErrSyntax, "too many locals")
	}
	sc.locals[t.Literal] = slot
	u.countItem(-1)
	return u.c.machine.EmitByte(byte(vm.OpLocalBind))
}

func (u *unit) compileRef(t Token) error {
	ref, ok := u.c.machine.Dict().Resolve(t.Literal)
	if !ok {
		return u.errf(t.Pos, ErrUndefined, "%q", t.Literal)
	}
	u.countItem(1)
	return u.emitLit(ref)
}

func (u *unit) compileWord(t Token) error {
	// Locals shadow dictionary words inside their scope.
	if slot, ok := u.scope().locals[t.Literal]; ok {
		u.countItem(1)
		if err := u.c.machine.EmitByte(byte(vm.OpLocalGet)); err != nil {
			return err
		}
		return u.c.machine.EmitByte(byte(slot))
	}
	ref, ok := u.c.machine.Dict().Resolve(t.Literal)
	if !ok {
		return u.errf(t.Pos, ErrUndefined, "%q", t.Literal)
	}
	tag, p, err := ref.Decode()
	if err != nil {
		return fmt.Errorf("compiler: %v: %w", t.Pos, err)
	}
	u.countItem(1)
	switch tag {
	case vm.TagBuiltin:
		if err := u.c.machine.EmitByte(byte(vm.OpBuiltin)); err != nil {
			return err
		}
		return u.c.machine.EmitU16(uint16(p))
	case vm.TagCode:
		if err := u.c.machine.EmitByte(byte(vm.OpCall)); err != nil {
			return err
		}
		return u.c.machine.EmitU16(uint16(p))
	default:
		return u.errf(t.Pos, ErrSyntax, "%q is not invokable", t.Literal)
	}
}

// ---------------------------------------------------------------------------
// Definitions and quotations
// ---------------------------------------------------------------------------

// skipBody emits a forward jump around an out-of-line body and returns the
// patch address. The caller patches it once the body is closed.
func (u *unit) skipBody() (patch int, err error) {
	if err := u.c.machine.EmitByte(byte(vm.OpJump)); err != nil {
		return 0, err
	}
	patch = u.c.machine.Here()
	return patch, u.c.machine.EmitU16(0)
}

func (u *unit) compileDefinition(t Token) error {
	if len(u.scopes) > 1 {
		return u.errf(t.Pos, ErrSyntax, "definitions do not nest")
	}
	u.next()
	name := u.tok
	if name.Type != TokenWord {
		return u.errf(name.Pos, ErrSyntax, "expected a name after :, got %v", name.Type)
	}

	patch, err := u.skipBody()
	if err != nil {
		return err
	}
	body := u.c.machine.Here()

	u.scopes = append(u.scopes, newScope())
	u.next()
	err = u.compileStream(TokenSemicolon)
	u.scopes = u.scopes[:len(u.scopes)-1]
	if err != nil {
		return err
	}
	u.next() // past the ;

	if err := u.c.machine.EmitByte(byte(vm.OpReturn)); err != nil {
		return err
	}
	if err := u.c.machine.PatchU16(patch, uint16(u.c.machine.Here())); err != nil {
		return err
	}
	if _, err := u.c.machine.Dict().DefineCode(name.Literal, body); err != nil {
		return fmt.Errorf("compiler: %v: %w", name.Pos, err)
	}
	return nil
}

// compileQuotation compiles `{ body }` to an out-of-line body ending in a
// return, then a freeze of that entry at the use site. At run time the
// freeze captures the active frame's locals into the capsule.
func (u *unit) compileQuotation(t Token) error {
	patch, err := u.skipBody()
	if err != nil {
		return err
	}
	body := u.c.machine.Here()

	u.scopes = append(u.scopes, newScope())
	u.next()
	err = u.compileStream(TokenRBrace)
	u.scopes = u.scopes[:len(u.scopes)-1]
	if err != nil {
		return err
	}
	u.next() // past the }

	if err := u.c.machine.EmitByte(byte(vm.OpReturn)); err != nil {
		return err
	}
	if err := u.c.machine.PatchU16(patch, uint16(u.c.machine.Here())); err != nil {
		return err
	}
	u.countItem(1)
	if err := u.c.machine.EmitByte(byte(vm.OpFreeze)); err != nil {
		return err
	}
	return u.c.machine.EmitU16(uint16(body))
}

// ---------------------------------------------------------------------------
// List and tuple literals
// ---------------------------------------------------------------------------

func (u *unit) openGroup(close TokenType) {
	sc := u.scope()
	sc.groups = append(sc.groups, group{close: close, depth: len(sc.groups)})
}

// closeGroup ends a list or tuple literal. The item count is syntactic: each
// literal, word or quotation inside the group contributes one element, a
// bind consumes one. Lists nested inside another literal are sealed so the
// outer aggregate keeps them as single elements.
func (u *unit) closeGroup(t Token) error {
	sc := u.scope()
	if len(sc.groups) == 0 {
		return u.errf(t.Pos, ErrSyntax, "unmatched %v", t.Type)
	}
	g := sc.groups[len(sc.groups)-1]
	if g.close != t.Type {
		return u.errf(t.Pos, ErrSyntax, "expected %v, got %v", g.close, t.Type)
	}
	sc.groups = sc.groups[:len(sc.groups)-1]
	if g.items < 0 {
		return u.errf(t.Pos, ErrSyntax, "literal consumes more than it holds")
	}

	count, ok := vm.FromInteger(int32(g.items))
	if !ok {
		return u.errf(t.Pos, ErrSyntax, "literal too large")
	}
	if err := u.emitLit(count); err != nil {
		return err
	}
	switch t.Type {
	case TokenRParen:
		if err := u.emitBuiltin("pack"); err != nil {
			return err
		}
		// Nested lists get sealed so they travel as one element.
		if g.depth > 0 {
			if err := u.emitBuiltin("seal"); err != nil {
				return err
			}
		}
	case TokenRBracket:
		if err := u.emitBuiltin("tuple"); err != nil {
			return err
		}
	}
	u.countItem(1)
	return nil
}

func (u *unit) emitBuiltin(name string) error {
	ref, ok := u.c.machine.Dict().Resolve(name)
	if !ok || !ref.IsBuiltin() {
		return fmt.Errorf("compiler: %w: core word %q", ErrUndefined, name)
	}
	if err := u.c.machine.EmitByte(byte(vm.OpBuiltin)); err != nil {
		return err
	}
	return u.c.machine.EmitU16(uint16(ref.Payload()))
}
