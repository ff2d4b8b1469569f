package syntax

import (
	"fmt"

	"github.com/decisionlang/decision/internal/types"
)

// SyntaxError is returned by Parse on the first unexpected token.
type SyntaxError struct {
	Pos     Position
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Col, e.Message)
}

// Parser is a single-pass recursive-descent parser over a token stream.
type Parser struct {
	toks []Token
	pos  int
}

// Parse lexes and parses src into a Tree.
func Parse(src string) (*Tree, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	return p.parseTree()
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) kind() Kind  { return p.toks[p.pos].Kind }
func (p *Parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) skipSemis() {
	for p.kind() == Semi {
		p.advance()
	}
}

func (p *Parser) expect(k Kind, what string) (Token, error) {
	if p.kind() != k {
		return Token{}, &SyntaxError{Pos: p.cur().Pos, Message: fmt.Sprintf("expected %s, found %q", what, tokenText(p.cur()))}
	}
	return p.advance(), nil
}

func tokenText(t Token) string {
	if t.Kind == EOF {
		return "end of file"
	}
	if t.Text != "" {
		return t.Text
	}
	return fmt.Sprintf("token %d", t.Kind)
}

func (p *Parser) parseTree() (*Tree, error) {
	tree := &Tree{}
	p.skipSemis()
	for p.kind() != EOF {
		if err := p.parseDecl(tree); err != nil {
			return nil, err
		}
		if p.kind() != EOF {
			if _, err := p.expect(Semi, "';' or newline"); err != nil {
				return nil, err
			}
		}
		p.skipSemis()
	}
	return tree, nil
}

func (p *Parser) parseDecl(tree *Tree) error {
	switch p.kind() {
	case KwInclude:
		d, err := p.parseInclude()
		if err != nil {
			return err
		}
		tree.Includes = append(tree.Includes, d)
	case KwVariable:
		d, err := p.parseVariable()
		if err != nil {
			return err
		}
		tree.Variables = append(tree.Variables, d)
	case KwFunction, KwSubroutine:
		d, err := p.parseFunction()
		if err != nil {
			return err
		}
		tree.Functions = append(tree.Functions, d)
	case KwNode:
		d, err := p.parseNode()
		if err != nil {
			return err
		}
		tree.Nodes = append(tree.Nodes, d)
	case KwWire:
		d, err := p.parseWire()
		if err != nil {
			return err
		}
		tree.Wires = append(tree.Wires, d)
	case KwLiteral:
		d, err := p.parseLiteralDecl()
		if err != nil {
			return err
		}
		tree.Literals = append(tree.Literals, d)
	default:
		return &SyntaxError{Pos: p.cur().Pos, Message: fmt.Sprintf("unexpected token %q at top level", tokenText(p.cur()))}
	}
	return nil
}

func (p *Parser) parseInclude() (Include, error) {
	pos := p.cur().Pos
	p.advance() // Include
	str, err := p.expect(StringLiteral, "string literal path")
	if err != nil {
		return Include{}, err
	}
	return Include{Path: str.Text, Pos: pos}, nil
}

func (p *Parser) parseTypeKeyword() (types.T, error) {
	k := p.kind()
	off := declaredTypeOffset(k)
	if off < 0 {
		return types.None, &SyntaxError{Pos: p.cur().Pos, Message: fmt.Sprintf("expected a type keyword, found %q", tokenText(p.cur()))}
	}
	p.advance()
	return types.FromLex(off), nil
}

func (p *Parser) parseLiteralValue() (Literal, error) {
	tok := p.cur()
	switch tok.Kind {
	case IntegerLiteral:
		p.advance()
		return Literal{Type: types.Int, Int: tok.IntVal}, nil
	case FloatLiteral:
		p.advance()
		return Literal{Type: types.Float, Flt: tok.FloatVal}, nil
	case StringLiteral:
		p.advance()
		return Literal{Type: types.String, Str: tok.Text}, nil
	case BooleanLiteral:
		p.advance()
		return Literal{Type: types.Bool, Bool: tok.BoolVal}, nil
	default:
		return Literal{}, &SyntaxError{Pos: tok.Pos, Message: fmt.Sprintf("expected a literal value, found %q", tokenText(tok))}
	}
}

func (p *Parser) parseVariable() (VariableDecl, error) {
	pos := p.cur().Pos
	p.advance() // Variable
	name, err := p.expect(Ident, "variable name")
	if err != nil {
		return VariableDecl{}, err
	}
	typ, err := p.parseTypeKeyword()
	if err != nil {
		return VariableDecl{}, err
	}
	decl := VariableDecl{Name: name.Text, Type: typ, Pos: pos}
	if isLiteralStart(p.kind()) {
		lit, err := p.parseLiteralValue()
		if err != nil {
			return VariableDecl{}, err
		}
		decl.Default = &lit
	}
	return decl, nil
}

func isLiteralStart(k Kind) bool {
	return k == IntegerLiteral || k == FloatLiteral || k == StringLiteral || k == BooleanLiteral
}

func (p *Parser) parseParamList() ([]Param, error) {
	if _, err := p.expect(LParen, "'('"); err != nil {
		return nil, err
	}
	var params []Param
	if p.kind() != RParen {
		for {
			pos := p.cur().Pos
			typ, err := p.parseTypeKeyword()
			if err != nil {
				return nil, err
			}
			name, err := p.expect(Ident, "parameter name")
			if err != nil {
				return nil, err
			}
			params = append(params, Param{Name: name.Text, Type: typ, Pos: pos})
			if p.kind() != Comma {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RParen, "')'"); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseFunction() (FunctionDecl, error) {
	pos := p.cur().Pos
	isSub := p.kind() == KwSubroutine
	p.advance() // Function | Subroutine
	name, err := p.expect(Ident, "function name")
	if err != nil {
		return FunctionDecl{}, err
	}
	ins, err := p.parseParamList()
	if err != nil {
		return FunctionDecl{}, err
	}
	if _, err := p.expect(Arrow, "'->'"); err != nil {
		return FunctionDecl{}, err
	}
	outs, err := p.parseParamList()
	if err != nil {
		return FunctionDecl{}, err
	}
	return FunctionDecl{Name: name.Text, Subroutine: isSub, Inputs: ins, Outputs: outs, Pos: pos}, nil
}

func (p *Parser) parseNode() (NodeDecl, error) {
	pos := p.cur().Pos
	p.advance() // Node
	idx, err := p.expect(IntegerLiteral, "node index")
	if err != nil {
		return NodeDecl{}, err
	}
	// Start is a keyword, not an identifier, so it needs its own case.
	if p.kind() == KwStart {
		p.advance()
		return NodeDecl{Index: int(idx.IntVal), Name: "Start", Pos: pos}, nil
	}
	name, err := p.expect(Ident, "node name")
	if err != nil {
		return NodeDecl{}, err
	}
	// Synthesized names (Define X, Return X, Get X, Set X) are two words;
	// a node statement has nothing after its name, so it's unambiguous to
	// keep consuming identifiers until the statement terminator.
	text := name.Text
	for p.kind() == Ident {
		text += " " + p.advance().Text
	}
	return NodeDecl{Index: int(idx.IntVal), Name: text, Pos: pos}, nil
}

func (p *Parser) parseSocket() (Socket, error) {
	node, err := p.expect(IntegerLiteral, "node index")
	if err != nil {
		return Socket{}, err
	}
	if _, err := p.expect(Colon, "':'"); err != nil {
		return Socket{}, err
	}
	sock, err := p.expect(IntegerLiteral, "socket index")
	if err != nil {
		return Socket{}, err
	}
	return Socket{Node: int(node.IntVal), Index: int(sock.IntVal)}, nil
}

func (p *Parser) parseWire() (WireDecl, error) {
	pos := p.cur().Pos
	p.advance() // Wire
	from, err := p.parseSocket()
	if err != nil {
		return WireDecl{}, err
	}
	if _, err := p.expect(Arrow, "'->'"); err != nil {
		return WireDecl{}, err
	}
	to, err := p.parseSocket()
	if err != nil {
		return WireDecl{}, err
	}
	return WireDecl{From: from, To: to, Pos: pos}, nil
}

func (p *Parser) parseLiteralDecl() (LiteralDecl, error) {
	pos := p.cur().Pos
	p.advance() // Literal
	sock, err := p.parseSocket()
	if err != nil {
		return LiteralDecl{}, err
	}
	val, err := p.parseLiteralValue()
	if err != nil {
		return LiteralDecl{}, err
	}
	return LiteralDecl{Socket: sock, Value: val, Pos: pos}, nil
}
