package schema

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies a schema statement.
type Kind int

const (
	KindOther Kind = iota
	KindTable
	KindIndex
	KindTrigger
	KindView
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindIndex:
		return "index"
	case KindTrigger:
		return "trigger"
	case KindView:
		return "view"
	default:
		return "statement"
	}
}

var createHeader = regexp.MustCompile(`(?is)^CREATE\s+(?:TEMP(?:ORARY)?\s+)?(?:UNIQUE\s+)?(?:VIRTUAL\s+)?(TABLE|INDEX|TRIGGER|VIEW)\s+(?:IF\s+NOT\s+EXISTS\s+)?("[^"]+"|\[[^\]]+\]|` + "`[^`]+`" + `|[\w.]+)`)

// Column is one element of a table definition: a column declaration, or a
// table constraint when Name is empty.
type Column struct {
	Name       string
	Definition string
}

// SQL renders the element as it appears inside the table parentheses.
func (c Column) SQL() string {
	if c.Name == "" {
		return c.Definition
	}
	return c.Name + " " + c.Definition
}

// Statement is one CREATE block of the canonical script. Tables are held as
// an ordered column list so that patches never edit SQL text.
type Statement struct {
	Kind    Kind
	Name    string
	Columns []Column

	text    string
	head    string
	tail    string
	patched bool
}

// Origin names the statement in error messages, e.g. "table books".
func (s *Statement) Origin() string {
	if s.Name == "" {
		return s.Kind.String()
	}
	return s.Kind.String() + " " + s.Name
}

// Column returns the named column of a table statement.
func (s *Statement) Column(name string) (Column, bool) {
	for _, col := range s.Columns {
		if col.Name != "" && strings.EqualFold(col.Name, name) {
			return col, true
		}
	}
	return Column{}, false
}

// InsertColumnAfter adds col immediately after the anchor column.
func (s *Statement) InsertColumnAfter(anchor string, col Column) error {
	if s.Kind != KindTable {
		return fmt.Errorf("%s is not a table", s.Origin())
	}
	if _, exists := s.Column(col.Name); exists {
		return fmt.Errorf("%s already has column %s", s.Origin(), col.Name)
	}
	for i, existing := range s.Columns {
		if existing.Name != "" && strings.EqualFold(existing.Name, anchor) {
			cols := make([]Column, 0, len(s.Columns)+1)
			cols = append(cols, s.Columns[:i+1]...)
			cols = append(cols, col)
			cols = append(cols, s.Columns[i+1:]...)
			s.Columns = cols
			s.patched = true
			return nil
		}
	}
	return fmt.Errorf("%s has no column %s", s.Origin(), anchor)
}

// SQL renders the statement. Untouched statements are returned verbatim.
func (s *Statement) SQL() string {
	if !s.patched {
		return s.text
	}
	parts := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		parts[i] = col.SQL()
	}
	return s.head + "(\n    " + strings.Join(parts, ",\n    ") + "\n)" + s.tail
}

// Skipped reports whether the provisioner leaves the statement out: views are
// not needed, and title_sort objects depend on a function only the Calibre
// application registers.
func (s *Statement) Skipped() bool {
	if s.Kind == KindView {
		return true
	}
	return strings.Contains(strings.ToLower(s.text), "title_sort")
}

// Script is the parsed canonical schema.
type Script struct {
	Statements []*Statement
}

// Parse splits the script into CREATE blocks and parses table columns.
func Parse(script []byte) (*Script, error) {
	s := &Script{}
	blocks := bytes.Split(script, []byte("CREATE "))
	// text before the first CREATE runs as is unless it only holds comments
	if preamble := strings.TrimSpace(string(blocks[0])); stripComments(preamble) != "" {
		s.Statements = append(s.Statements, &Statement{text: preamble})
	}
	for _, block := range blocks[1:] {
		body := strings.TrimSpace(string(block))
		if body == "" {
			continue
		}
		stmt, err := parseStatement("CREATE " + body)
		if err != nil {
			return nil, err
		}
		s.Statements = append(s.Statements, stmt)
	}
	if len(s.Statements) == 0 {
		return nil, fmt.Errorf("schema contains no CREATE statement")
	}
	return s, nil
}

// Table returns the table statement with the given name.
func (s *Script) Table(name string) (*Statement, bool) {
	for _, stmt := range s.Statements {
		if stmt.Kind == KindTable && strings.EqualFold(stmt.Name, name) {
			return stmt, true
		}
	}
	return nil, false
}

// Executable returns the statements the provisioner runs, in script order.
func (s *Script) Executable() []*Statement {
	var out []*Statement
	for _, stmt := range s.Statements {
		if !stmt.Skipped() {
			out = append(out, stmt)
		}
	}
	return out
}

func parseStatement(text string) (*Statement, error) {
	stmt := &Statement{text: text}

	m := createHeader.FindStringSubmatch(text)
	if m == nil {
		return stmt, nil
	}
	switch strings.ToUpper(m[1]) {
	case "TABLE":
		stmt.Kind = KindTable
	case "INDEX":
		stmt.Kind = KindIndex
	case "TRIGGER":
		stmt.Kind = KindTrigger
	case "VIEW":
		stmt.Kind = KindView
	}
	stmt.Name = unquoteIdent(m[2])

	if stmt.Kind != KindTable {
		return stmt, nil
	}

	open := strings.IndexByte(text[len(m[0]):], '(')
	if open < 0 {
		// CREATE TABLE ... AS SELECT has no column list to patch
		return stmt, nil
	}
	open += len(m[0])
	closing, err := matchingParen(text, open)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", stmt.Origin(), err)
	}

	stmt.head = strings.TrimRight(text[:open], " \t\r\n") + " "
	stmt.tail = text[closing+1:]
	for _, element := range splitTopLevel(text[open+1 : closing]) {
		stmt.Columns = append(stmt.Columns, parseColumn(element))
	}
	return stmt, nil
}

var constraintKeywords = []string{"CONSTRAINT", "PRIMARY", "UNIQUE", "CHECK", "FOREIGN"}

func parseColumn(element string) Column {
	fields := strings.Fields(element)
	first := strings.ToUpper(fields[0])
	for _, kw := range constraintKeywords {
		if first == kw || strings.HasPrefix(first, kw+"(") {
			return Column{Definition: element}
		}
	}
	name := fields[0]
	def := strings.TrimSpace(element[len(name):])
	return Column{Name: unquoteIdent(name), Definition: def}
}

// matchingParen returns the index of the parenthesis closing the one at open,
// ignoring parentheses inside quoted literals and identifiers.
func matchingParen(text string, open int) (int, error) {
	depth := 0
	var quote byte
	for i := open; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '[':
			quote = ']'
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced parentheses")
}

// splitTopLevel splits a table body on commas that are not nested in
// parentheses or quotes.
func splitTopLevel(body string) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(body); i++ {
		c := body[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '[':
			quote = ']'
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = appendElement(parts, body[start:i])
				start = i + 1
			}
		}
	}
	return appendElement(parts, body[start:])
}

func appendElement(parts []string, element string) []string {
	element = strings.TrimSpace(element)
	if element == "" {
		return parts
	}
	return append(parts, element)
}

func unquoteIdent(name string) string {
	if len(name) >= 2 {
		switch {
		case name[0] == '"' && name[len(name)-1] == '"',
			name[0] == '`' && name[len(name)-1] == '`',
			name[0] == '[' && name[len(name)-1] == ']':
			return name[1 : len(name)-1]
		}
	}
	return name
}

func stripComments(sql string) string {
	var out []string
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
