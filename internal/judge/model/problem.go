package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Language identifies the interpreter a problem's submissions run on.
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguageLua        Language = "lua"
)

// ParseLanguage accepts the canonical names plus common short forms; empty means JavaScript.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "javascript", "js":
		return LanguageJavaScript, nil
	case "lua":
		return LanguageLua, nil
	default:
		return "", fmt.Errorf("unsupported language %q", s)
	}
}

// EntryKind selects how test inputs drive the user's code.
type EntryKind string

const (
	// EntryFunction calls a named function with the test input spread as arguments.
	EntryFunction EntryKind = "function"
	// EntryConstructor interprets the test input as a method-call script against a class.
	EntryConstructor EntryKind = "constructor"
)

// ParseEntryKind maps empty to EntryFunction.
func ParseEntryKind(s string) (EntryKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "function":
		return EntryFunction, nil
	case "constructor", "class":
		return EntryConstructor, nil
	default:
		return "", fmt.Errorf("unsupported entry kind %q", s)
	}
}

// Parameter is one declared argument of a function-kind entry.
type Parameter struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TestCase is one hidden fixture. Values are JSON literals.
type TestCase struct {
	Input    []any `json:"input" yaml:"input"`
	Expected any   `json:"expected" yaml:"expected"`
}

// Normalize rewrites Input and Expected into the JSON value space
// (nil, float64, string, bool, []any, map[string]any).
func (tc *TestCase) Normalize() error {
	in, err := NormalizeValue(tc.Input)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}
	out, err := NormalizeValue(tc.Expected)
	if err != nil {
		return fmt.Errorf("expected: %w", err)
	}
	if in == nil {
		tc.Input = []any{}
	} else if arr, ok := in.([]any); ok {
		tc.Input = arr
	} else {
		return fmt.Errorf("input must be an array")
	}
	tc.Expected = out
	return nil
}

// NormalizeValue round-trips v through encoding/json.
func NormalizeValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TypeDefinition is the source of one auxiliary type made available to user code.
type TypeDefinition struct {
	Name   string
	Source string
}

// TypeDefinitions is an ordered type-name to source mapping.
// Object key order in JSON and YAML documents is preserved.
type TypeDefinitions []TypeDefinition

func (d *TypeDefinitions) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*d = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("customTypeDefinitions must be an object")
	}
	var out TypeDefinitions
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)
		var source string
		if err := dec.Decode(&source); err != nil {
			return fmt.Errorf("customTypeDefinitions[%s]: %w", name, err)
		}
		out = append(out, TypeDefinition{Name: name, Source: source})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}

func (d TypeDefinitions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(t.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(t.Source)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *TypeDefinitions) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("customTypeDefinitions must be a mapping (line %d)", node.Line)
	}
	out := make(TypeDefinitions, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var source string
		if err := node.Content[i+1].Decode(&source); err != nil {
			return fmt.Errorf("customTypeDefinitions[%s]: %w", node.Content[i].Value, err)
		}
		out = append(out, TypeDefinition{Name: node.Content[i].Value, Source: source})
	}
	*d = out
	return nil
}

func (d TypeDefinitions) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, t := range d {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: t.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: t.Source},
		)
	}
	return node, nil
}

// ProblemDefinition describes how to call user code and which fixtures to run.
type ProblemDefinition struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Difficulty  string `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`

	Language  Language  `json:"language" yaml:"language"`
	EntryKind EntryKind `json:"entryKind" yaml:"entryKind"`
	// EntryName is the function or class to locate. Empty for a function-kind
	// problem means the name is inferred from the submitted code.
	EntryName      string          `json:"functionName" yaml:"functionName"`
	Parameters     []Parameter     `json:"arguments" yaml:"arguments"`
	ReturnType     string          `json:"returnType,omitempty" yaml:"returnType,omitempty"`
	AuxiliaryTypes TypeDefinitions `json:"customTypeDefinitions,omitempty" yaml:"customTypeDefinitions,omitempty"`

	TestCases   []TestCase `json:"testCases,omitempty" yaml:"testCases,omitempty"`
	StarterCode string     `json:"starterCode,omitempty" yaml:"starterCode,omitempty"`
}

// problemAliases carries the alternate spellings accepted on input.
type problemAliases struct {
	EntryName  string      `json:"entryName" yaml:"entryName"`
	Parameters []Parameter `json:"parameters" yaml:"parameters"`
}

func (p *ProblemDefinition) UnmarshalJSON(data []byte) error {
	type plain ProblemDefinition
	var base plain
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}
	var alias problemAliases
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*p = ProblemDefinition(base)
	p.applyAliases(alias)
	return nil
}

func (p *ProblemDefinition) UnmarshalYAML(node *yaml.Node) error {
	type plain ProblemDefinition
	var base plain
	if err := node.Decode(&base); err != nil {
		return err
	}
	var alias problemAliases
	if err := node.Decode(&alias); err != nil {
		return err
	}
	*p = ProblemDefinition(base)
	p.applyAliases(alias)
	return nil
}

func (p *ProblemDefinition) applyAliases(alias problemAliases) {
	if p.EntryName == "" {
		p.EntryName = alias.EntryName
	}
	if len(p.Parameters) == 0 {
		p.Parameters = alias.Parameters
	}
}

// Normalize fills defaults and canonicalizes enum spellings and fixture values.
func (p *ProblemDefinition) Normalize() error {
	lang, err := ParseLanguage(string(p.Language))
	if err != nil {
		return err
	}
	p.Language = lang
	kind, err := ParseEntryKind(string(p.EntryKind))
	if err != nil {
		return err
	}
	p.EntryKind = kind
	p.EntryName = strings.TrimSpace(p.EntryName)
	for i := range p.TestCases {
		if err := p.TestCases[i].Normalize(); err != nil {
			return fmt.Errorf("testCases[%d]: %w", i, err)
		}
	}
	return nil
}

// Summary is the catalog listing view of a problem.
type Summary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Difficulty string    `json:"difficulty,omitempty"`
	Language   Language  `json:"language"`
	EntryKind  EntryKind `json:"entryKind"`
	TestCount  int       `json:"testCount"`
}

// Summarize builds the listing view.
func (p ProblemDefinition) Summarize() Summary {
	return Summary{
		ID:         p.ID,
		Title:      p.Title,
		Difficulty: p.Difficulty,
		Language:   p.Language,
		EntryKind:  p.EntryKind,
		TestCount:  len(p.TestCases),
	}
}
