package command

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FieldType describes input type.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldDuration
	FieldFile
)

// Field defines a positional argument or a key=value option.
type Field struct {
	Name     string
	Aliases  []string
	Type     FieldType
	Required bool
}

// Command defines a REPL command.
type Command struct {
	Name    string
	Aliases []string
	Summary string
	Args    []Field
	Options []Field
}

// Usage renders the command's synopsis.
func (c Command) Usage() string {
	var b strings.Builder
	b.WriteString(c.Name)
	for _, arg := range c.Args {
		if arg.Required {
			fmt.Fprintf(&b, " <%s>", arg.Name)
		} else {
			fmt.Fprintf(&b, " [%s]", arg.Name)
		}
	}
	for _, opt := range c.Options {
		fmt.Fprintf(&b, " [%s=...]", opt.Name)
	}
	return b.String()
}

// Invocation is a parsed command line.
type Invocation struct {
	Command Command
	// Args holds positional arguments by field name.
	Args   Params
	Params Params
}

// Params holds parsed input params.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

func ParseInt(value string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	return int(n), err
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file failed: %w", err)
	}
	return string(data), nil
}

func validateValue(field Field, value string) error {
	switch field.Type {
	case FieldInt:
		if _, err := ParseInt(value); err != nil {
			return fmt.Errorf("invalid %s: %q is not an integer", field.Name, value)
		}
	case FieldDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %q is not a duration", field.Name, value)
		}
	case FieldFile:
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", field.Name)
		}
	}
	return nil
}
