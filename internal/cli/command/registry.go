package command

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/shlex"
)

// Registry returns all REPL commands keyed by name and alias.
func Registry() map[string]Command {
	commands := []Command{
		{
			Name:    "list",
			Aliases: []string{"ls"},
			Summary: "list problems, optionally filtered by a search query",
			Args:    []Field{{Name: "query", Type: FieldString}},
		},
		{
			Name:    "show",
			Summary: "print a problem definition",
			Args:    []Field{{Name: "id", Type: FieldString, Required: true}},
		},
		{
			Name:    "starter",
			Summary: "print starter code for a problem",
			Args:    []Field{{Name: "id", Type: FieldString, Required: true}},
		},
		{
			Name:    "run",
			Summary: "run a solution file against a problem's test cases",
			Args: []Field{
				{Name: "id", Type: FieldString, Required: true},
				{Name: "file", Type: FieldFile, Required: true},
			},
			Options: []Field{
				{Name: "case", Aliases: []string{"c"}, Type: FieldInt},
				{Name: "timeout", Aliases: []string{"t"}, Type: FieldDuration},
			},
		},
		{
			Name:    "push",
			Summary: "validate a catalog file and upload it to object storage",
			Args: []Field{
				{Name: "file", Type: FieldFile, Required: true},
				{Name: "key", Type: FieldString},
			},
		},
		{
			Name:    "pack",
			Summary: "validate a catalog file and write it zstd-compressed",
			Args: []Field{
				{Name: "in", Type: FieldFile, Required: true},
				{Name: "out", Type: FieldFile, Required: true},
			},
		},
		{
			Name:    "help",
			Summary: "show commands",
			Args:    []Field{{Name: "command", Type: FieldString}},
		},
		{
			Name:    "exit",
			Aliases: []string{"quit"},
			Summary: "leave the shell",
		},
	}

	registry := make(map[string]Command, len(commands)*2)
	for _, cmd := range commands {
		registry[cmd.Name] = cmd
		for _, alias := range cmd.Aliases {
			registry[alias] = cmd
		}
	}
	return registry
}

// Sorted returns each command once, ordered by name.
func Sorted(commands map[string]Command) []Command {
	seen := make(map[string]struct{}, len(commands))
	out := make([]Command, 0, len(commands))
	for _, cmd := range commands {
		if _, ok := seen[cmd.Name]; ok {
			continue
		}
		seen[cmd.Name] = struct{}{}
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Parse tokenizes line shell-style and binds it to a command. Tokens of the
// form key=value naming one of the command's options become params; the rest
// are positional.
func Parse(line string, commands map[string]Command) (Invocation, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return Invocation{}, fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return Invocation{}, fmt.Errorf("empty command")
	}
	cmd, ok := commands[strings.ToLower(tokens[0])]
	if !ok {
		return Invocation{}, fmt.Errorf("unknown command: %s", tokens[0])
	}

	inv := Invocation{Command: cmd, Args: Params{}, Params: Params{}}
	var positional []string
	for _, token := range tokens[1:] {
		if key, value, found := strings.Cut(token, "="); found && isOption(cmd, key) {
			inv.Params.Set(key, value)
			continue
		}
		positional = append(positional, token)
	}
	inv.Params.Canonicalize(cmd.Options)

	if len(positional) > len(cmd.Args) {
		return Invocation{}, fmt.Errorf("too many arguments, usage: %s", cmd.Usage())
	}
	for i, field := range cmd.Args {
		if i >= len(positional) {
			if field.Required {
				return Invocation{}, fmt.Errorf("missing %s, usage: %s", field.Name, cmd.Usage())
			}
			continue
		}
		if err := validateValue(field, positional[i]); err != nil {
			return Invocation{}, err
		}
		inv.Args.Set(field.Name, positional[i])
	}
	for _, field := range cmd.Options {
		if !inv.Params.Has(field.Name) {
			continue
		}
		if err := validateValue(field, inv.Params.Get(field.Name)); err != nil {
			return Invocation{}, err
		}
	}
	return inv, nil
}

func isOption(cmd Command, key string) bool {
	for _, field := range cmd.Options {
		if strings.EqualFold(field.Name, key) {
			return true
		}
		for _, alias := range field.Aliases {
			if strings.EqualFold(alias, key) {
				return true
			}
		}
	}
	return false
}
