// Package synth turns a problem definition plus user source into one program
// that the engines compile once and invoke per test case with (console, input).
package synth

import (
	"regexp"

	"dsajudge/internal/judge/model"
	appErr "dsajudge/pkg/errors"
)

// Program is the synthesized source for one run.
type Program struct {
	Language  model.Language
	EntryKind model.EntryKind
	// EntryName is the resolved entry; empty when inference found nothing.
	EntryName string
	Source    string
	// UserLineOffset is the number of lines emitted before the user code,
	// used to map diagnostics back to the submission.
	UserLineOffset int
}

// Argument is the coercion plan of one declared parameter.
type Argument struct {
	Index    int
	Name     string
	Strategy Strategy
}

// dialect renders the glue for one language.
type dialect interface {
	identifierPattern() *regexp.Regexp
	reserved(name string) bool
	inferEntry(userCode string) string
	functionProgram(aux model.TypeDefinitions, userCode, entry string, args []Argument) (string, int)
	constructorProgram(aux model.TypeDefinitions, userCode, entry string) (string, int)
	starter(def model.ProblemDefinition, entry string) string
}

// Synthesizer builds programs. It is safe for concurrent use.
type Synthesizer struct {
	registry *TypeRegistry
	dialects map[model.Language]dialect
}

// New creates a Synthesizer. A nil registry means the default primitives.
func New(registry *TypeRegistry) *Synthesizer {
	if registry == nil {
		registry = NewTypeRegistry()
	}
	return &Synthesizer{
		registry: registry,
		dialects: map[model.Language]dialect{
			model.LanguageJavaScript: javascriptDialect{},
			model.LanguageLua:        luaDialect{},
		},
	}
}

// Synthesize builds the program for def and userCode.
// Errors are definition faults: the run cannot execute at all.
func (s *Synthesizer) Synthesize(def model.ProblemDefinition, userCode string) (*Program, error) {
	lang, err := model.ParseLanguage(string(def.Language))
	if err != nil {
		return nil, appErr.New(appErr.LanguageNotSupported).WithMessage(err.Error())
	}
	kind, err := model.ParseEntryKind(string(def.EntryKind))
	if err != nil {
		return nil, appErr.New(appErr.InvalidProblemDefinition).WithMessage(err.Error())
	}
	d := s.dialects[lang]

	for _, t := range def.AuxiliaryTypes {
		if !s.validIdentifier(d, t.Name) {
			return nil, appErr.ValidationError("customTypeDefinitions", "type name "+quote(t.Name)+" is not an identifier")
		}
	}

	prog := &Program{Language: lang, EntryKind: kind}
	switch kind {
	case model.EntryConstructor:
		if def.EntryName == "" {
			return nil, appErr.ValidationError("functionName", "constructor-kind problems need a class name")
		}
		if !s.validIdentifier(d, def.EntryName) {
			return nil, appErr.ValidationError("functionName", quote(def.EntryName)+" is not an identifier")
		}
		prog.EntryName = def.EntryName
		prog.Source, prog.UserLineOffset = d.constructorProgram(def.AuxiliaryTypes, userCode, def.EntryName)
	default:
		entry := def.EntryName
		if entry == "" {
			entry = d.inferEntry(userCode)
		} else if !s.validIdentifier(d, entry) {
			return nil, appErr.ValidationError("functionName", quote(entry)+" is not an identifier")
		}
		args, err := s.plan(d, def.Parameters)
		if err != nil {
			return nil, err
		}
		prog.EntryName = entry
		prog.Source, prog.UserLineOffset = d.functionProgram(def.AuxiliaryTypes, userCode, entry, args)
	}
	return prog, nil
}

func (s *Synthesizer) plan(d dialect, params []model.Parameter) ([]Argument, error) {
	args := make([]Argument, 0, len(params))
	for i, p := range params {
		strategy := s.registry.Resolve(p.Type)
		if strategy.Kind != Passthrough && !s.validIdentifier(d, strategy.TypeName) {
			return nil, appErr.ValidationError("arguments", "type "+quote(p.Type)+" of "+quote(p.Name)+" is neither primitive nor an identifier")
		}
		args = append(args, Argument{Index: i, Name: p.Name, Strategy: strategy})
	}
	return args, nil
}

// StarterCode renders the editor template for def.
func (s *Synthesizer) StarterCode(def model.ProblemDefinition) (string, error) {
	lang, err := model.ParseLanguage(string(def.Language))
	if err != nil {
		return "", appErr.New(appErr.LanguageNotSupported).WithMessage(err.Error())
	}
	if def.StarterCode != "" {
		return def.StarterCode, nil
	}
	kind, err := model.ParseEntryKind(string(def.EntryKind))
	if err != nil {
		return "", appErr.New(appErr.InvalidProblemDefinition).WithMessage(err.Error())
	}
	def.EntryKind = kind
	entry := def.EntryName
	if entry == "" {
		entry = "solution"
	}
	return s.dialects[lang].starter(def, entry), nil
}

func (s *Synthesizer) validIdentifier(d dialect, name string) bool {
	return d.identifierPattern().MatchString(name) && !d.reserved(name)
}

func quote(s string) string {
	return "'" + s + "'"
}
