package synth

import (
	"fmt"
	"regexp"
	"strings"

	"dsajudge/internal/judge/model"
)

var jsIdentifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

var jsReserved = map[string]struct{}{
	"break": {}, "case": {}, "catch": {}, "class": {}, "const": {}, "continue": {},
	"debugger": {}, "default": {}, "delete": {}, "do": {}, "else": {}, "export": {},
	"extends": {}, "finally": {}, "for": {}, "function": {}, "if": {}, "import": {},
	"in": {}, "instanceof": {}, "new": {}, "return": {}, "super": {}, "switch": {},
	"this": {}, "throw": {}, "try": {}, "typeof": {}, "var": {}, "void": {},
	"while": {}, "with": {}, "yield": {}, "let": {}, "static": {}, "enum": {},
	"await": {}, "null": {}, "true": {}, "false": {},
}

// jsPrelude defines the helpers glue programs use to raise classified faults
// and to rebuild custom-typed arguments.
const jsPrelude = `function __sbxFault(kind, message) { var e = new Error(message); e.sandboxFault = kind; return e; }
function __sbxConstruct(T, raw) {
  try { return new T(raw); } catch (e) {
    throw __sbxFault('coercion', e !== null && typeof e === 'object' && e.message !== undefined ? String(e.message) : 'Error');
  }
}
`

type javascriptDialect struct{}

func (javascriptDialect) identifierPattern() *regexp.Regexp { return jsIdentifier }

func (javascriptDialect) reserved(name string) bool {
	_, ok := jsReserved[name]
	return ok
}

func (javascriptDialect) inferEntry(userCode string) string {
	return inferEntry(jsEntryPattern, userCode)
}

// header writes the wrapper opening, the prelude and the auxiliary types,
// then the user code, and returns the number of lines preceding the user code.
func (javascriptDialect) header(b *strings.Builder, aux model.TypeDefinitions, userCode string) int {
	b.WriteString("(function (console, input) {\n")
	b.WriteString(jsPrelude)
	for _, t := range aux {
		b.WriteString(t.Source)
		b.WriteString("\n;\n")
	}
	offset := strings.Count(b.String(), "\n")
	b.WriteString(userCode)
	b.WriteString("\n;\n")
	return offset
}

func (d javascriptDialect) functionProgram(aux model.TypeDefinitions, userCode, entry string, args []Argument) (string, int) {
	var b strings.Builder
	offset := d.header(&b, aux, userCode)

	if entry == "" {
		b.WriteString("throw __sbxFault('entry', 'Function not found');\n")
		b.WriteString("})")
		return b.String(), offset
	}

	fmt.Fprintf(&b, "if (typeof %s !== 'function') { throw __sbxFault('entry', \"Function '%s' not found\"); }\n", entry, entry)
	b.WriteString("var __sbxArgs = Array.prototype.slice.call(input);\n")
	for _, a := range args {
		switch a.Strategy.Kind {
		case Construct:
			fmt.Fprintf(&b, "if (__sbxArgs.length > %d && __sbxArgs[%d] !== null && __sbxArgs[%d] !== undefined) {\n", a.Index, a.Index, a.Index)
			writeJSTypeCheck(&b, a.Strategy.TypeName)
			fmt.Fprintf(&b, "  __sbxArgs[%d] = __sbxConstruct(%s, __sbxArgs[%d]);\n}\n", a.Index, a.Strategy.TypeName, a.Index)
		case ConstructEach:
			fmt.Fprintf(&b, "if (Array.isArray(__sbxArgs[%d])) {\n", a.Index)
			writeJSTypeCheck(&b, a.Strategy.TypeName)
			fmt.Fprintf(&b, "  __sbxArgs[%d] = __sbxArgs[%d].map(function (v) { return v === null ? null : __sbxConstruct(%s, v); });\n}\n", a.Index, a.Index, a.Strategy.TypeName)
		}
	}
	fmt.Fprintf(&b, "return %s.apply(null, __sbxArgs);\n", entry)
	b.WriteString("})")
	return b.String(), offset
}

func writeJSTypeCheck(b *strings.Builder, typeName string) {
	fmt.Fprintf(b, "  if (typeof %s !== 'function') { throw __sbxFault('coercion', \"Type '%s' is not defined\"); }\n", typeName, typeName)
}

func (d javascriptDialect) constructorProgram(aux model.TypeDefinitions, userCode, entry string) (string, int) {
	var b strings.Builder
	offset := d.header(&b, aux, userCode)

	fmt.Fprintf(&b, "if (typeof %s !== 'function') { throw __sbxFault('entry', \"Class '%s' not found\"); }\n", entry, entry)
	b.WriteString(`var __sbxNames = input[0], __sbxArgv = input[1];
if (!Array.isArray(__sbxNames) || !Array.isArray(__sbxArgv) || __sbxNames.length !== __sbxArgv.length) {
  throw __sbxFault('method', 'Invalid method script: expected [names, arguments] of equal length');
}
var __sbxObj = null, __sbxOut = [];
for (var __sbxI = 0; __sbxI < __sbxNames.length; __sbxI++) {
  var __sbxName = String(__sbxNames[__sbxI]);
  var __sbxCallArgs = __sbxArgv[__sbxI] === null || __sbxArgv[__sbxI] === undefined ? [] : __sbxArgv[__sbxI];
  if (!Array.isArray(__sbxCallArgs)) {
    throw __sbxFault('method', "Arguments of '" + __sbxName + "' must be an array");
  }
`)
	fmt.Fprintf(&b, `  if (__sbxName === '%s') {
    __sbxObj = Reflect.construct(%s, __sbxCallArgs);
    __sbxOut.push(null);
    continue;
  }
  if (__sbxObj === null) {
    throw __sbxFault('method', "Method '" + __sbxName + "' called before '%s' was constructed");
  }
`, entry, entry, entry)
	b.WriteString(`  var __sbxMember = __sbxObj[__sbxName];
  if (typeof __sbxMember === 'function') {
    var __sbxRet = __sbxMember.apply(__sbxObj, __sbxCallArgs);
    __sbxOut.push(__sbxRet === undefined ? null : __sbxRet);
  } else if (__sbxName in Object(__sbxObj)) {
    __sbxObj[__sbxName] = __sbxCallArgs[0];
    __sbxOut.push(null);
  } else {
    throw __sbxFault('method', "Method '" + __sbxName + "' not found");
  }
}
return __sbxOut;
})`)
	return b.String(), offset
}

func (javascriptDialect) starter(def model.ProblemDefinition, entry string) string {
	var b strings.Builder
	for _, t := range def.AuxiliaryTypes {
		b.WriteString("/**\n")
		fmt.Fprintf(&b, " * Definition for a %s .\n", t.Name)
		for _, line := range strings.Split(t.Source, "\n") {
			fmt.Fprintf(&b, " * %s\n", line)
		}
		b.WriteString(" */\n")
	}

	if def.EntryKind == model.EntryConstructor {
		fmt.Fprintf(&b, "class %s {\n    constructor() {\n        // Write your code here\n    }\n}\n", entry)
		return b.String()
	}

	b.WriteString("/**\n")
	names := make([]string, 0, len(def.Parameters))
	for _, p := range def.Parameters {
		fmt.Fprintf(&b, " * @param {%s} %s\n", p.Type, p.Name)
		names = append(names, p.Name)
	}
	fmt.Fprintf(&b, " * @return {%s}\n", orAny(def.ReturnType))
	b.WriteString(" */\n")
	fmt.Fprintf(&b, "var %s = function(%s) {\n    // Write your code here\n}\n", entry, strings.Join(names, ", "))
	return b.String()
}

func orAny(t string) string {
	if t == "" {
		return "any"
	}
	return t
}
