package synth

import (
	"fmt"
	"regexp"
	"strings"

	"dsajudge/internal/judge/model"
)

var luaIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var luaReserved = map[string]struct{}{
	"and": {}, "break": {}, "do": {}, "else": {}, "elseif": {}, "end": {},
	"false": {}, "for": {}, "function": {}, "goto": {}, "if": {}, "in": {},
	"local": {}, "nil": {}, "not": {}, "or": {}, "repeat": {}, "return": {},
	"then": {}, "true": {}, "until": {}, "while": {},
}

// luaPrelude defines fault raising and construction helpers.
// Faults are raised as tables so the engine can read the kind back.
// Tables whose metatable carries __jsonarray are arrays of length n, nils included.
const luaPrelude = `local __sbx_array_mt = {__jsonarray = true}
local function __sbx_fault(kind, message) error({sandboxFault = kind, message = message}, 0) end
local function __sbx_construct(name, T, raw)
  local ctor
  if type(T) == "table" and type(T.new) == "function" then
    ctor = T.new
  elseif type(T) == "function" then
    ctor = T
  else
    local mt = getmetatable(T)
    if mt ~= nil and type(mt) == "table" and mt.__call ~= nil then ctor = T end
  end
  if ctor == nil then __sbx_fault("coercion", "Type '" .. name .. "' is not defined") end
  local ok, v = pcall(ctor, raw)
  if ok then return v end
  if type(v) == "table" then
    if v.sandboxFault ~= nil then error(v, 0) end
    if v.message ~= nil then __sbx_fault("coercion", tostring(v.message)) end
  elseif type(v) == "string" then
    if string.find(v, "stack overflow", 1, true) then error(v, 0) end
    __sbx_fault("coercion", (string.gsub(v, "^.-:%d+: ", "", 1)))
  end
  __sbx_fault("coercion", "Error")
end
`

type luaDialect struct{}

func (luaDialect) identifierPattern() *regexp.Regexp { return luaIdentifier }

func (luaDialect) reserved(name string) bool {
	_, ok := luaReserved[name]
	return ok
}

func (luaDialect) inferEntry(userCode string) string {
	return inferEntry(luaEntryPattern, userCode)
}

func (luaDialect) header(b *strings.Builder, aux model.TypeDefinitions, userCode string) int {
	b.WriteString("return function(console, input)\n")
	b.WriteString(luaPrelude)
	for _, t := range aux {
		b.WriteString(t.Source)
		b.WriteString("\n")
	}
	offset := strings.Count(b.String(), "\n")
	b.WriteString(userCode)
	b.WriteString("\n")
	return offset
}

func (d luaDialect) functionProgram(aux model.TypeDefinitions, userCode, entry string, args []Argument) (string, int) {
	var b strings.Builder
	offset := d.header(&b, aux, userCode)

	if entry == "" {
		b.WriteString("__sbx_fault(\"entry\", \"Function not found\")\nend\n")
		return b.String(), offset
	}

	fmt.Fprintf(&b, "if type(%s) ~= \"function\" then __sbx_fault(\"entry\", \"Function '%s' not found\") end\n", entry, entry)
	b.WriteString("local __sbx_n = input.n or #input\n")
	b.WriteString("local __sbx_args = {}\n")
	b.WriteString("for i = 1, __sbx_n do __sbx_args[i] = input[i] end\n")
	for _, a := range args {
		pos := a.Index + 1
		switch a.Strategy.Kind {
		case Construct:
			fmt.Fprintf(&b, "if __sbx_args[%d] ~= nil then __sbx_args[%d] = __sbx_construct(\"%s\", %s, __sbx_args[%d]) end\n",
				pos, pos, a.Strategy.TypeName, a.Strategy.TypeName, pos)
		case ConstructEach:
			fmt.Fprintf(&b, "if type(__sbx_args[%d]) == \"table\" then\n", pos)
			fmt.Fprintf(&b, "  local src = __sbx_args[%d]\n", pos)
			b.WriteString("  local dst = setmetatable({n = src.n or #src}, __sbx_array_mt)\n")
			fmt.Fprintf(&b, "  for i = 1, dst.n do if src[i] ~= nil then dst[i] = __sbx_construct(\"%s\", %s, src[i]) end end\n",
				a.Strategy.TypeName, a.Strategy.TypeName)
			fmt.Fprintf(&b, "  __sbx_args[%d] = dst\nend\n", pos)
		}
	}
	fmt.Fprintf(&b, "return %s(unpack(__sbx_args, 1, __sbx_n))\nend\n", entry)
	return b.String(), offset
}

func (d luaDialect) constructorProgram(aux model.TypeDefinitions, userCode, entry string) (string, int) {
	var b strings.Builder
	offset := d.header(&b, aux, userCode)

	fmt.Fprintf(&b, `local __sbx_class = %s
if type(__sbx_class) ~= "table" and type(__sbx_class) ~= "function" then __sbx_fault("entry", "Class '%s' not found") end
local __sbx_names, __sbx_argv = input[1], input[2]
if type(__sbx_names) ~= "table" or type(__sbx_argv) ~= "table" then
  __sbx_fault("method", "Invalid method script: expected [names, arguments] of equal length")
end
local __sbx_count = __sbx_names.n or #__sbx_names
if __sbx_count ~= (__sbx_argv.n or #__sbx_argv) then
  __sbx_fault("method", "Invalid method script: expected [names, arguments] of equal length")
end
local __sbx_obj = nil
local __sbx_out = setmetatable({n = __sbx_count}, __sbx_array_mt)
for i = 1, __sbx_count do
  local name = tostring(__sbx_names[i])
  local args = __sbx_argv[i] or {}
  if type(args) ~= "table" then __sbx_fault("method", "Arguments of '" .. name .. "' must be an array") end
  local argc = args.n or #args
  if name == "%s" then
    if type(__sbx_class) == "table" and type(__sbx_class.new) == "function" then
      __sbx_obj = __sbx_class.new(unpack(args, 1, argc))
    else
      __sbx_obj = __sbx_class(unpack(args, 1, argc))
    end
  elseif __sbx_obj == nil then
    __sbx_fault("method", "Method '" .. name .. "' called before '%s' was constructed")
  else
    local member = __sbx_obj[name]
    if type(member) == "function" then
      __sbx_out[i] = member(__sbx_obj, unpack(args, 1, argc))
    elseif member ~= nil then
      __sbx_obj[name] = args[1]
    else
      __sbx_fault("method", "Method '" .. name .. "' not found")
    end
  end
end
return __sbx_out
end
`, entry, entry, entry, entry)
	return b.String(), offset
}

func (luaDialect) starter(def model.ProblemDefinition, entry string) string {
	var b strings.Builder
	for _, t := range def.AuxiliaryTypes {
		b.WriteString("--[[\n")
		fmt.Fprintf(&b, " Definition for a %s .\n", t.Name)
		for _, line := range strings.Split(t.Source, "\n") {
			fmt.Fprintf(&b, " %s\n", line)
		}
		b.WriteString("]]\n")
	}

	if def.EntryKind == model.EntryConstructor {
		fmt.Fprintf(&b, "%s = {}\n%s.__index = %s\n\nfunction %s.new()\n    local self = setmetatable({}, %s)\n    -- Write your code here\n    return self\nend\n",
			entry, entry, entry, entry, entry)
		return b.String()
	}

	names := make([]string, 0, len(def.Parameters))
	for _, p := range def.Parameters {
		fmt.Fprintf(&b, "---@param %s %s\n", p.Name, p.Type)
		names = append(names, p.Name)
	}
	fmt.Fprintf(&b, "---@return %s\n", orAny(def.ReturnType))
	fmt.Fprintf(&b, "function %s(%s)\n    -- Write your code here\nend\n", entry, strings.Join(names, ", "))
	return b.String()
}
