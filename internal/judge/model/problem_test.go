package model

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

const listNodeJSON = `{
  "id": "merge-lists",
  "title": "Merge Two Sorted Lists",
  "functionName": "mergeTwoLists",
  "arguments": [{"name": "l1", "type": "ListNode"}, {"name": "l2", "type": "ListNode"}],
  "returnType": "ListNode",
  "customTypeDefinitions": {
    "ListNode": "function ListNode(val) { this.val = val; }",
    "Alpha": "function Alpha() {}"
  },
  "testCases": [{"input": [[1, 2], [3]], "expected": [1, 2, 3]}]
}`

func TestProblemDefinitionJSONPreservesTypeOrder(t *testing.T) {
	var def ProblemDefinition
	if err := json.Unmarshal([]byte(listNodeJSON), &def); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(def.AuxiliaryTypes) != 2 {
		t.Fatalf("expected 2 types, got %d", len(def.AuxiliaryTypes))
	}
	if def.AuxiliaryTypes[0].Name != "ListNode" || def.AuxiliaryTypes[1].Name != "Alpha" {
		t.Fatalf("type order not preserved: %+v", def.AuxiliaryTypes)
	}
	if def.EntryName != "mergeTwoLists" || len(def.Parameters) != 2 {
		t.Fatalf("unexpected entry: %+v", def)
	}

	out, err := json.Marshal(def.AuxiliaryTypes)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Index(string(out), "ListNode") > strings.Index(string(out), "Alpha") {
		t.Fatalf("marshal reordered types: %s", out)
	}
}

func TestProblemDefinitionAliases(t *testing.T) {
	raw := `{"id":"c","entryKind":"constructor","entryName":"Counter","parameters":[{"name":"x","type":"number"}]}`
	var def ProblemDefinition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if def.EntryName != "Counter" {
		t.Fatalf("entryName alias ignored: %q", def.EntryName)
	}
	if len(def.Parameters) != 1 || def.Parameters[0].Type != "number" {
		t.Fatalf("parameters alias ignored: %+v", def.Parameters)
	}
}

func TestProblemDefinitionYAMLNormalizesNumbers(t *testing.T) {
	raw := `
id: add
language: JS
functionName: add
arguments:
  - {name: a, type: number}
  - {name: b, type: number}
customTypeDefinitions:
  Zeta: "function Zeta() {}"
  Beta: "function Beta() {}"
testCases:
  - input: [2, 3]
    expected: 5
  - input: [{k: 1}]
    expected: {ok: true}
`
	var def ProblemDefinition
	if err := yaml.Unmarshal([]byte(raw), &def); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := def.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if def.Language != LanguageJavaScript || def.EntryKind != EntryFunction {
		t.Fatalf("defaults not applied: %q %q", def.Language, def.EntryKind)
	}
	if def.AuxiliaryTypes[0].Name != "Zeta" {
		t.Fatalf("yaml type order not preserved: %+v", def.AuxiliaryTypes)
	}
	if !reflect.DeepEqual(def.TestCases[0].Input, []any{2.0, 3.0}) {
		t.Fatalf("input not normalized: %#v", def.TestCases[0].Input)
	}
	if def.TestCases[0].Expected != 5.0 {
		t.Fatalf("expected not normalized: %#v", def.TestCases[0].Expected)
	}
	if !reflect.DeepEqual(def.TestCases[1].Expected, map[string]any{"ok": true}) {
		t.Fatalf("map not normalized: %#v", def.TestCases[1].Expected)
	}
}

func TestNormalizeRejectsUnknownEnums(t *testing.T) {
	tests := []ProblemDefinition{
		{ID: "a", Language: "cobol"},
		{ID: "b", EntryKind: "module"},
	}
	for _, def := range tests {
		if err := def.Normalize(); err == nil {
			t.Fatalf("expected error for %+v", def)
		}
	}
}

func TestRunFailure(t *testing.T) {
	r := RunFailure("boom")
	if r.Pass || r.Actual != "Error during test execution: boom" {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.Expected != NotApplicable || r.Input != NotApplicable || len(r.Logs) != 0 || r.Logs == nil {
		t.Fatalf("unexpected placeholders: %+v", r)
	}
	if RunFailure("").Actual != RunFailurePrefix {
		t.Fatalf("empty message should yield the bare prefix")
	}
}
