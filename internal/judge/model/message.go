package model

// RunRequest is the inbound message of the isolated worker.
type RunRequest struct {
	UID       string `json:"uid"`
	ProblemID string `json:"problemId,omitempty"`
	// Problem, when set, is used instead of looking ProblemID up in the catalog.
	Problem *ProblemDefinition `json:"problem,omitempty"`
	Code    string             `json:"code"`
	// TestCases overrides the problem's fixtures when non-empty.
	TestCases []TestCase `json:"testCases,omitempty"`
	// Owner is carried for logging only.
	Owner string `json:"owner,omitempty"`
}

// RunReply is the single outbound message answering a RunRequest.
type RunReply struct {
	UID     string      `json:"uid"`
	Results []RunResult `json:"results"`
}
