package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"dsajudge/internal/cli/command"
	"dsajudge/internal/common/storage"
	"dsajudge/internal/judge/catalog"
	"dsajudge/internal/judge/sandbox"
	"dsajudge/internal/judge/sandbox/engine"
	"dsajudge/internal/judge/sandbox/synth"

	"github.com/chzyer/readline"
)

// errExit ends the session.
var errExit = errors.New("exit")

// Options configure a Session.
type Options struct {
	Catalog *catalog.Catalog
	Limits  engine.Limits
	Types   *synth.TypeRegistry
	// Store and Bucket back the push command; push is unavailable without a store.
	Store       storage.ObjectStorage
	Bucket      string
	HistoryFile string
	PrettyJSON  bool
	Out         io.Writer
}

// Session holds REPL state.
type Session struct {
	problems    *catalog.Catalog
	host        *sandbox.Host
	store       storage.ObjectStorage
	bucket      string
	commands    map[string]command.Command
	historyFile string
	prettyJSON  bool
	out         *bufio.Writer
}

func New(opts Options) (*Session, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	s := &Session{
		problems:    opts.Catalog,
		store:       opts.Store,
		bucket:      opts.Bucket,
		commands:    command.Registry(),
		historyFile: opts.HistoryFile,
		prettyJSON:  opts.PrettyJSON,
		out:         bufio.NewWriter(out),
	}
	s.host = sandbox.NewHost(sandbox.Config{
		Limits:   opts.Limits,
		Types:    opts.Types,
		Reporter: sandbox.CaseReporterFunc(s.reportCase),
	})
	return s, nil
}

// Run reads commands until exit or end of input.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "dsajudge> ",
		HistoryFile:     s.historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	s.printLine("%d problems loaded, type help for commands", s.problems.Len())
	_ = s.out.Flush()
	defer s.out.Flush()
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				s.printLine("bye")
				return nil
			}
			return err
		}
		if err := s.Exec(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				s.printLine("bye")
				return nil
			}
			s.printLine("error: %v", err)
			_ = s.out.Flush()
		}
	}
}

// Exec runs one command line.
func (s *Session) Exec(ctx context.Context, line string) error {
	defer s.out.Flush()
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	inv, err := command.Parse(line, s.commands)
	if err != nil {
		return err
	}
	switch inv.Command.Name {
	case "list":
		return s.handleList(ctx, inv)
	case "show":
		return s.handleShow(inv)
	case "starter":
		return s.handleStarter(inv)
	case "run":
		return s.handleRun(ctx, inv)
	case "push":
		return s.handlePush(ctx, inv)
	case "pack":
		return s.handlePack(inv)
	case "help":
		return s.handleHelp(inv)
	case "exit":
		return errExit
	}
	return fmt.Errorf("unknown command: %s", inv.Command.Name)
}

func (s *Session) handleList(_ context.Context, inv command.Invocation) error {
	summaries := s.problems.List()
	if query := inv.Args.Get("query"); query != "" {
		summaries = s.problems.Search(query)
	}
	if len(summaries) == 0 {
		s.printLine("no problems")
		return nil
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDIFFICULTY\tLANGUAGE\tTESTS")
	for _, p := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", p.ID, p.Title, p.Difficulty, p.Language, p.TestCount)
	}
	return tw.Flush()
}

func (s *Session) handleShow(inv command.Invocation) error {
	def, err := s.problems.Get(inv.Args.Get("id"))
	if err != nil {
		return err
	}
	s.printJSON(def)
	return nil
}

func (s *Session) handleStarter(inv command.Invocation) error {
	def, err := s.problems.Get(inv.Args.Get("id"))
	if err != nil {
		return err
	}
	code, err := s.host.Synthesizer().StarterCode(def)
	if err != nil {
		return err
	}
	s.printLine("%s", strings.TrimRight(code, "\n"))
	return nil
}

func (s *Session) handleRun(ctx context.Context, inv command.Invocation) error {
	def, err := s.problems.Get(inv.Args.Get("id"))
	if err != nil {
		return err
	}
	code, err := command.ReadFile(inv.Args.Get("file"))
	if err != nil {
		return err
	}
	cases := def.TestCases
	if inv.Params.Has("case") {
		n, _ := command.ParseInt(inv.Params.Get("case"))
		if n < 1 || n > len(cases) {
			return fmt.Errorf("case must be between 1 and %d", len(cases))
		}
		cases = cases[n-1 : n]
	}
	if inv.Params.Has("timeout") {
		d, _ := time.ParseDuration(inv.Params.Get("timeout"))
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	results := s.host.Run(ctx, def, code, cases)
	passed := 0
	for i, r := range results {
		if r.Pass {
			passed++
			continue
		}
		s.printLine("--- case %d", i+1)
		s.printLine("input:    %s", compact(r.Input))
		s.printLine("expected: %s", compact(r.Expected))
		s.printLine("actual:   %s", compact(r.Actual))
		for _, l := range r.Logs {
			s.printLine("  | %s", l)
		}
	}
	s.printLine("passed %d/%d", passed, len(results))
	return nil
}

func (s *Session) handlePush(ctx context.Context, inv command.Invocation) error {
	if s.store == nil {
		return fmt.Errorf("object storage is not configured")
	}
	file, key := inv.Args.Get("file"), inv.Args.Get("key")
	if key == "" {
		key = filepath.Base(file)
	}
	sum, err := catalog.Publish(ctx, s.store, s.bucket, key, file)
	if err != nil {
		return err
	}
	s.printLine("pushed %s/%s sha256=%s", s.bucket, key, sum)
	return nil
}

func (s *Session) handlePack(inv command.Invocation) error {
	in, out := inv.Args.Get("in"), inv.Args.Get("out")
	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read %s failed: %w", in, err)
	}
	defs, err := catalog.Decode(data, in)
	if err != nil {
		return err
	}
	if _, err := catalog.New(defs); err != nil {
		return err
	}
	packed, err := catalog.Compress(data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, packed, 0o644); err != nil {
		return fmt.Errorf("write %s failed: %w", out, err)
	}
	s.printLine("packed %d problems, %d -> %d bytes", len(defs), len(data), len(packed))
	return nil
}

func (s *Session) handleHelp(inv command.Invocation) error {
	if name := inv.Args.Get("command"); name != "" {
		cmd, ok := s.commands[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("unknown command: %s", name)
		}
		s.printLine("%s\n  %s", cmd.Usage(), cmd.Summary)
		return nil
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, cmd := range command.Sorted(s.commands) {
		fmt.Fprintf(tw, "%s\t%s\n", cmd.Usage(), cmd.Summary)
	}
	return tw.Flush()
}

// reportCase prints one progress line per finished test case.
func (s *Session) reportCase(_ context.Context, report sandbox.CaseReport) {
	status := "FAIL"
	if report.Result.Pass {
		status = "PASS"
	}
	if report.Result.Fault != "" {
		status = fmt.Sprintf("FAIL (%s)", report.Result.Fault)
	}
	s.printLine("case %d/%d %s %dms", report.Index+1, report.Total, status, report.Result.DurationMs)
}

func (s *Session) printJSON(v any) {
	var (
		data []byte
		err  error
	)
	if s.prettyJSON {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		s.printLine("encode failed: %v", err)
		return
	}
	s.printLine("%s", data)
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

func compact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
