package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"

	"github.com/agentgate/agentgate/internal/action"
	"github.com/agentgate/agentgate/internal/config"
)

// ErrScriptRejected marks a safe-shell payload using constructs outside the
// closed verb set (expansions, redirects, control flow). Like a sandbox
// violation it is fatal and never retried.
var ErrScriptRejected = errors.New("script rejected")

// Sandbox interprets safe-shell payloads against a closed verb set inside a
// per-system-user directory. It never invokes a real shell interpreter: the
// payload is parsed into an AST and each statement is validated and executed
// by this process. The whole script is validated before the first step runs,
// so a rejected script never partially executes.
type Sandbox struct {
	rootDir     string
	allowed     map[string]bool
	stepTimeout time.Duration
	parser      *syntax.Parser
}

func NewSandbox(env *config.SandboxEnv, stepTimeout time.Duration) *Sandbox {
	allowed := make(map[string]bool, len(env.AllowedBinaries))
	for _, b := range env.AllowedBinaries {
		allowed[strings.TrimSpace(b)] = true
	}
	return &Sandbox{
		rootDir:     env.RootDir,
		allowed:     allowed,
		stepTimeout: stepTimeout,
		parser:      syntax.NewParser(syntax.Variant(syntax.LangPOSIX)),
	}
}

func (s *Sandbox) Execute(ctx context.Context, req *Request) (*Result, error) {
	if req.Shell == nil || req.Shell.Safe == nil {
		return nil, fmt.Errorf("%w: sandbox backend requires a safe shell payload", ErrScriptRejected)
	}
	root, err := s.userRoot(req.SystemUser)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox root: %w", err)
	}

	file, err := s.parser.Parse(strings.NewReader(req.Shell.Safe.Script), req.JobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScriptRejected, err)
	}

	switch req.Shell.Safe.Subtype {
	case action.SafeShellScript:
		return s.runScript(ctx, req, root, file)
	case action.SafeShellPipeline:
		return s.runPipeline(ctx, req, root, file)
	default:
		return nil, fmt.Errorf("%w: unknown safe shell subtype %q", ErrScriptRejected, req.Shell.Safe.Subtype)
	}
}

// userRoot confines the per-user sandbox directory itself: a system user
// name that resolves outside the sandbox base is a violation before any
// payload is looked at.
func (s *Sandbox) userRoot(systemUser string) (string, error) {
	if systemUser == "" {
		return "", fmt.Errorf("%w: empty system user", ErrSandboxViolation)
	}
	base, err := filepath.Abs(s.rootDir)
	if err != nil {
		return "", err
	}
	root := filepath.Join(base, systemUser)
	if root == base || !strings.HasPrefix(root, base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: system user %q escapes sandbox base", ErrSandboxViolation, systemUser)
	}
	return root, nil
}

// resolvePath confines a payload path to the sandbox root. Absolute paths
// and any traversal that resolves outside the root are violations.
func resolvePath(root, raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty path", ErrScriptRejected)
	}
	if filepath.IsAbs(raw) {
		return "", fmt.Errorf("%w: absolute path %q", ErrSandboxViolation, raw)
	}
	resolved := filepath.Join(root, raw)
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %q escapes sandbox root", ErrSandboxViolation, raw)
	}
	return resolved, nil
}

// step is one validated statement, ready to execute.
type step struct {
	verb string
	args []string // literal args as written
	// resolved paths, positionally matching the verb's path arguments
	paths []string
}

func (s *Sandbox) runScript(ctx context.Context, req *Request, root string, file *syntax.File) (*Result, error) {
	steps := make([]step, 0, len(file.Stmts))
	for _, stmt := range file.Stmts {
		st, err := s.compileStmt(root, stmt)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *st)
	}

	var out strings.Builder
	for i, st := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req.log("step %d: %s", i+1, st.verb)
		if err := s.execStep(ctx, root, st, &out); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, st.verb, err)
		}
	}
	return &Result{Output: out.String()}, nil
}

func (s *Sandbox) compileStmt(root string, stmt *syntax.Stmt) (*step, error) {
	if stmt.Background || stmt.Coprocess || stmt.Negated || len(stmt.Redirs) > 0 {
		return nil, fmt.Errorf("%w: redirects and job control are not allowed", ErrScriptRejected)
	}
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok {
		return nil, fmt.Errorf("%w: only plain commands are allowed", ErrScriptRejected)
	}
	if len(call.Assigns) > 0 {
		return nil, fmt.Errorf("%w: assignments are not allowed", ErrScriptRejected)
	}
	words, err := literalWords(call.Args)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrScriptRejected)
	}
	return s.compileVerb(root, words[0], words[1:])
}

func (s *Sandbox) compileVerb(root, verb string, args []string) (*step, error) {
	st := &step{verb: verb, args: args}
	resolve := func(raws ...string) error {
		for _, raw := range raws {
			p, err := resolvePath(root, raw)
			if err != nil {
				return err
			}
			st.paths = append(st.paths, p)
		}
		return nil
	}

	switch verb {
	case "list", "read", "mkdir", "remove":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %s takes exactly one path", ErrScriptRejected, verb)
		}
		if err := resolve(args[0]); err != nil {
			return nil, err
		}
	case "write":
		if len(args) < 2 {
			return nil, fmt.Errorf("%w: write takes a path and content", ErrScriptRejected)
		}
		if err := resolve(args[0]); err != nil {
			return nil, err
		}
	case "copy", "move":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: %s takes a source and a destination", ErrScriptRejected, verb)
		}
		if err := resolve(args[0], args[1]); err != nil {
			return nil, err
		}
	case "run":
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: run takes a binary name", ErrScriptRejected)
		}
		if !s.allowed[args[0]] {
			return nil, fmt.Errorf("%w: binary %q is not on the allow list", ErrSandboxViolation, args[0])
		}
		sanitized, err := sanitizeBinaryArgs(root, args[1:])
		if err != nil {
			return nil, err
		}
		st.args = append([]string{args[0]}, sanitized...)
	default:
		return nil, fmt.Errorf("%w: unknown verb %q", ErrScriptRejected, verb)
	}
	return st, nil
}

func (s *Sandbox) execStep(ctx context.Context, root string, st step, out *strings.Builder) error {
	switch st.verb {
	case "list":
		entries, err := os.ReadDir(st.paths[0])
		if err != nil {
			return err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintln(out, n)
		}
	case "read":
		data, err := os.ReadFile(st.paths[0])
		if err != nil {
			return err
		}
		out.Write(data)
	case "write":
		return os.WriteFile(st.paths[0], []byte(strings.Join(st.args[1:], " ")), 0o644)
	case "mkdir":
		return os.MkdirAll(st.paths[0], 0o755)
	case "remove":
		return os.Remove(st.paths[0])
	case "copy":
		return copyFile(st.paths[0], st.paths[1])
	case "move":
		return os.Rename(st.paths[0], st.paths[1])
	case "run":
		return s.runBinary(ctx, root, st.args[0], st.args[1:], nil, out)
	}
	return nil
}

// sanitizeBinaryArgs confines the path-like arguments handed to an
// allow-listed binary. Flags and bare words pass through untouched; the
// binary runs with the sandbox root as its working directory, so a bare
// relative name cannot leave it. Anything carrying a path separator or a
// parent reference must resolve inside the root and is rewritten to the
// resolved form.
func sanitizeBinaryArgs(root string, args []string) ([]string, error) {
	out := make([]string, len(args))
	for i, arg := range args {
		if !pathLike(arg) {
			out[i] = arg
			continue
		}
		p, err := resolvePath(root, arg)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func pathLike(arg string) bool {
	if filepath.IsAbs(arg) || strings.ContainsRune(arg, filepath.Separator) {
		return true
	}
	return arg == ".."
}

func (s *Sandbox) runBinary(ctx context.Context, root, binary string, args []string, stdin io.Reader, out io.Writer) error {
	if s.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.stepTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = root
	cmd.Stdin = stdin
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%s: %w: %s", binary, err, strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("%s: %w", binary, err)
	}
	return nil
}

// runPipeline executes a single pipeline of allow-listed binaries. Stages
// run left to right, each fed the previous stage's output; there is no real
// shell in the loop.
func (s *Sandbox) runPipeline(ctx context.Context, req *Request, root string, file *syntax.File) (*Result, error) {
	if len(file.Stmts) != 1 {
		return nil, fmt.Errorf("%w: a pipeline payload holds exactly one pipeline", ErrScriptRejected)
	}
	calls, err := flattenPipeline(file.Stmts[0])
	if err != nil {
		return nil, err
	}

	type stage struct {
		binary string
		args   []string
	}
	stages := make([]stage, 0, len(calls))
	for _, call := range calls {
		words, err := literalWords(call.Args)
		if err != nil {
			return nil, err
		}
		if len(words) == 0 {
			return nil, fmt.Errorf("%w: empty pipeline stage", ErrScriptRejected)
		}
		if !s.allowed[words[0]] {
			return nil, fmt.Errorf("%w: binary %q is not on the allow list", ErrSandboxViolation, words[0])
		}
		sanitized, err := sanitizeBinaryArgs(root, words[1:])
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage{binary: words[0], args: sanitized})
	}

	var in bytes.Buffer
	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req.log("pipeline stage %d: %s", i+1, st.binary)
		var out bytes.Buffer
		if err := s.runBinary(ctx, root, st.binary, st.args, &in, &out); err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i+1, st.binary, err)
		}
		in = out
	}
	return &Result{Output: in.String()}, nil
}

func flattenPipeline(stmt *syntax.Stmt) ([]*syntax.CallExpr, error) {
	if stmt.Background || stmt.Coprocess || stmt.Negated || len(stmt.Redirs) > 0 {
		return nil, fmt.Errorf("%w: redirects and job control are not allowed", ErrScriptRejected)
	}
	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		if len(cmd.Assigns) > 0 {
			return nil, fmt.Errorf("%w: assignments are not allowed", ErrScriptRejected)
		}
		return []*syntax.CallExpr{cmd}, nil
	case *syntax.BinaryCmd:
		if cmd.Op != syntax.Pipe {
			return nil, fmt.Errorf("%w: only pipes are allowed in a pipeline", ErrScriptRejected)
		}
		left, err := flattenPipeline(cmd.X)
		if err != nil {
			return nil, err
		}
		right, err := flattenPipeline(cmd.Y)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	default:
		return nil, fmt.Errorf("%w: only plain commands are allowed in a pipeline", ErrScriptRejected)
	}
}

// literalWords extracts the literal text of each word. Every form of
// expansion (variables, command substitution, globs stay as-is but
// unquoted specials are fine) is rejected so the payload means exactly
// what it says.
func literalWords(words []*syntax.Word) ([]string, error) {
	out := make([]string, 0, len(words))
	for _, w := range words {
		var b strings.Builder
		for _, part := range w.Parts {
			switch p := part.(type) {
			case *syntax.Lit:
				b.WriteString(p.Value)
			case *syntax.SglQuoted:
				if p.Dollar {
					return nil, fmt.Errorf("%w: dollar quoting is not allowed", ErrScriptRejected)
				}
				b.WriteString(p.Value)
			case *syntax.DblQuoted:
				for _, inner := range p.Parts {
					lit, ok := inner.(*syntax.Lit)
					if !ok {
						return nil, fmt.Errorf("%w: expansions are not allowed", ErrScriptRejected)
					}
					b.WriteString(lit.Value)
				}
			default:
				return nil, fmt.Errorf("%w: expansions are not allowed", ErrScriptRejected)
			}
		}
		out = append(out, b.String())
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("copy source %s is not a regular file", filepath.Base(src))
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
