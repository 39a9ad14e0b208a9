package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"

	"github.com/agentgate/agentgate/internal/action"
)

// interpreters maps each dangerous shell subtype to the real interpreter it
// spawns. PowerShell uses the cross-platform pwsh binary.
var interpreters = map[action.DangerousShellType][]string{
	action.DangerousShellBash:       {"bash", "-c"},
	action.DangerousShellSh:         {"sh", "-c"},
	action.DangerousShellZsh:        {"zsh", "-c"},
	action.DangerousShellPowerShell: {"pwsh", "-Command"},
}

// langVariants maps the sh-family subtypes to the parser dialect used when
// normalizing the command for the job log. PowerShell is not an sh dialect
// and is logged as-is.
var langVariants = map[action.DangerousShellType]syntax.LangVariant{
	action.DangerousShellBash: syntax.LangBash,
	action.DangerousShellSh:   syntax.LangPOSIX,
	action.DangerousShellZsh:  syntax.LangBash,
}

// normalizeCommand reprints the command in canonical form so the job log
// shows one rendering regardless of the caller's whitespace and quoting.
// On parse error the raw command is returned unchanged.
func normalizeCommand(subtype action.DangerousShellType, command string) string {
	variant, ok := langVariants[subtype]
	if !ok {
		return command
	}
	prog, err := syntax.NewParser(syntax.Variant(variant)).Parse(strings.NewReader(command), "")
	if err != nil {
		return command
	}
	var buf bytes.Buffer
	if err := syntax.NewPrinter().Print(&buf, prog); err != nil {
		return command
	}
	return strings.TrimRight(buf.String(), "\n")
}

// Process is the unrestricted backend: it hands the raw command text to a
// real interpreter. No path confinement, no verb checks; the only
// protection is the clearance gate the job already passed.
type Process struct {
	workDir     string
	stepTimeout time.Duration
}

// NewProcess runs commands in workDir, or the process working directory
// when empty.
func NewProcess(workDir string, stepTimeout time.Duration) *Process {
	return &Process{workDir: workDir, stepTimeout: stepTimeout}
}

func (p *Process) Execute(ctx context.Context, req *Request) (*Result, error) {
	if req.Shell == nil || req.Shell.Dangerous == nil {
		return nil, fmt.Errorf("process backend requires a dangerous shell payload")
	}
	argv, ok := interpreters[req.Shell.Dangerous.Subtype]
	if !ok {
		return nil, fmt.Errorf("unknown dangerous shell subtype %q", req.Shell.Dangerous.Subtype)
	}
	if p.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.stepTimeout)
		defer cancel()
	}

	req.log("spawning %s: %s", argv[0], normalizeCommand(req.Shell.Dangerous.Subtype, req.Shell.Dangerous.Command))
	cmd := exec.CommandContext(ctx, argv[0], append(argv[1:], req.Shell.Dangerous.Command)...)
	cmd.Dir = p.workDir
	cmd.Env = os.Environ()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%s: %w", argv[0], err)
	}
	return &Result{Output: stdout.String()}, nil
}
