package toolcall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// ScriptConfig configures a ScriptExecutor, mirroring the teacher's
// CommandToolsConfig defaulting (tools/command.go): an allow-listed
// interpreter, a fixed working directory, and an execution timeout, since
// the tool-function script is just as untrusted as an arbitrary shell
// command.
type ScriptConfig struct {
	// Interpreter is the binary used to run Path, e.g. "python3" or "node".
	Interpreter string
	// Path is the user-provided script file implementing get/executeFunction.
	Path string
	// WorkingDirectory the script runs in.
	WorkingDirectory string
	// MaxExecutionTime bounds each describe/call invocation.
	MaxExecutionTime time.Duration
	// EnableSandboxing is carried over from the bot config. ScriptExecutor
	// does not read it: scripts run the same way whether it is set or not.
	EnableSandboxing bool
}

func (c *ScriptConfig) setDefaults() {
	if c.Interpreter == "" {
		c.Interpreter = "python3"
	}
	if c.WorkingDirectory == "" {
		c.WorkingDirectory = "./"
	}
	if c.MaxExecutionTime == 0 {
		c.MaxExecutionTime = 30 * time.Second
	}
}

// ScriptExecutor is the sandboxed evaluator of spec §4.4: it shells out to
// a single user-provided script, asking it for its own description once
// and invoking named functions inside it thereafter. Grounded on the
// teacher's CommandTool.Execute (timeout-guarded os/exec.CommandContext).
type ScriptExecutor struct {
	cfg ScriptConfig
	log *slog.Logger
}

// NewScriptExecutor applies ScriptConfig defaults the way
// NewCommandTool does and returns a ready executor.
func NewScriptExecutor(cfg ScriptConfig) *ScriptExecutor {
	cfg.setDefaults()
	return &ScriptExecutor{
		cfg: cfg,
		log: slog.Default().With("component", "toolcall.script", "path", cfg.Path),
	}
}

// scriptDescribeResponse is what the script prints to stdout for the
// "describe" subcommand: a JSON array of tool descriptions.
type scriptDescribeResponse struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Args        []ArgSpec `json:"args"`
	Required    []string  `json:"required"`
}

func (s *ScriptExecutor) Descriptors(ctx context.Context) ([]Descriptor, error) {
	out, err := s.run(ctx, []string{s.cfg.Path, "describe"}, nil)
	if err != nil {
		return nil, fmt.Errorf("toolcall: script describe: %w", err)
	}

	var raw []scriptDescribeResponse
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("toolcall: script describe: invalid JSON: %w", err)
	}

	descs := make([]Descriptor, 0, len(raw))
	for _, r := range raw {
		descs = append(descs, Descriptor{
			Name:        r.Name,
			Description: r.Description,
			Args:        r.Args,
			Required:    r.Required,
		})
	}
	return descs, nil
}

// scriptCallResponse mirrors the executeFunction(name, kwargs) ->
// {status, result, stdout, stderr} contract verbatim.
type scriptCallResponse struct {
	Status string           `json:"status"`
	Result []map[string]any `json:"result"`
	Stdout string           `json:"stdout"`
	Stderr string           `json:"stderr"`
}

func (s *ScriptExecutor) ExecuteFunction(ctx context.Context, name string, kwargs map[string]any) (ExecResult, error) {
	kwargsJSON, err := json.Marshal(kwargs)
	if err != nil {
		return ExecResult{}, fmt.Errorf("toolcall: encode kwargs: %w", err)
	}

	out, err := s.run(ctx, []string{s.cfg.Path, "call", name}, kwargsJSON)
	if err != nil {
		return ExecResult{}, fmt.Errorf("toolcall: script call %s: %w", name, err)
	}

	var resp scriptCallResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return ExecResult{}, fmt.Errorf("toolcall: script call %s: invalid JSON: %w", name, err)
	}

	return ExecResult{
		Status: resp.Status,
		Result: resp.Result,
		Stdout: resp.Stdout,
		Stderr: resp.Stderr,
	}, nil
}

// run invokes the configured interpreter against the script, feeding
// stdin and bounding execution time, the same way CommandTool.Execute
// wraps os/exec with a context timeout.
func (s *ScriptExecutor) run(ctx context.Context, args []string, stdin []byte) ([]byte, error) {
	if s.cfg.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MaxExecutionTime)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.cfg.Interpreter, args...)
	cmd.Dir = s.cfg.WorkingDirectory
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		s.log.Warn("script invocation failed", "args", args, "stderr", stderr.String(), "error", err)
		return nil, fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}
