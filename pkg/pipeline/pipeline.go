// Package pipeline wires the four compiler stages (lower, optimize,
// lower-to-udon, assemble) into a single driver instrumented with
// logging, tracing, and metrics, the way cmd/glyph's runCompile wires
// parse+compile for the teacher's bytecode target.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/udon-lang/udonc/pkg/ast"
	"github.com/udon-lang/udonc/pkg/compilemetrics"
	"github.com/udon-lang/udonc/pkg/compileerrors"
	"github.com/udon-lang/udonc/pkg/config"
	"github.com/udon-lang/udonc/pkg/extern"
	"github.com/udon-lang/udonc/pkg/logging"
	"github.com/udon-lang/udonc/pkg/lower"
	"github.com/udon-lang/udonc/pkg/optimizer"
	"github.com/udon-lang/udonc/pkg/tac"
	"github.com/udon-lang/udonc/pkg/telemetry"
	"github.com/udon-lang/udonc/pkg/udon"
	"github.com/udon-lang/udonc/pkg/vrcevent"
)

// Driver holds the collaborators needed to run the full pipeline:
// an extern catalog and VRChat event registry (§6.2/§6.3), plus the
// ambient instrumentation stack.
type Driver struct {
	Catalog extern.Catalog
	Events  vrcevent.Registry
	Config  config.Config

	Logger    *logging.Logger
	Telemetry *telemetry.Provider
	Metrics   *compilemetrics.Metrics
}

// Result is the outcome of a full compile. Udon is retained alongside
// the assembled text so callers (e.g. `udonc compile --dump-udon`) can
// render a disassembly listing via udon.FormatProgram without rerunning
// the pipeline.
type Result struct {
	Assembly string
	Udon     *udon.Program
	Warnings []string
}

// ParseProgram decodes a JSON-serialised ast.Program, the shape the
// external surface parser (§6.1) is expected to emit.
func ParseProgram(data []byte) (*ast.Program, error) {
	var prog ast.Program
	if err := json.Unmarshal(data, &prog); err != nil {
		return nil, fmt.Errorf("pipeline: decode ast.Program: %w", err)
	}
	return &prog, nil
}

// Compile runs lower -> optimize -> lower-to-udon -> assemble over prog,
// recording a span and a metrics observation per stage.
func (d *Driver) Compile(ctx context.Context, prog *ast.Program) (*Result, error) {
	var warnings []string
	onUnknownType := func(name string) {
		warnings = append(warnings, fmt.Sprintf("unknown surface type %q, falling back to Object", name))
		if d.Logger != nil {
			d.Logger.WithStage("lower").WarnWithFields("unknown surface type", map[string]interface{}{"type": name})
		}
	}

	var tacProg *tac.Program
	err := d.stage(ctx, "lower", func(ctx context.Context) error {
		l := lower.New(d.Catalog, d.Events, d.Config, onUnknownType)
		p, err := l.Lower(prog)
		if err != nil {
			return err
		}
		tacProg = p
		return nil
	})
	if err != nil {
		return nil, d.fail("lower", err)
	}

	err = d.stage(ctx, "optimize", func(ctx context.Context) error {
		pipe := optimizer.NewPipeline(d.Config.OptimizationLevel)
		tacProg = pipe.Optimize(tacProg)
		return nil
	})
	if err != nil {
		return nil, d.fail("optimize", err)
	}

	var udonProg *udon.Program
	err = d.stage(ctx, "lower_to_udon", func(ctx context.Context) error {
		low := udon.New(d.Config)
		p, err := low.Lower(tacProg)
		if err != nil {
			return err
		}
		udonProg = p
		return nil
	})
	if err != nil {
		return nil, d.fail("lower_to_udon", err)
	}

	var assembly string
	err = d.stage(ctx, "assemble", func(ctx context.Context) error {
		asm := udon.NewAssembler(d.Events)
		text, asmWarnings, err := asm.Assemble(udonProg)
		if err != nil {
			return err
		}
		assembly = text
		warnings = append(warnings, asmWarnings...)
		if d.Logger != nil {
			assembleLogger := d.Logger.WithStage("assemble")
			for _, w := range asmWarnings {
				assembleLogger.WarnWithFields("unresolved label", map[string]interface{}{"detail": w})
			}
		}
		return nil
	})
	if err != nil {
		return nil, d.fail("assemble", err)
	}

	if d.Metrics != nil {
		d.Metrics.RecordCompile("success")
	}
	return &Result{Assembly: assembly, Udon: udonProg, Warnings: warnings}, nil
}

// stage runs fn inside a telemetry span (if configured) and records its
// duration in compilemetrics (if configured).
func (d *Driver) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	run := fn
	if d.Metrics != nil {
		inner := run
		run = func(ctx context.Context) error {
			start := time.Now()
			err := inner(ctx)
			d.Metrics.ObserveStage(name, time.Since(start))
			return err
		}
	}
	if d.Telemetry != nil {
		return d.Telemetry.Stage(ctx, name, run)
	}
	return run(ctx)
}

func (d *Driver) fail(stage string, err error) error {
	if d.Metrics != nil {
		d.Metrics.RecordCompile("failure")
		d.Metrics.RecordError(errorKind(err))
	}
	if d.Logger != nil {
		d.Logger.WithStage(stage).ErrorWithFields("compile failed", map[string]interface{}{"error": err.Error()})
	}
	return err
}

func errorKind(err error) string {
	switch err.(type) {
	case *compileerrors.ExternMissingError:
		return "extern_missing"
	case *compileerrors.UnsupportedFeatureError:
		return "unsupported_feature"
	case *compileerrors.UndefinedSymbolError:
		return "undefined_symbol"
	case *compileerrors.ControlFlowOutsideLoopError:
		return "control_flow_outside_loop"
	case *compileerrors.MalformedASTError:
		return "malformed_ast"
	default:
		return "unknown"
	}
}
