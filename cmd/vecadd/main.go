// vecadd builds the vector addition C = A + B, split by 64 and bound to the CUDA block and
// thread indices, for a "cuda" device with a "rawc" host.
//
// It prints the type of C, the built module, the modules it imports and the first of them, and
// writes the host source to mod.c.
package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tegen"
	"github.com/gomlx/tegen/internal/ctxlog"
	"github.com/gomlx/tegen/ir"
	"github.com/gomlx/tegen/runtime"
	"github.com/gomlx/tegen/target"
	"github.com/gomlx/tegen/te"
	"github.com/pkg/errors"
)

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "vecadd: %v\n", err)
		os.Exit(1)
	}
}

// run parses the arguments, builds the module and prints it to outW.
func run(outW io.Writer, args []string) error {
	opts, shouldExit, err := parseArgs(args, outW)
	if err != nil || shouldExit {
		return err
	}
	logger := newLogger(opts.logLevel, opts.logFormat, os.Stderr)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	cfg := DefaultConfig()
	if opts.configPath != "" {
		cfg, err = LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
		logger.Debug("Loaded config.", "path", opts.configPath)
	}

	va, err := declareVectorAdd()
	if err != nil {
		return err
	}
	fmt.Fprintf(outW, "%T\n", va.c)
	m, err := buildVectorAdd(ctx, cfg, va)
	if err != nil {
		return err
	}
	fmt.Fprintln(outW, m)

	if err := runtime.SaveToFile(m, cfg.Output); err != nil {
		return err
	}
	logger.Info("Host source written.", "path", cfg.Output)

	imported := m.ImportedModules()
	fmt.Fprintln(outW, imported)
	if len(imported) == 0 {
		return errors.Errorf("%s imports no device module", m)
	}
	fmt.Fprintln(outW, imported[0])

	if opts.verify > 0 {
		return verify(ctx, m, cfg.Name, opts.verify)
	}
	return nil
}

// vectorAdd holds the tensors of C = A + B.
type vectorAdd struct {
	a, b, c *te.Tensor
}

// declareVectorAdd declares C = A + B over a symbolic size n.
func declareVectorAdd() (*vectorAdd, error) {
	n := te.Var("n")
	a, err := te.Placeholder("A", dtypes.Float32, n)
	if err != nil {
		return nil, err
	}
	b, err := te.Placeholder("B", dtypes.Float32, n)
	if err != nil {
		return nil, err
	}
	c, err := te.Compute("C", a.Shape, func(i ...*ir.Var) ir.Expr {
		return ir.Add(a.At(i[0]), b.At(i[0]))
	})
	if err != nil {
		return nil, err
	}
	return &vectorAdd{a: a, b: b, c: c}, nil
}

// buildVectorAdd schedules C and builds the function as configured.
func buildVectorAdd(ctx context.Context, cfg *Config, va *vectorAdd) (runtime.Module, error) {
	logger := ctxlog.FromContext(ctx)
	deviceSpec, err := cfg.Target.DeviceSpec()
	if err != nil {
		return nil, err
	}
	tgt, err := target.New(deviceSpec, cfg.Target.Host)
	if err != nil {
		return nil, err
	}
	logger.Debug("Target created.", "target", tgt.String(), "host", tgt.HostString())

	s := te.CreateSchedule(va.c.Op)
	stage, err := s.Stage(va.c)
	if err != nil {
		return nil, err
	}
	outer, inner, err := stage.Split(stage.Op.Axis[0], cfg.Schedule.Factor)
	if err != nil {
		return nil, err
	}
	for _, binding := range []struct {
		iv  *ir.IterVar
		tag string
	}{{outer, cfg.Schedule.OuterAxis}, {inner, cfg.Schedule.InnerAxis}} {
		thread, err := te.ThreadAxis(binding.tag)
		if err != nil {
			return nil, err
		}
		if err := stage.Bind(binding.iv, thread); err != nil {
			return nil, err
		}
	}
	logger.Debug("Schedule created.", "stage", stage.String(), "factor", cfg.Schedule.Factor)

	m, err := tegen.Build(s, []*te.Tensor{va.a, va.b, va.c}, tgt, cfg.Name)
	if err != nil {
		return nil, errors.WithMessagef(err, "building %q for %s", cfg.Name, tgt)
	}
	return m, nil
}

// verify calls the function name of m on random vectors of size n and checks that C = A + B.
func verify(ctx context.Context, m runtime.Module, name string, n int) error {
	logger := ctxlog.FromContext(ctx)
	fn, err := m.Function(name)
	if err != nil {
		return err
	}
	aData, bData := make([]float32, n), make([]float32, n)
	for i := range n {
		aData[i] = rand.Float32()
		bData[i] = rand.Float32()
	}
	a, err := runtime.FromSlice(aData)
	if err != nil {
		return err
	}
	b, err := runtime.FromSlice(bData)
	if err != nil {
		return err
	}
	c, err := runtime.Empty(dtypes.Float32, n)
	if err != nil {
		return err
	}
	if err := fn(a, b, c); err != nil {
		return errors.WithMessagef(err, "calling %q", name)
	}
	cData, err := runtime.Data[float32](c)
	if err != nil {
		return err
	}
	for i, got := range cData {
		if want := aData[i] + bData[i]; got != want {
			return errors.Errorf("verify: C[%d] = %g, wanted %g + %g = %g", i, got, aData[i], bData[i], want)
		}
	}
	logger.Info("Verified.", "function", name, "n", n)
	return nil
}
