// Package opsc emits OPS C source from a set of finalized kernels: one
// kernel-definition header per execution block and one main program wiring
// constant declarations, field and stencil declarations, halo exchanges and
// the time-stepping control flow around the generated kernel calls.
//
// Code generation is all-or-nothing: both artifacts are accumulated in
// memory and written to disk only after the whole pass succeeds, so a fatal
// condition never leaves partially-written files behind.
package opsc

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/structmesh/opsgen/block"
	"github.com/structmesh/opsgen/config"
	"github.com/structmesh/opsgen/expr"
	"github.com/structmesh/opsgen/kernel"
)

// OPS access modes for kernel call arguments.
const (
	accessRead      = "OPS_READ"
	accessWrite     = "OPS_WRITE"
	accessReadWrite = "OPS_RW"
)

const endOfStatement = ";"

// ExchangeSelf is the only supported boundary kind: a periodic halo refresh
// where the block exchanges with itself.
const ExchangeSelf = "exchange_self"

var (
	// ErrNotImplemented marks deliberate scope fences: multi-block
	// topologies, non-exchange boundaries, stepped file output.
	ErrNotImplemented = errors.New("not implemented")
	// ErrInconsistent reports collaborator lists whose block counts differ.
	ErrInconsistent = errors.New("inconsistent block collaborators")
	// ErrConstantRank reports an indexed constant whose declared rank
	// disagrees with its value count in the parameter table.
	ErrConstantRank = errors.New("indexed constant value count mismatch")
	// ErrUnknownConstant reports a constant with no parameter table entry.
	ErrUnknownConstant = errors.New("constant missing from parameter table")
)

// SpatialDiscretisation supplies the per-step compute kernels of one block.
type SpatialDiscretisation struct {
	Computations []*kernel.Kernel
}

// TemporalDiscretisation supplies the time integrator's kernels and, for
// multi-stage schemes, the inner stage loop shape and coefficient tables.
type TemporalDiscretisation struct {
	NStages       int
	StageVariable string
	// Coefficients holds per-stage constant arrays (e.g. rkold, rknew)
	// folded into the parameter table when NStages > 1.
	Coefficients map[string][]float64

	Computations      []*kernel.Kernel
	StartComputations []*kernel.Kernel
	EndComputations   []*kernel.Kernel
}

// InitialConditions supplies the field-initialisation kernels of one block.
type InitialConditions struct {
	Computations []*kernel.Kernel
}

// Transfer describes one halo exchange: the transferred extents, the source
// and destination base offsets, and the fields moved.
type Transfer struct {
	Size   []int
	From   []int
	To     []int
	Arrays []string
}

// BoundaryConditions lists one block's boundary instances. Kinds and
// Transfers are parallel; only ExchangeSelf kinds are supported.
type BoundaryConditions struct {
	Kinds     []string
	Transfers []Transfer
}

// FileIO describes one block's output requests. Only a single end-of-run
// snapshot (SaveAfter == [true]) is supported. An empty SaveArrays defaults
// to every grid array the pass has tracked.
type FileIO struct {
	SaveAfter  []bool
	SaveArrays []string
}

// NamedFile is one buffered output artifact.
type NamedFile struct {
	Name string
	Data []byte
}

// Artifacts holds the fully generated program, ready to be written out.
type Artifacts struct {
	MainFile    NamedFile
	KernelFiles []NamedFile
}

// Write creates dir and writes every artifact into it.
func (a *Artifacts) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	files := append([]NamedFile{a.MainFile}, a.KernelFiles...)
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.Name), f.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	return nil
}

// constDecl tracks one declared constant's shape.
type constDecl struct {
	indexed bool
	rank    int
}

// Emitter drives one code-generation pass. All process-scoped state lives
// here and on the block registries and is discarded with the emitter; a
// fresh emitter per invocation keeps passes independent.
type Emitter struct {
	Logger *slog.Logger

	params   *config.Simulation
	blocks   []*block.Block
	spatial  []*SpatialDiscretisation
	temporal []*TemporalDiscretisation
	boundary []*BoundaryConditions
	initial  []*InitialConditions
	io       []*FileIO

	multiblock bool
	nblocks    int
	ndim       int
	blockName  string
	dtype      string

	kernelFileNames []string

	// Tracking sets fed back from kernel body emission, used for the
	// declaration sections. Both are insertion-ordered.
	gridArrays *expr.FieldSet
	constOrder []string
	constants  map[string]constDecl

	iterIndex          int
	kernelNameNumber   []int
	haloExchangeNumber int
}

// New checks collaborator consistency and prepares an emitter. Every
// collaborator list must carry one entry per block.
func New(blocks []*block.Block,
	spatial []*SpatialDiscretisation,
	temporal []*TemporalDiscretisation,
	boundary []*BoundaryConditions,
	initial []*InitialConditions,
	io []*FileIO,
	params *config.Simulation) (*Emitter, error) {

	n := len(blocks)
	if n == 0 {
		return nil, fmt.Errorf("no blocks: %w", ErrInconsistent)
	}
	for name, got := range map[string]int{
		"spatial discretisations":  len(spatial),
		"temporal discretisations": len(temporal),
		"boundary conditions":      len(boundary),
		"initial conditions":       len(initial),
		"IO descriptors":           len(io),
	} {
		if got != n {
			return nil, fmt.Errorf("%d %s for %d blocks: %w", got, name, n, ErrInconsistent)
		}
	}
	ndim := blocks[0].NDim
	for _, b := range blocks {
		if b.NDim != ndim {
			return nil, fmt.Errorf("mismatch in the grid shape of the blocks: %w", ErrInconsistent)
		}
	}

	e := &Emitter{
		params:           params,
		blocks:           blocks,
		spatial:          spatial,
		temporal:         temporal,
		boundary:         boundary,
		initial:          initial,
		io:               io,
		multiblock:       n > 1,
		nblocks:          n,
		ndim:             ndim,
		blockName:        params.Name + "_block",
		dtype:            params.Precision,
		gridArrays:       expr.NewFieldSet(),
		constants:        make(map[string]constDecl),
		kernelNameNumber: make([]int, n),
	}
	for b := 0; b < n; b++ {
		e.kernelFileNames = append(e.kernelFileNames,
			fmt.Sprintf("%s_block_%d_kernel.h", params.Name, b))
	}
	return e, nil
}

func (e *Emitter) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Generate runs the full pass and returns the buffered artifacts. Any fatal
// condition aborts before anything is written.
func (e *Emitter) Generate() (*Artifacts, error) {
	log := e.logger()

	// Multi-stage integrators contribute their coefficient tables to the
	// parameter table before constant initialisation is emitted.
	for _, td := range e.temporal {
		if td.NStages > 1 {
			names := make([]string, 0, len(td.Coefficients))
			for name := range td.Coefficients {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				e.params.SetArray(name, td.Coefficients[name])
			}
		}
	}

	// Finalize every kernel against the block registries in call-emission
	// order, so that stencil numbering follows the emitted program.
	for b := 0; b < e.nblocks; b++ {
		for _, phase := range e.callPhases(b) {
			for _, k := range phase {
				if err := k.UpdateBlockDatasets(e.blocks[b]); err != nil {
					return nil, err
				}
			}
		}
	}

	// Kernel bodies come first: body emission feeds the grid-array and
	// constant tracking sets consumed by the declaration sections.
	kernelFiles, err := e.computationalRoutines()
	if err != nil {
		return nil, err
	}

	t := newProgramTemplate()
	t.fill("main_start", []string{"// main program start", "int main (int argc, char **argv) ", "{"})
	t.fill("main_end", []string{"}"})
	t.fill("ops_init", []string{"// Initializing OPS ", "ops_init(argc,argv,1)" + endOfStatement})
	t.fill("ops_exit", []string{"// Exit OPS ", "ops_exit()" + endOfStatement})
	t.fill("ops_partition", []string{"// Init OPS partition", `ops_partition(" ")` + endOfStatement})

	timerStart, timerEnd, timings := e.opsTimers()
	t.fill("timer_start", timerStart)
	t.fill("timer_end", timerEnd)
	t.fill("print_timings", timings)

	t.fill("timeloop", []string{e.loopOpen("iteration", 0, e.params.Iterations)})
	t.fill("end_time_loop", []string{"}"})

	if td := e.temporal[0]; td.NStages > 1 {
		t.fill("innerloop", []string{e.loopOpen(td.StageVariable, 0, td.NStages)})
		t.fill("end_inner_loop", []string{"}"})
	} else {
		t.fill("innerloop", nil)
		t.fill("end_inner_loop", nil)
	}

	defineBlock, err := e.defineBlock()
	if err != nil {
		return nil, err
	}
	t.fill("define_block", defineBlock)
	initialiseBlock, err := e.initialiseBlock()
	if err != nil {
		return nil, err
	}
	t.fill("initialise_block", initialiseBlock)

	// Kernel calls, one hole per phase. Iteration-range numbering follows
	// append order across phases.
	timeCalls, err := e.phaseCalls(func(b int) []*kernel.Kernel {
		return append(append([]*kernel.Kernel{}, e.spatial[b].Computations...),
			e.temporal[b].Computations...)
	})
	if err != nil {
		return nil, err
	}
	t.fill("time_calls", timeCalls)
	startCalls, err := e.phaseCalls(func(b int) []*kernel.Kernel { return e.temporal[b].StartComputations })
	if err != nil {
		return nil, err
	}
	t.fill("time_start_calls", startCalls)
	endCalls, err := e.phaseCalls(func(b int) []*kernel.Kernel { return e.temporal[b].EndComputations })
	if err != nil {
		return nil, err
	}
	t.fill("time_end_calls", endCalls)
	initCalls, err := e.phaseCalls(func(b int) []*kernel.Kernel { return e.initial[b].Computations })
	if err != nil {
		return nil, err
	}
	t.fill("initialisation", initCalls)

	bcExchange, bcCalls, err := e.boundaryConditions()
	if err != nil {
		return nil, err
	}
	t.fill("bc_exchange", bcExchange)
	t.fill("bc_calls", bcCalls)

	ioCalls, ioTime, err := e.fileIO()
	if err != nil {
		return nil, err
	}
	t.fill("io_calls", ioCalls)
	t.fill("io_time", ioTime)

	defineDat, err := e.defineDat()
	if err != nil {
		return nil, err
	}
	t.fill("define_dat", defineDat)
	initialiseDat, err := e.initialiseDat()
	if err != nil {
		return nil, err
	}
	t.fill("initialise_dat", initialiseDat)

	t.fill("declare_stencils", e.declareStencils())
	t.fill("header", e.header())

	initConstants, err := e.initialiseConstants()
	if err != nil {
		return nil, err
	}
	t.fill("initialise_constants", initConstants)
	t.fill("declare_ops_constants", e.declareOpsConstants())

	main, err := t.render()
	if err != nil {
		return nil, err
	}

	log.Debug("code generation pass complete",
		"kernels", sum(e.kernelNameNumber),
		"stencils", e.blocks[0].Stencils.Len(),
		"grid arrays", e.gridArrays.Len(),
		"constants", len(e.constOrder))

	return &Artifacts{
		MainFile:    NamedFile{Name: e.params.Name + ".cpp", Data: []byte(main)},
		KernelFiles: kernelFiles,
	}, nil
}

// Run generates the program and writes it under the configured output
// directory, in a <name>_opsc_code subdirectory.
func (e *Emitter) Run() error {
	artifacts, err := e.Generate()
	if err != nil {
		return err
	}
	dir := filepath.Join(e.params.OutputDir, e.params.Name+"_opsc_code")
	if err := artifacts.Write(dir); err != nil {
		return err
	}
	e.logger().Info("generated OPS C program",
		"dir", dir, "main", artifacts.MainFile.Name, "kernel files", len(artifacts.KernelFiles))
	return nil
}

// callPhases returns one block's kernels grouped by phase, in the fixed
// emission order of the control-flow skeleton.
func (e *Emitter) callPhases(b int) [][]*kernel.Kernel {
	timeCalls := append(append([]*kernel.Kernel{}, e.spatial[b].Computations...),
		e.temporal[b].Computations...)
	return [][]*kernel.Kernel{
		timeCalls,
		e.temporal[b].StartComputations,
		e.temporal[b].EndComputations,
		e.initial[b].Computations,
	}
}

func (e *Emitter) phaseCalls(pick func(b int) []*kernel.Kernel) ([]string, error) {
	var lines []string
	for b := 0; b < e.nblocks; b++ {
		for _, k := range pick(b) {
			call, err := e.kernelCall(k)
			if err != nil {
				return nil, err
			}
			lines = append(lines, call...)
		}
	}
	return lines, nil
}

func sum(ns []int) int {
	total := 0
	for _, n := range ns {
		total += n
	}
	return total
}
