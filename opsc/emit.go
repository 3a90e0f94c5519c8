package opsc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/structmesh/opsgen/expr"
	"github.com/structmesh/opsgen/kernel"
)

// arrayLiteral declares an inline C array: "int name[] = {v0, v1};".
func arrayLiteral(dtype, name string, values []string) string {
	return fmt.Sprintf("%s %s[] = {%s}%s", dtype, name, strings.Join(values, ", "), endOfStatement)
}

func intStrings(values []int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.Itoa(v)
	}
	return out
}

func (e *Emitter) loopOpen(v string, lower, upper int) string {
	return fmt.Sprintf("for (int %s=%d; %s<%d; %s++){", v, lower, v, upper, v)
}

// kernelCall emits the host-side invocation of one kernel: the iteration
// range array, the ops_par_loop header, and one argument descriptor per
// referenced field, grouped inputs, outputs, then input-outputs.
func (e *Emitter) kernelCall(k *kernel.Kernel) ([]string, error) {
	iterName := fmt.Sprintf("iter_range%d", e.iterIndex)
	e.iterIndex++

	var bounds []int
	for _, r := range k.RangeOfEvaluation() {
		bounds = append(bounds, r[0], r[1])
	}
	rangeLine := arrayLiteral("int", iterName, intStrings(bounds))

	pieces := []string{fmt.Sprintf("ops_par_loop(%s, \"%s\", %s, %d, %s",
		k.Name, k.ComputationName, e.blockName, e.ndim, iterName)}

	in, out, inout, err := k.Classify()
	if err != nil {
		return nil, err
	}
	for _, group := range []struct {
		fields *expr.FieldSet
		access string
	}{
		{in, accessRead},
		{out, accessWrite},
		{inout, accessReadWrite},
	} {
		for _, f := range group.fields.Fields() {
			stencil, ok := k.StencilName(f.Name)
			if !ok {
				return nil, fmt.Errorf("kernel %s: no stencil resolved for %s (not finalized?)", k.Name, f.Name)
			}
			pieces = append(pieces, e.opsArgumentCall(f.Name, stencil, group.access))
		}
	}
	// Non-grid arguments: indexed constants are passed as read-only
	// globals, one element per call.
	src := &printer{source: true}
	for _, c := range k.IndexedConstants() {
		arg, err := src.printConstIndexed(c)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, fmt.Sprintf("ops_arg_gbl(&%s, %d, \"%s\", %s)", arg, 1, e.dtype, accessRead))
	}
	if k.UsesGridIndex() {
		pieces = append(pieces, "ops_arg_idx()")
	}

	lines := []string{rangeLine}
	for i, p := range pieces {
		if i < len(pieces)-1 {
			lines = append(lines, p+",")
		} else {
			lines = append(lines, p+")"+endOfStatement)
		}
	}
	lines = append(lines, "")
	return lines, nil
}

func (e *Emitter) opsArgumentCall(array, stencil, access string) string {
	return fmt.Sprintf("ops_arg_dat(%s, %d, %s, \"%s\", %s)", array, 1, stencil, e.dtype, access)
}

// accessTags resolves the per-kernel access-mode numbering: every distinct
// grid field gets OPS_ACC<n> in first-encounter order across inputs, then
// outputs, then input-outputs. Non-grid arguments carry no tag.
func accessTags(k *kernel.Kernel) (map[string]string, error) {
	in, out, inout, err := k.Classify()
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string)
	no := 0
	for _, set := range []*expr.FieldSet{in, out, inout} {
		for _, f := range set.Fields() {
			tags[f.Name] = fmt.Sprintf("OPS_ACC%d", no)
			no++
		}
	}
	return tags, nil
}

// computationalRoutines emits the kernel-definition file of every block: an
// include-guarded header holding one generated function per kernel, in the
// fixed body phase order: spatial, initialisation, then temporal kernels.
func (e *Emitter) computationalRoutines() ([]NamedFile, error) {
	files := make([]NamedFile, 0, e.nblocks)
	for b := 0; b < e.nblocks; b++ {
		lines := []string{fmt.Sprintf("#ifndef block_%d_KERNEL_H\n#define block_%d_KERNEL_H\n", b, b)}
		bodies := append([]*kernel.Kernel{}, e.spatial[b].Computations...)
		bodies = append(bodies, e.initial[b].Computations...)
		bodies = append(bodies, e.temporal[b].Computations...)
		bodies = append(bodies, e.temporal[b].StartComputations...)
		bodies = append(bodies, e.temporal[b].EndComputations...)
		for _, k := range bodies {
			body, err := e.kernelComputation(k, b)
			if err != nil {
				return nil, err
			}
			lines = append(lines, body...)
		}
		lines = append(lines, "#endif")
		files = append(files, NamedFile{
			Name: e.kernelFileNames[b],
			Data: []byte(strings.Join(lines, "\n")),
		})
	}
	return files, nil
}

// kernelComputation emits one generated kernel function: a block comment
// with the pretty-printed equations and the diagnostic operation counts,
// the parameter list split const/mutable by access mode, and one assignment
// statement per equation.
func (e *Emitter) kernelComputation(k *kernel.Kernel, blockNumber int) ([]string, error) {
	if k.Name == "" {
		k.Name = fmt.Sprintf("%s_block%d_%d_kernel", e.params.Name, blockNumber, e.kernelNameNumber[blockNumber])
	}

	count := 0
	for _, eq := range k.Equations() {
		count += expr.CountOps(eq.RHS)
	}
	gridCount := count * k.GridPointCount()

	src := &printer{source: true}
	comment := []string{"/*"}
	for _, eq := range k.Equations() {
		line, err := src.ccode(eq)
		if err != nil {
			return nil, fmt.Errorf("kernel %s: %w", k.Name, err)
		}
		comment = append(comment, line)
	}
	comment = append(comment,
		fmt.Sprintf("The count of operations per grid point for the kernel is %d", count),
		fmt.Sprintf("The count of operations on the range of evaluation for the kernel is %d", gridCount),
		"*/")

	in, out, inout, err := k.Classify()
	if err != nil {
		return nil, err
	}
	var params []string
	for _, f := range in.Fields() {
		params = append(params, fmt.Sprintf("const %s *%s", e.dtype, f.Name))
	}
	for _, f := range out.Fields() {
		params = append(params, fmt.Sprintf("%s *%s", e.dtype, f.Name))
	}
	for _, f := range inout.Fields() {
		params = append(params, fmt.Sprintf("%s *%s", e.dtype, f.Name))
	}
	for _, c := range k.IndexedConstants() {
		params = append(params, fmt.Sprintf("const %s *%s", e.dtype, c.Name))
	}
	if k.UsesGridIndex() {
		params = append(params, "const int *idx")
	}

	tags, err := accessTags(k)
	if err != nil {
		return nil, err
	}
	body := &printer{accessTags: tags}

	lines := append([]string{}, comment...)
	lines = append(lines,
		"void "+k.Name+"("+strings.Join(params, " , ")+")",
		"{")
	for _, eq := range k.Equations() {
		stmt, err := body.ccode(eq)
		if err != nil {
			return nil, fmt.Errorf("kernel %s: %w", k.Name, err)
		}
		lines = append(lines, stmt+endOfStatement)
	}
	lines = append(lines, "}", "")

	e.updateDefinitions(k, in, out, inout)
	e.kernelNameNumber[blockNumber]++
	return lines, nil
}

// updateDefinitions feeds one kernel's referenced fields and constants back
// into the emitter's process-wide tracking sets for declaration emission.
func (e *Emitter) updateDefinitions(k *kernel.Kernel, sets ...*expr.FieldSet) {
	for _, set := range sets {
		for _, f := range set.Fields() {
			e.gridArrays.Add(f)
		}
	}
	for _, c := range k.Constants() {
		e.trackConstant(c.Name, constDecl{})
	}
	for _, c := range k.IndexedConstants() {
		e.trackConstant(c.Name, constDecl{indexed: true, rank: c.Rank})
	}
}

func (e *Emitter) trackConstant(name string, decl constDecl) {
	if _, ok := e.constants[name]; ok {
		return
	}
	e.constants[name] = decl
	e.constOrder = append(e.constOrder, name)
}

// header emits the program preamble: system includes, global constant
// declarations, the dimensionality macro and the OPS and kernel includes.
func (e *Emitter) header() []string {
	code := []string{
		"#include <stdlib.h>",
		"#include <string.h>",
		"#include <math.h>",
		"// Global Constants in the equations are",
	}
	for _, name := range e.constOrder {
		decl := e.constants[name]
		if decl.indexed {
			code = append(code, fmt.Sprintf("%s %s[%d]%s", e.dtype, name, decl.rank, endOfStatement))
		} else {
			code = append(code, fmt.Sprintf("%s %s%s", e.dtype, name, endOfStatement))
		}
	}
	code = append(code,
		"// OPS header file",
		fmt.Sprintf("#define OPS_%dD", e.ndim),
		`#include "ops_seq.h"`)
	for _, name := range e.kernelFileNames {
		code = append(code, fmt.Sprintf("#include \"%s\"", name))
	}
	return code
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// initialiseConstants assigns every tracked constant from the parameter
// table, element-wise for indexed constants. A missing entry or a rank
// mismatch is fatal.
func (e *Emitter) initialiseConstants() ([]string, error) {
	var code []string
	for _, name := range e.constOrder {
		decl := e.constants[name]
		val, ok := e.params.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, ErrUnknownConstant)
		}
		if decl.indexed {
			if decl.rank != val.Len() {
				return nil, fmt.Errorf("the indexed constant %s should have only %d values, got %d: %w",
					name, decl.rank, val.Len(), ErrConstantRank)
			}
			for r := 0; r < decl.rank; r++ {
				code = append(code, fmt.Sprintf("%s[%d] = %s%s", name, r, formatValue(val.Array[r]), endOfStatement))
			}
		} else {
			if val.IsArray {
				return nil, fmt.Errorf("the indexed constant %s should have only %d values, got %d: %w",
					name, 1, val.Len(), ErrConstantRank)
			}
			code = append(code, fmt.Sprintf("%s = %s%s", name, formatValue(val.Scalar), endOfStatement))
		}
	}
	return code, nil
}

// declareOpsConstants registers every scalar constant with the runtime.
// Indexed constants are passed per call as globals and are not declared.
func (e *Emitter) declareOpsConstants() []string {
	var code []string
	for _, name := range e.constOrder {
		if e.constants[name].indexed {
			continue
		}
		code = append(code, fmt.Sprintf("ops_decl_const(\"%s\" , 1, \"%s\", &%s)%s",
			name, e.dtype, name, endOfStatement))
	}
	return code
}

func (e *Emitter) defineBlock() ([]string, error) {
	if e.multiblock {
		return nil, fmt.Errorf("multi block: %w", ErrNotImplemented)
	}
	return []string{
		"// Defining block in OPS Format",
		fmt.Sprintf("ops_block %s%s", e.blockName, endOfStatement),
	}, nil
}

func (e *Emitter) initialiseBlock() ([]string, error) {
	if e.multiblock {
		return nil, fmt.Errorf("multi block: %w", ErrNotImplemented)
	}
	return []string{
		"// Initialising block in OPS Format",
		fmt.Sprintf("%s = ops_decl_block(%d, \"%s\")%s", e.blockName, e.ndim, e.blockName, endOfStatement),
	}, nil
}

func (e *Emitter) defineDat() ([]string, error) {
	if e.multiblock {
		return nil, fmt.Errorf("multi block: %w", ErrNotImplemented)
	}
	code := []string{"// Define data files"}
	for _, f := range e.gridArrays.Fields() {
		code = append(code, fmt.Sprintf("ops_dat %s%s", f.Name, endOfStatement))
	}
	return code, nil
}

func (e *Emitter) initialiseDat() ([]string, error) {
	if e.multiblock {
		return nil, fmt.Errorf("multi block: %w", ErrNotImplemented)
	}
	grid := e.blocks[0]
	var haloP, haloM []int
	for _, h := range grid.Halos {
		haloM = append(haloM, h[0])
		haloP = append(haloP, h[1])
	}
	base := make([]int, len(grid.Shape))
	code := []string{
		"// Initialize/ Allocate data files",
		arrayLiteral("int", "halo_p", intStrings(haloP)),
		arrayLiteral("int", "halo_m", intStrings(haloM)),
		arrayLiteral("int", "size", intStrings(grid.Shape)),
		arrayLiteral("int", "base", intStrings(base)),
		fmt.Sprintf("%s* val = NULL%s", e.dtype, endOfStatement),
	}
	for _, f := range e.gridArrays.Fields() {
		code = append(code, fmt.Sprintf(
			"%s = ops_decl_dat(%s, 1, size, base, halo_m, halo_p, val, \"%s\", \"%s\")%s",
			f.Name, e.blockName, e.dtype, f.Name, endOfStatement))
	}
	return code, nil
}

// declareStencils declares every registry stencil; blocks share a single
// program-wide numbering.
func (e *Emitter) declareStencils() []string {
	code := []string{"// Declare all the stencils used "}
	for _, spec := range e.blocks[0].Stencils.Specs() {
		key := stencilKey(spec.Points)
		code = append(code, arrayLiteral("int", spec.Name+"_temp", []string{key}))
		code = append(code, fmt.Sprintf("ops_stencil %s = ops_decl_stencil(%d,%d,%s,\"%s\")%s",
			spec.Name, spec.NDim, spec.NPoints(), spec.Name+"_temp", key, endOfStatement))
	}
	return code
}

func stencilKey(points [][]int) string {
	var parts []string
	for _, p := range points {
		parts = append(parts, intStrings(p)...)
	}
	return strings.Join(parts, ",")
}

// boundaryConditions emits the halo-group declarations and the per-step
// transfer calls. Only self-exchange boundaries are supported; anything
// else fails before any code is emitted.
func (e *Emitter) boundaryConditions() (exchange, calls []string, err error) {
	for b := 0; b < e.nblocks; b++ {
		bc := e.boundary[b]
		for i, kind := range bc.Kinds {
			if kind != ExchangeSelf {
				return nil, nil, fmt.Errorf(
					"only boundary conditions of type exchange are supported, got %q: %w",
					kind, ErrNotImplemented)
			}
			call, code := e.bcExchangeCallCode(bc.Transfers[i])
			calls = append(calls, call...)
			exchange = append(exchange, code...)
		}
	}
	return exchange, calls, nil
}

func (e *Emitter) bcExchangeCallCode(t Transfer) (call, code []string) {
	name := fmt.Sprintf("halo_exchange%d", e.haloExchangeNumber)
	e.haloExchangeNumber++

	dir := make([]int, len(t.To))
	for i := range dir {
		dir[i] = i + 1
	}
	code = []string{
		"// Boundary condition exchange code",
		fmt.Sprintf("ops_halo_group %s %s", name, endOfStatement),
		"{",
		arrayLiteral("int", "halo_iter", intStrings(t.Size)),
		arrayLiteral("int", "from_base", intStrings(t.From)),
		arrayLiteral("int", "to_base", intStrings(t.To)),
		arrayLiteral("int", "dir", intStrings(dir)),
	}
	var members []string
	for off, arr := range t.Arrays {
		code = append(code, fmt.Sprintf(
			"ops_halo halo%d = ops_decl_halo(%s, %s, halo_iter, from_base, to_base, dir, dir)%s",
			off, arr, arr, endOfStatement))
		members = append(members, fmt.Sprintf("halo%d", off))
	}
	code = append(code,
		arrayLiteral("ops_halo", "grp", members),
		fmt.Sprintf("%s = ops_decl_halo_group(%d,grp)%s", name, len(members), endOfStatement),
		"}")

	call = []string{
		"// Boundary condition exchange calls",
		fmt.Sprintf("ops_halo_transfer(%s)%s", name, endOfStatement),
	}
	return call, code
}

// fileIO emits the end-of-run snapshot: the whole block's metadata followed
// by each tracked field appended into the same state file. Stepped or
// periodic saves are out of scope.
func (e *Emitter) fileIO() (ioCalls, ioTime []string, err error) {
	for b := 0; b < e.nblocks; b++ {
		io := e.io[b]
		if len(io.SaveAfter) != 1 || !io.SaveAfter[0] {
			return nil, nil, fmt.Errorf("file output at time steps: %w", ErrNotImplemented)
		}
		ioCalls = append(ioCalls, fmt.Sprintf(
			"ops_fetch_block_hdf5_file(%s, \"state.h5\")%s", e.blockName, endOfStatement))
		arrays := io.SaveArrays
		if len(arrays) == 0 {
			for _, f := range e.gridArrays.Fields() {
				arrays = append(arrays, f.Name)
			}
		}
		for _, arr := range arrays {
			ioCalls = append(ioCalls, fmt.Sprintf(
				"ops_fetch_dat_hdf5_file(%s, \"state.h5\")%s", arr, endOfStatement))
		}
	}
	return ioCalls, ioTime, nil
}

func (e *Emitter) opsTimers() (start, end, report []string) {
	start = []string{
		"double cpu_start, elapsed_start" + endOfStatement,
		"ops_timers(&cpu_start, &elapsed_start)" + endOfStatement,
	}
	end = []string{
		"double cpu_end, elapsed_end" + endOfStatement,
		"ops_timers(&cpu_end, &elapsed_end)" + endOfStatement,
	}
	report = []string{
		`ops_printf("\nTimings are:\n")` + endOfStatement,
		`ops_printf("-----------------------------------------\n")` + endOfStatement,
		`ops_printf("Total Wall time %lf\n",elapsed_end-elapsed_start)` + endOfStatement,
	}
	return start, end, report
}
