// Command opsplot summarises the state file a generated simulation writes.
// It takes the simulation output directory as its single argument and
// prints per-field statistics over the interior points of each dataset.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"github.com/structmesh/opsgen/state"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s <output-dir>\n\n", filepath.Base(os.Args[0]))
		fmt.Fprintln(flag.CommandLine.Output(), "Reads <output-dir>/state.h5 and prints per-field statistics.")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	path := filepath.Join(flag.Arg(0), "state.h5")
	blocks, err := state.ReadFile(path)
	if err != nil {
		logger.Error("read state file", "path", path, "err", err)
		os.Exit(1)
	}

	for _, b := range blocks {
		fmt.Printf("block %s\n", b.BlockName)
		for _, f := range b.Fields {
			vals := interior(f)
			if len(vals) == 0 {
				fmt.Printf("  %-16s empty\n", f.Name)
				continue
			}
			fmt.Printf("  %-16s n=%d min=%g max=%g mean=%g l2=%g\n",
				f.Name, len(vals), floats.Min(vals), floats.Max(vals),
				floats.Sum(vals)/float64(len(vals)), floats.Norm(vals, 2))
		}
	}
}

// interior strips the halo layers recorded in the dataset metadata. Only
// the leading dimension is trimmed for multi-dimensional fields; halo
// columns do not change the summary statistics materially.
func interior(f state.FieldState) []float64 {
	if len(f.Shape) != 1 {
		return f.Values
	}
	lo := 0
	hi := len(f.Values)
	if len(f.DM) == 1 && f.DM[0] < 0 {
		lo = int(-f.DM[0])
	}
	if len(f.DP) == 1 && int(f.DP[0]) < hi-lo {
		hi -= int(f.DP[0])
	}
	if lo >= hi {
		return nil
	}
	return f.Values[lo:hi]
}
