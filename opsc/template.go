package opsc

import (
	"fmt"
	"strings"
)

// sectionOrder is the fixed control-flow skeleton of the generated main
// program. Each entry is a named hole; boundary-exchange calls appear twice,
// once before the time loop and once per step inside it. Holes are computed
// independently and substituted in a single pass, in this order, because
// later sections reference identifiers finalized by earlier ones.
var sectionOrder = []string{
	"header",
	"main_start",
	"initialise_constants",
	"ops_init",
	"declare_ops_constants",
	"define_block",
	"initialise_block",
	"define_dat",
	"initialise_dat",
	"declare_stencils",
	"bc_exchange",
	"ops_partition",
	"initialisation",
	"bc_calls",
	"timer_start",
	"timeloop",
	"time_start_calls",
	"innerloop",
	"time_calls",
	"bc_calls",
	"end_inner_loop",
	"time_end_calls",
	"io_time",
	"end_time_loop",
	"timer_end",
	"print_timings",
	"io_calls",
	"ops_exit",
	"main_end",
}

// programTemplate collects the computed section bodies and assembles the
// main program. A section may legitimately be empty (e.g. the inner stage
// loop of a single-stage integrator), but every named hole must have been
// filled before rendering; a missing hole is a construction bug and fails
// fast rather than leaving a silent gap in the output.
type programTemplate struct {
	holes map[string][]string
}

func newProgramTemplate() *programTemplate {
	return &programTemplate{holes: make(map[string][]string)}
}

func (t *programTemplate) fill(name string, lines []string) {
	t.holes[name] = lines
}

func (t *programTemplate) render() (string, error) {
	var sb strings.Builder
	for _, name := range sectionOrder {
		lines, ok := t.holes[name]
		if !ok {
			return "", fmt.Errorf("program template hole %q was never filled", name)
		}
		for _, line := range lines {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		if len(lines) > 0 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
