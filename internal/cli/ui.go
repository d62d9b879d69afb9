package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/hicann/ge-sub098/pkg/graph"
	"github.com/hicann/ge-sub098/pkg/partition"
	"github.com/hicann/ge-sub098/pkg/pipeline"
)

var (
	colorCyan   = lipgloss.Color("36")  // primary
	colorGreen  = lipgloss.Color("35")  // success
	colorOrange = lipgloss.Color("208") // unknown shape
	colorBlue   = lipgloss.Color("75")  // known shape
	colorWhite  = lipgloss.Color("255")
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240")
)

var (
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	StyleDim   = lipgloss.NewStyle().Foreground(colorDim)
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)
)

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleKey         = lipgloss.NewStyle().Foreground(colorGray).Width(14)
	styleName        = lipgloss.NewStyle().Foreground(colorWhite).Width(40)
	styleKnown       = lipgloss.NewStyle().Foreground(colorBlue)
	styleUnknown     = lipgloss.NewStyle().Foreground(colorOrange)
	styleCached      = lipgloss.NewStyle().Foreground(colorGreen)
	styleComputed    = lipgloss.NewStyle().Foreground(colorGray)
)

const (
	iconSuccess = "✓"
	iconInfo    = "›"
	iconArrow   = "→"
)

func printSuccess(format string, args ...any) {
	fmt.Println(styleIconSuccess.Render(iconSuccess) + " " + fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Println(styleIconInfo.Render(iconInfo) + " " + fmt.Sprintf(format, args...))
}

// printDetail prints an indented, dimmed line.
func printDetail(format string, args ...any) {
	fmt.Println("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

func printFile(path string) {
	fmt.Println("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

func printKeyValue(key, value string) {
	fmt.Println(styleKey.Render(key) + " " + StyleValue.Render(value))
}

// printResult prints the summary of a pipeline run and where each stage came
// from.
func printResult(r *pipeline.Result) {
	printSummary(r.Summary)
	if !r.CacheInfo.CompileHit {
		printPassStats(r.Partition, r.Inlined)
	}
	printKeyValue("compile", cacheStatus(r.CacheInfo.CompileHit))
	printKeyValue("render", cacheStatus(r.CacheInfo.RenderHit))
}

func printSummary(s pipeline.Summary) {
	fmt.Println(StyleTitle.Render("graph"))
	printKeyValue("nodes", fmt.Sprintf("%d (%d total)", s.Nodes, s.TotalNodes))
	printKeyValue("subgraphs", fmt.Sprintf("%d (%s unknown)", s.Subgraphs,
		styleUnknown.Render(strconv.Itoa(s.UnknownSubgraphs))))
	printKeyValue("partitioned", strconv.FormatBool(s.Partitioned))
	if s.SessionID != "" {
		printKeyValue("session", s.SessionID)
	}
}

func printPassStats(st partition.Stats, inlined int) {
	if st.Units > 0 {
		printKeyValue("units", fmt.Sprintf("%d (%d split)", st.Units, st.Split))
		printKeyValue("frames", strconv.Itoa(st.Frames))
		printKeyValue("rounds", strconv.Itoa(st.Rounds))
	}
	if inlined > 0 {
		printKeyValue("inlined", strconv.Itoa(inlined))
	}
}

// printSubgraphs prints one line per subgraph: name, shape status, node count
// and parent.
func printSubgraphs(g *graph.Graph) {
	subs := g.Subgraphs()
	if len(subs) == 0 {
		return
	}
	fmt.Println(StyleTitle.Render("subgraphs"))
	for _, sub := range subs {
		status := styleKnown.Render("known  ")
		if sub.UnknownShape() {
			status = styleUnknown.Render("unknown")
		}
		parent := "-"
		if p := sub.ParentNode(); p != nil && p.Owner() != nil {
			parent = p.Owner().Name() + "/" + p.Name()
		}
		fmt.Println(styleName.Render(sub.Name()) + " " + status + " " +
			StyleDim.Render(fmt.Sprintf("%4d nodes  %s %s", sub.NodeCount(), iconArrow, parent)))
	}
}

func cacheStatus(hit bool) string {
	if hit {
		return styleCached.Render("cached")
	}
	return styleComputed.Render("fresh")
}
