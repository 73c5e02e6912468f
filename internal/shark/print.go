package shark

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Fprint writes n and its descendants one per line, indented by one space per
// level.
func Fprint(w io.Writer, n *Node) error {
	bw := bufio.NewWriter(w)
	printNode(bw, n, 0)
	return bw.Flush()
}

func printNode(w *bufio.Writer, n *Node, depth int) {
	w.WriteString(strings.Repeat(" ", depth))
	w.WriteString(n.Name)
	switch n.Kind {
	case Int:
		fmt.Fprintf(w, " = %d", n.i)
	case Float:
		fmt.Fprintf(w, " = %s", formatFloat(n.f))
	case String:
		fmt.Fprintf(w, " = %s", n.s)
	case Sub:
		w.WriteString(": (s)")
	case IntArray:
		fmt.Fprintf(w, " = int[%d]", len(n.ints))
	case FloatArray:
		fmt.Fprintf(w, " = float[%d]", len(n.floats))
	case StringArray:
		fmt.Fprintf(w, " = string[%d]", len(n.strs))
	case SubArray:
		fmt.Fprintf(w, ": [%d]", len(n.nodes))
	}
	w.WriteByte('\n')

	if n.Kind == Sub || n.Kind == SubArray {
		for _, c := range n.nodes {
			printNode(w, c, depth+1)
		}
	}
}

// formatFloat prints six significant digits without trailing zeros.
func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', 6, 32)
}
