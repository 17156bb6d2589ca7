/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/blacktop/rpost/internal/rpost"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	targetStyle = lipgloss.NewStyle().Width(24)
)

// renderSummary prints one line per target and a closing tally.
func renderSummary(out io.Writer, outcomes []rpost.Outcome) {
	if len(outcomes) == 0 {
		return
	}
	var sb strings.Builder
	submitted := 0
	for _, o := range outcomes {
		target := targetStyle.Render("r/" + o.Target)
		if o.Status == rpost.StatusSubmitted {
			submitted++
			detail := o.URL
			if detail == "" {
				detail = fmt.Sprintf("%d attempt(s)", o.Attempts)
			}
			fmt.Fprintf(&sb, "%s %s %s\n", okStyle.Render("posted"), target, detail)
			continue
		}
		fmt.Fprintf(&sb, "%s %s %s\n", failStyle.Render("failed"), target, o.Reason)
	}
	fmt.Fprintf(&sb, "%d/%d submitted\n", submitted, len(outcomes))
	fmt.Fprint(out, sb.String())
}
