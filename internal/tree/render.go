package tree

import (
	"fmt"
	"io"
	"strings"
)

// Tree drawing characters
type treeChars struct {
	Branch     string
	LastBranch string
	Vertical   string
	Space      string
}

var unicodeChars = treeChars{
	Branch:     "├── ",
	LastBranch: "└── ",
	Vertical:   "│   ",
	Space:      "    ",
}

// Render writes the visible part of t, one entry per line. Directories
// end in "/".
func Render(t Tree, w io.Writer) error {
	var builder strings.Builder
	for _, v := range t.Visible() {
		name := v.Node.Name
		if v.Node.IsDir() {
			name += "/"
		}
		fmt.Fprintf(&builder, "%s%s\n", v.Prefix, name)
	}
	_, err := io.WriteString(w, builder.String())
	return err
}
