package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`   ___                       ___ _           _       `, "#818cf8"},
	{`  / __|_ _ ___ ______ ___   / __| |_  __ _ (_)_ _    `, "#a78bfa"},
	{` | (__| '_/ _ (_-<_-</ -_) | (__| ' \/ _' || | ' \   `, "#c084fc"},
	{`  \___|_| \___/__/__/\___|  \___|_||_\__,_||_|_||_|  `, "#e879f9"},
}

// PrintBanner writes the crosschain banner followed by the version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
