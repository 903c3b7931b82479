package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	"                      __ _               ",
	"   ___ ___  _ __ ___ / _| |_  ___ __ __  ",
	"  / __/ _ \\| '_ ` _ \\ |_| | |/ _ \\\\ V  V /",
	" | (_| (_) | | | | | |  _| | | (_) \\ /\\ / ",
	"  \\___\\___/|_| |_| |_|_| |_|_|\\___/ \\_/\\_/  ",
}

var bannerColors = []string{"#818cf8", "#a78bfa", "#c084fc", "#e879f9", "#f472b6"}

// PrintBanner writes the ASCII banner followed by the version line.
// Colors are dropped when w is not a terminal.
func PrintBanner(w io.Writer, version string) {
	p := termenv.Ascii
	if IsTerminal(w) {
		p = termenv.ColorProfile()
	}

	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, p.String(line).Foreground(p.Color(bannerColors[i%len(bannerColors)])))
	}
	fmt.Fprintln(w, p.String("  "+version).Faint())
	fmt.Fprintln(w)
}
