// Package ansicolor holds the escape codes used for console output. The codes
// are plain strings so they can be dropped into Printf calls directly; after
// Disable they are all empty.
package ansicolor

import (
	"os"
	"runtime"

	"github.com/mattn/go-isatty"
)

// Reference: https://github.com/fatih/color/blob/master/color.go

var (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Faint = "\033[2m"

	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Gray   = "\033[37m"

	BgRed    = "\033[41m"
	BgYellow = "\033[43m"
	BgBlue   = "\033[44m"
)

func init() {
	if runtime.GOOS == "windows" || os.Getenv("NO_COLOR") != "" {
		Disable()
	}
}

func Disable() {
	for _, c := range []*string{&Reset, &Bold, &Faint, &Red, &Green, &Yellow, &Blue, &Gray, &BgRed, &BgYellow, &BgBlue} {
		*c = ""
	}
}

// Reports whether f is attached to a terminal, including Cygwin/MSYS ptys.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
