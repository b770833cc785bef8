package main

import "github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/cmd"

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.Execute(version, commit, date)
}
