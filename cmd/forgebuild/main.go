package main

import "github.com/stevelan1995/forgebuild/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
