package main

import "github.com/morler/repo-translate/cmd"

func main() {
	cmd.Execute()
}
