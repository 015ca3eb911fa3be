package main

import "github.com/theirongolddev/sitebook/cmd"

func main() {
	cmd.Execute()
}
