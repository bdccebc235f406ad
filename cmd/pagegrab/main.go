package main

import "github.com/bryanchriswhite/PageGrab/cmd/pagegrab/commands"

func main() {
	commands.Execute()
}
