package main

import (
	"fmt"
	"os"

	"github.com/vasilisp/searchai/internal/cli"
	"github.com/vasilisp/searchai/internal/server"
)

const usage = `usage:
  searchai              run the web server
  searchai cli [query]  search through a running server (query from stdin if omitted)
`

func main() {
	if len(os.Args) < 2 {
		server.Main()
		return
	}

	switch os.Args[1] {
	case "cli":
		cli.Main(os.Args[2:])
	case "serve":
		server.Main()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}
