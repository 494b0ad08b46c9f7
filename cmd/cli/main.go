package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/cli"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
	}

	err = app.Run(ctx, commandArgs(os.Args[1:]))
	_ = app.Close()
	if err != nil {
		log.Fatalf("%v", err)
	}

}

// commandArgs drops the leading server-config flags so the first element is
// the command name.
func commandArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] != '-' && (i == 0 || !takesValue(args[i-1])) {
			return args[i:]
		}
	}
	return nil
}

func takesValue(flag string) bool {
	switch flag {
	case "-c", "-config", "-m", "-d", "-l", "-a", "-s":
		return true
	}
	return false
}
