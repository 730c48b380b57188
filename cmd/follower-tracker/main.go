package main

import (
	"fmt"
	"os"

	"github.com/socialbot/follower-tracker/internal/tools/admin"
)

func main() {
	if err := admin.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
