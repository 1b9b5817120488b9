package main

import (
	"context"
	"os"

	"walla-bot/cmd"
)

func main() {
	os.Exit(cmd.Execute(context.Background()))
}
