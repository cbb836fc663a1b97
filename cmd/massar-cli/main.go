package main

import (
	"context"

	"massar-backend/cmd/massar-cli/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
