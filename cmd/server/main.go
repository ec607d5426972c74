package main

import (
	"github.com/trungdq-ct/chat-core/cmd"
)

func main() {
	cmd.Execute()
}
