// Command albaqer is the entry point for the AlBaqer gemstone knowledge
// engine. It ingests the knowledge base, answers semantic searches and RAG
// queries from the CLI, and serves the same engine over HTTP for the chatbot.
package main

import (
	"fmt"
	"os"

	"github.com/Ali-M-Jradi/albaqer-chatbot/cmd/albaqer/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
