package main

import (
	"log"

	"datalink/cmd/dlk/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
