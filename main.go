package main

import (
	"log"

	"github.com/svitlobot/svitlo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
