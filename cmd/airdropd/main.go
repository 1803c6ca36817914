package main

import (
	"log"

	"refdrop/services/airdropd"
)

func main() {
	if err := airdropd.Main(); err != nil {
		log.Fatalf("airdropd: %v", err)
	}
}
