package main

import (
	"log"

	"refdrop/services/payoutd"
)

func main() {
	if err := payoutd.Main(); err != nil {
		log.Fatalf("payoutd: %v", err)
	}
}
