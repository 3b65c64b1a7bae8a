package main

import (
	"log"

	"goodsale-pos/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
