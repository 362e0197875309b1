package main

import "github.com/MeKo-Tech/ocrbridge/cmd/ocrbridge/cmd"

func main() {
	cmd.Execute()
}
