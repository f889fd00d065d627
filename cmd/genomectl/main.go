// Command genomectl inspects local FASTA files and manages the genome search
// database.
//
// Usage:
//
//	go run ./cmd/genomectl parse genome.fa
//	go run ./cmd/genomectl search genome.fa --seq GATTACA
//	go run ./cmd/genomectl migrate [-c configs/development.yaml]
package main

import "github.com/Adithya-Monish-Kumar-K/genome-search/internal/cli"

func main() {
	cli.Execute()
}
