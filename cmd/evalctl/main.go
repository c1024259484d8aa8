// Command evalctl is the operator CLI for the evaluation leaderboard.
package main

import "github.com/okian/evalboard/internal/cli"

func main() {
	cli.Execute()
}
