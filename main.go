package main

import "github.com/milvus-io/cherry-pick-check/cmd"

func main() {
	cmd.Execute()
}
