// Copyright © 2018 One Concern

package main

import (
	"github.com/oneconcern/packpub/cmd/packpub/cmd"
)

func main() {
	cmd.Execute()
}
