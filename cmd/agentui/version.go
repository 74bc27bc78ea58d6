package main

import (
	"context"
	"fmt"

	"github.com/a-h/agentui"
)

type VersionCommand struct {
}

func (c VersionCommand) Run(ctx context.Context) (err error) {
	fmt.Println(agentui.Version)
	return nil
}
