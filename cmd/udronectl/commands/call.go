package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/burgrp/udrone/pkg/udrone"
	"github.com/spf13/cobra"
)

// GetCallCommand assigns <max> idle drones to a fresh group (failing if
// fewer can be engaged) and issues a single command to all of them. Since group membership isn't
// persisted across processes (see package design notes), this is a
// one-shot helper: assign, call, print, exit -- not a way to address a
// group set up by an earlier invocation.
func GetCallCommand() *cobra.Command {
	var max int
	cmd := &cobra.Command{
		Use:   "call <prefix> <command> [json-data]",
		Short: "Assign idle drones and issue one command to all of them",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, args, max)
		},
	}
	cmd.Flags().IntVar(&max, "max", 1, "number of idle drones to assign before calling")
	return cmd
}

func runCall(cmd *cobra.Command, args []string, max int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	prefix, command := args[0], args[1]
	var data any
	if len(args) == 3 {
		if err := json.Unmarshal([]byte(args[2]), &data); err != nil {
			return fmt.Errorf("json-data must be valid JSON: %w", err)
		}
	}

	h, err := udrone.NewHost(udrone.WithLocalAddr(cfg.LocalAddr))
	if err != nil {
		return err
	}
	defer h.Close()

	g, err := h.Group(prefix)
	if err != nil {
		return err
	}

	if _, err := g.Assign(max, 0, nil); err != nil {
		return err
	}
	defer func() { _ = g.Reset("") }()

	answers, err := g.Call(command, data, time.Duration(cfg.RequestTimeout)*time.Second, nil)
	if err != nil {
		return err
	}

	for drone, env := range answers {
		fmt.Printf("%s: %s\n", drone, string(env.Data))
	}
	return nil
}
