package commands

import (
	"fmt"
	"strconv"

	"github.com/burgrp/udrone/pkg/udrone"
	"github.com/spf13/cobra"
)

// GetAssignCommand creates a group with the given prefix and assigns it
// <max> idle drones; it fails if fewer than <max> can be engaged.
func GetAssignCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <prefix> <max>",
		Short: "Create a group and assign idle drones to it",
		Args:  cobra.ExactArgs(2),
		RunE:  runAssign,
	}
	return cmd
}

func runAssign(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	max, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("max must be an integer: %w", err)
	}

	h, err := udrone.NewHost(udrone.WithLocalAddr(cfg.LocalAddr))
	if err != nil {
		return err
	}
	defer h.Close()

	g, err := h.Group(args[0])
	if err != nil {
		return err
	}

	members, err := g.Assign(max, 0, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Group %s now has %d member(s):\n", g.ID(), len(members))
	for _, id := range members {
		fmt.Println(id)
	}
	return nil
}
