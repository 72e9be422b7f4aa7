package commands

import (
	"fmt"

	"github.com/burgrp/udrone/pkg/udrone"
	"github.com/spf13/cobra"
)

// GetResetCommand sends a bare !reset (optionally a reboot request) to
// every currently idle-discoverable drone matching the default group.
func GetResetCommand() *cobra.Command {
	var reboot bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset all idle drones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd, reboot)
		},
	}
	cmd.Flags().BoolVar(&reboot, "reboot", false, "request a reboot instead of a plain reset")
	return cmd
}

func runReset(cmd *cobra.Command, reboot bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	h, err := udrone.NewHost(udrone.WithLocalAddr(cfg.LocalAddr))
	if err != nil {
		return err
	}
	defer h.Close()

	ids, err := h.Whois(udrone.DefaultGroupID, -1, nil, nil)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No idle drones to reset.")
		return nil
	}

	how := ""
	if reboot {
		how = "system"
	}
	expect := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		expect[id] = struct{}{}
	}
	if _, err := h.Reset(udrone.DefaultGroupID, how, expect); err != nil {
		return err
	}
	fmt.Printf("Reset requested for %d drone(s).\n", len(ids))
	return nil
}
