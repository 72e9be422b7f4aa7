package commands

import (
	"fmt"

	"github.com/burgrp/udrone/pkg/udrone"
	"github.com/spf13/cobra"
)

// GetDiscoverCommand lists the drones currently idle and answering the
// default discovery group.
func GetDiscoverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List idle drones",
		RunE:  runDiscover,
	}
	return cmd
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	h, err := udrone.NewHost(udrone.WithLocalAddr(cfg.LocalAddr))
	if err != nil {
		return err
	}
	defer h.Close()

	// A negative need means "collect whoever answers across the full
	// resend schedule", as opposed to 0 (send-only ping) or a positive
	// count (stop early once that many have answered).
	ids, err := h.Whois(udrone.DefaultGroupID, -1, nil, nil)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		fmt.Println("No drones found.")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
