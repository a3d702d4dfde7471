package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"telerelay/internal/transport"
)

var listPortsCmd = &cobra.Command{
	Use:   "list-ports",
	Short: "List the serial ports the OS currently exposes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("no serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}
