package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/ipybridge/surface"
)

func newStatusCommand(a *app) *cobra.Command {
	var (
		addr  string
		lines int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "show the status of a running ipybridge server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.config.Surface.Addr
			}
			client := surface.NewClient(http.DefaultClient, "http://"+addr)

			st, err := client.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("ipybridge server at %s: %w", addr, err)
			}

			tw := table.NewWriter()
			tw.SetStyle(table.StyleLight)
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Kernel", "Session", "Language", "State", "Alive", "Lines"})
			tw.AppendSeparator()
			kernel := st.KernelID
			if !st.Connected {
				kernel = "(not connected)"
			}
			tw.AppendRow(table.Row{kernel, st.Serial, st.Language, st.State, strconv.FormatBool(st.Alive), st.Lines})
			tw.Render()

			if lines <= 0 {
				return nil
			}
			out, total, err := client.Output(cmd.Context(), max(st.Lines-lines, 0), -1)
			if err != nil {
				return err
			}
			fmt.Printf("\nlast %d of %d lines:\n", len(out), total)
			for _, l := range out {
				fmt.Println(l.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "server address (default from config)")
	cmd.Flags().IntVarP(&lines, "tail", "n", 0, "also print the last n scrollback lines")
	return cmd
}
