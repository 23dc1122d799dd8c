package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWhereCmd(o *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:     "where",
		Short:   "Show the pixel a virtual address is drawn at",
		Example: `  binmap where --lib libapp.so --addr 0x1f000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			va, err := parseAddr(addr)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, o, nil)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.engine.RefreshNow(cmd.Context()); err != nil {
				return err
			}

			off, ok := s.lib.Offset(va)
			if !ok {
				return fmt.Errorf("0x%x is outside %s", va, o.lib)
			}
			pt, ok := s.engine.PointOf(off)
			if !ok {
				return fmt.Errorf("0x%x is not drawn", va)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "x=%d y=%d\n", pt.X, pt.Y)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "virtual address (hex)")
	_ = cmd.MarkFlagRequired("addr")
	return cmd
}
