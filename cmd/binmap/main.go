// Command binmap renders and navigates the feature map of an ELF file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options are the flags shared by every subcommand. Canvas and theme flags
// override the config file when set.
type options struct {
	configPath  string
	lib         string
	width       int
	height      int
	orientation string
	scale       float64
	theme       string
	compact     bool
	logLevel    string
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "binmap",
		Short: "Feature map of a binary's address space",
		Long: `binmap compresses the address space of an ELF file into a small
indexed raster: code, data, strings and tagged symbols each get a color,
and any pixel maps back to the address it covers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "YAML config file")
	pf.StringVar(&o.lib, "lib", "", "ELF file to map")
	pf.IntVar(&o.width, "width", 0, "canvas width in pixels")
	pf.IntVar(&o.height, "height", 0, "canvas height in pixels")
	pf.StringVar(&o.orientation, "orientation", "", "major axis: vertical or horizontal")
	pf.Float64Var(&o.scale, "scale", 0, "major-axis zoom")
	pf.StringVar(&o.theme, "theme", "", "color theme")
	pf.BoolVar(&o.compact, "compact", false, "lay mapped ranges end to end")
	pf.StringVar(&o.logLevel, "log-level", "", "trace, debug, info, warn, error or disabled")

	root.AddCommand(
		newRenderCmd(o),
		newLocateCmd(o),
		newWhereCmd(o),
		newRangesCmd(o),
		newWatchCmd(o),
	)
	return root
}
