package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modinject"
)

// NewGraphCommand creates the command printing the resolved module graph.
func NewGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the resolved module graph",
		Long: `Bootstrap the application and print every registered module with its
token, imports, providers, controllers and exports. Global modules are
marked; their providers are visible to every other module.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cmd)
			if err != nil {
				return err
			}
			noColor, _ := cmd.Flags().GetBool("no-color")
			app, _, err := bootstrap(cmd.Context(), cfg, modinject.WithLogger(modinject.NopLogger()))
			if err != nil {
				return err
			}
			defer func() { _ = app.Close(context.WithoutCancel(cmd.Context())) }()
			WriteGraph(cmd.OutOrStdout(), app.Container(), !noColor)
			return nil
		},
	}
	cmd.Flags().Bool("no-color", false, "Disable colored output")
	return cmd
}

// WriteGraph renders the modules of container in registration order.
func WriteGraph(w io.Writer, container *modinject.Container, colored bool) {
	title := color.New(color.FgCyan, color.Bold)
	global := color.New(color.FgYellow)
	label := color.New(color.Faint)
	if !colored {
		title.DisableColor()
		global.DisableColor()
		label.DisableColor()
	}

	for _, module := range container.Modules().Values() {
		title.Fprint(w, module.Name())
		if container.IsGlobalModule(module) {
			global.Fprint(w, " (global)")
		}
		fmt.Fprintf(w, " [%s]\n", shortToken(module.Token()))

		var imports []string
		for _, related := range module.RelatedModules() {
			imports = append(imports, related.Name())
		}
		var controllers []string
		controllers = append(controllers, module.Routes().Names()...)

		writeList(w, label, "imports", imports)
		writeList(w, label, "providers", module.Providers())
		writeList(w, label, "controllers", controllers)
		writeList(w, label, "exports", module.Exports())
	}
}

func writeList(w io.Writer, label *color.Color, name string, items []string) {
	label.Fprintf(w, "  %-12s", name+":")
	if len(items) == 0 {
		fmt.Fprintln(w, "-")
		return
	}
	fmt.Fprintln(w, strings.Join(items, ", "))
}

func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
