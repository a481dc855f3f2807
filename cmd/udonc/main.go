// Command udonc compiles a surface-language AST (produced by an
// external parser, §6.1) down to VRChat Udon `.uasm` text assembly.
// Command-tree structure follows cmd/glyph/main.go's cobra idiom.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

func printInfo(msg string)    { infoColor.Printf("[INFO] %s\n", msg) }
func printSuccess(msg string) { successColor.Printf("[SUCCESS] %s\n", msg) }
func printWarning(msg string) { warningColor.Printf("[WARNING] %s\n", msg) }
func printError(err error)    { errorColor.Printf("[ERROR] %s\n", err.Error()) }

func main() {
	rootCmd := &cobra.Command{
		Use:     "udonc",
		Short:   "Udon Assembly Compiler",
		Long:    "udonc lowers a surface-language AST to VRChat Udon .uasm assembly.",
		Version: version,
	}

	compileCmd := &cobra.Command{
		Use:   "compile <ast.json>",
		Short: "Compile an AST document to .uasm assembly",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompile,
	}
	compileCmd.Flags().StringP("output", "o", "", "Output .uasm file (default: input path with .uasm extension)")
	compileCmd.Flags().Uint8P("opt-level", "O", 2, "Optimization level (0=none, 1-2=basic, 3=aggressive)")
	compileCmd.Flags().String("catalog", "", "Path to a YAML extern catalog / event registry (default: built-in reference registry)")
	compileCmd.Flags().Bool("otlp", false, "Export traces via OTLP instead of stdout")
	compileCmd.Flags().String("otlp-endpoint", "", "OTLP collector endpoint (default localhost:4317)")
	compileCmd.Flags().Bool("dump-udon", false, "Also write a disassembly-style Udon IR listing alongside the .uasm output")

	watchCmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Recompile every AST document under dir on change",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	watchCmd.Flags().StringP("output", "o", "", "Output directory (default: alongside each source file)")
	watchCmd.Flags().Uint8P("opt-level", "O", 2, "Optimization level (0=none, 1-2=basic, 3=aggressive)")
	watchCmd.Flags().String("catalog", "", "Path to a YAML extern catalog / event registry")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the compiler as an HTTP service",
		RunE:  runServe,
	}
	serveCmd.Flags().Uint16P("port", "p", 0, "Port to listen on (default from pkg/config)")
	serveCmd.Flags().String("catalog", "", "Path to a YAML extern catalog / event registry")
	serveCmd.Flags().Bool("otlp", false, "Export traces via OTLP instead of stdout")
	serveCmd.Flags().String("otlp-endpoint", "", "OTLP collector endpoint (default localhost:4317)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the compiler version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(compileCmd, watchCmd, serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}
