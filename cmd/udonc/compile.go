package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/udon-lang/udonc/pkg/pipeline"
	"github.com/udon-lang/udonc/pkg/udon"
)

func runCompile(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	output, _ := cmd.Flags().GetString("output")

	printInfo(fmt.Sprintf("Compiling %s", inputPath))

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	prog, err := pipeline.ParseProgram(data)
	if err != nil {
		return err
	}

	driver, cleanup, err := buildDriver(cmd, "udonc-compile")
	if err != nil {
		return err
	}
	defer cleanup()

	start := time.Now()
	result, err := driver.Compile(context.Background(), prog)
	if err != nil {
		return fmt.Errorf("compilation failed: %w", err)
	}
	elapsed := time.Since(start)

	for _, w := range result.Warnings {
		printWarning(w)
	}

	if output == "" {
		output = changeExtension(inputPath, ".uasm")
	}
	if err := os.WriteFile(output, []byte(result.Assembly), 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if dumpUdon, _ := cmd.Flags().GetBool("dump-udon"); dumpUdon {
		dumpPath := changeExtension(output, ".udon.txt")
		if err := os.WriteFile(dumpPath, []byte(udon.FormatProgram(result.Udon)), 0644); err != nil {
			return fmt.Errorf("failed to write udon dump: %w", err)
		}
		printInfo(fmt.Sprintf("Wrote Udon IR dump to %s", dumpPath))
	}

	printSuccess(fmt.Sprintf("Compiled to %s", output))
	printInfo(fmt.Sprintf("Compilation time: %s", elapsed))
	printInfo(fmt.Sprintf("Output size: %d bytes", len(result.Assembly)))
	return nil
}
