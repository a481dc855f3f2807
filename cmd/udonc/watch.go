package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/udon-lang/udonc/pkg/pipeline"
)

// runWatch recompiles every .json AST document under dir whenever it
// changes, grounded in cmd/glyph's watchFile fsnotify loop.
func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	outDir, _ := cmd.Flags().GetString("output")

	driver, cleanup, err := buildDriver(cmd, "udonc-watch")
	if err != nil {
		return err
	}
	defer cleanup()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	recompile := func(path string) {
		if filepath.Ext(path) != ".json" {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			printError(fmt.Errorf("read %s: %w", path, err))
			return
		}
		prog, err := pipeline.ParseProgram(data)
		if err != nil {
			printError(err)
			return
		}
		result, err := driver.Compile(context.Background(), prog)
		if err != nil {
			printError(fmt.Errorf("compile %s: %w", path, err))
			return
		}

		out := changeExtension(path, ".uasm")
		if outDir != "" {
			out = filepath.Join(outDir, filepath.Base(out))
		}
		if err := os.WriteFile(out, []byte(result.Assembly), 0644); err != nil {
			printError(fmt.Errorf("write %s: %w", out, err))
			return
		}
		printSuccess(fmt.Sprintf("Recompiled %s -> %s", path, out))
	}

	printInfo(fmt.Sprintf("Watching %s for changes...", dir))
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				recompile(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			printError(fmt.Errorf("watcher error: %w", err))
		}
	}
}
