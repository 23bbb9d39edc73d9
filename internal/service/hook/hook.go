// Package hook runs tengo scripts after a target was updated.
//
// Scripts see the variables project, version, target and status and may set
// err to a non-empty string or an error value to report a failure.
package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/oshokin/server-updater/internal/logger"
)

var (
	// ErrScriptFailed is returned when a script reports an error through err.
	ErrScriptFailed = errors.New("hook script reported an error")
	// ErrScriptNotFound is returned when the script path does not exist.
	ErrScriptNotFound = errors.New("hook script does not exist")
)

// modules are the tengo standard modules scripts may import.
var modules = []string{"fmt", "os", "strings", "text", "times", "json"}

// Context is exposed to the script as global variables.
type Context struct {
	// Project is the provider name of the target.
	Project string
	// Version is the requested version.
	Version string
	// Target is the updated file path.
	Target string
	// Status is the outcome status name.
	Status string
}

// Run compiles and executes the script at scriptPath.
func Run(ctx context.Context, scriptPath string, hookCtx Context) error {
	if _, err := os.Stat(scriptPath); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrScriptNotFound, scriptPath)
	}

	contents, err := os.ReadFile(filepath.Clean(scriptPath))
	if err != nil {
		return fmt.Errorf("read hook script %s: %w", scriptPath, err)
	}

	logger.DebugKV(ctx, "Executing hook script", "path", scriptPath, "project", hookCtx.Project)

	script := tengo.NewScript(contents)
	script.SetImports(stdlib.GetModuleMap(modules...))

	for name, value := range map[string]string{
		"project": hookCtx.Project,
		"version": hookCtx.Version,
		"target":  hookCtx.Target,
		"status":  hookCtx.Status,
		"err":     "",
	} {
		if err = script.Add(name, value); err != nil {
			return fmt.Errorf("add hook variable %s: %w", name, err)
		}
	}

	compiled, err := script.RunContext(ctx)
	if err != nil {
		return fmt.Errorf("run hook script %s: %w", scriptPath, err)
	}

	switch v := compiled.Get("err").Value().(type) {
	case error:
		return fmt.Errorf("%w: %v", ErrScriptFailed, v)
	case string:
		if v != "" {
			return fmt.Errorf("%w: %s", ErrScriptFailed, v)
		}
	}

	return nil
}
