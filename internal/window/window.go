// Package window reports the foreground window consumed by context
// gating.
package window

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/dictation-toolbox/dragonfly-sub000/internal/grammar"
)

// Static is a fixed-window source for tests and headless runs.
type Static struct {
	Window grammar.Window
}

func (s Static) Foreground(context.Context) (grammar.Window, error) { return s.Window, nil }

// Hyprland queries hyprctl for the active window. The window class maps
// to the executable field contexts match on, the hex address to the
// handle.
type Hyprland struct{}

// activeWindow is the subset of hyprctl activewindow output consumed.
type activeWindow struct {
	Address string `json:"address"`
	Class   string `json:"class"`
	Title   string `json:"title"`
}

// Foreground returns the current foreground window. When nothing is
// focused, hyprctl reports an empty object; that is a zero window, not
// an error, so context-free grammars keep working on an empty desktop.
func (Hyprland) Foreground(ctx context.Context) (grammar.Window, error) {
	out, err := runHyprctlOutput(ctx, "-j", "activewindow")
	if err != nil {
		return grammar.Window{}, err
	}

	var active activeWindow
	if err := json.Unmarshal(out, &active); err != nil {
		return grammar.Window{}, fmt.Errorf("decode hyprctl activewindow json: %w", err)
	}
	active.Address = strings.TrimSpace(active.Address)
	active.Class = strings.TrimSpace(active.Class)
	active.Title = strings.TrimSpace(active.Title)
	if active.Address == "" {
		return grammar.Window{}, nil
	}

	// The address is informative only; a malformed one degrades to
	// handle zero rather than failing the query.
	handle, _ := strconv.ParseInt(strings.TrimPrefix(active.Address, "0x"), 16, 64)
	return grammar.Window{
		Executable: active.Class,
		Title:      active.Title,
		Handle:     int(handle),
	}, nil
}

func runHyprctlOutput(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "hyprctl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("hyprctl %v failed: %w", args, err)
		}
		return nil, fmt.Errorf("hyprctl %v failed: %w (%s)", args, err, trimmed)
	}
	return out, nil
}
