// Package procscan lists live OS processes that may host an instance
// channel and tracks the identity of processes an instance waits on.
package procscan

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Lister enumerates candidate process ids. It must be safe for concurrent use.
type Lister interface {
	PIDs(ctx context.Context) ([]int, error)
}

// System lists processes of the running OS via gopsutil.
// When SameImage is true, only processes running the same executable as the
// current process are returned.
type System struct {
	SameImage bool
	// Executable overrides the image compared against; defaults to os.Executable().
	Executable string
}

func (s System) PIDs(ctx context.Context) ([]int, error) {
	if !s.SameImage {
		raw, err := gopsproc.PidsWithContext(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]int, 0, len(raw))
		for _, p := range raw {
			out = append(out, int(p))
		}
		return out, nil
	}

	self := s.Executable
	if self == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, err
		}
		self = exe
	}
	if r, err := filepath.EvalSymlinks(self); err == nil {
		self = r
	}
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, 8)
	for _, p := range procs {
		if sameImage(ctx, p, self) {
			out = append(out, int(p.Pid))
		}
	}
	return out, nil
}

// sameImage compares the full executable path when readable and falls back
// to the base name (processes of other users often hide their exe path).
func sameImage(ctx context.Context, p *gopsproc.Process, self string) bool {
	if exe, err := p.ExeWithContext(ctx); err == nil && exe != "" {
		if r, err := filepath.EvalSymlinks(exe); err == nil {
			exe = r
		}
		return samePath(exe, self)
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return false
	}
	return strings.EqualFold(name, filepath.Base(self))
}

// Static is a fixed candidate list.
type Static []int

func (s Static) PIDs(context.Context) ([]int, error) {
	out := make([]int, len(s))
	copy(out, s)
	return out, nil
}
