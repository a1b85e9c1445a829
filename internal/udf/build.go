package udf

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/extdiff/internal/config"
)

// BuildFlags are the extra compiler and linker flags the generated model
// binary needs so that the foreign runtime's headers and libraries resolve.
type BuildFlags struct {
	IncludeDirs    []string
	LibDirs        []string
	Libs           []string
	AllowUndefined bool
	UserHeader     string // header holding the adapter implementations
}

// FlagsFromConfig converts the build section of the configuration.
func FlagsFromConfig(c config.BuildConfig) BuildFlags {
	return BuildFlags{
		IncludeDirs:    c.IncludeDirs,
		LibDirs:        c.LibDirs,
		Libs:           c.Libs,
		AllowUndefined: c.AllowUndefined,
	}
}

// Validate reports missing include or library directories. Problems here
// are fatal at build time; nothing is checked again at run time.
func (f BuildFlags) Validate() error {
	var missing []string
	for _, d := range append(append([]string(nil), f.IncludeDirs...), f.LibDirs...) {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			missing = append(missing, d)
		}
	}
	if len(missing) > 0 {
		return errors.Errorf("udf: build directories not found: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Makefile renders the flags as make variable assignments, e.g.
//
//	STANCFLAGS += --allow-undefined
//	CXXFLAGS += -I/usr/share/R/include
//	LDFLAGS += -L/usr/lib/R/lib
//	LDLIBS += -lR
func (f BuildFlags) Makefile() string {
	var b strings.Builder
	if f.AllowUndefined {
		b.WriteString("STANCFLAGS += --allow-undefined\n")
	}
	if f.UserHeader != "" {
		fmt.Fprintf(&b, "USER_HEADER = %s\n", f.UserHeader)
	}
	writeVar(&b, "CXXFLAGS", "-I", f.IncludeDirs)
	writeVar(&b, "LDFLAGS", "-L", f.LibDirs)
	writeVar(&b, "LDLIBS", "-l", f.Libs)
	return b.String()
}

func writeVar(b *strings.Builder, name, prefix string, values []string) {
	if len(values) == 0 {
		return
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = prefix + v
	}
	fmt.Fprintf(b, "%s += %s\n", name, strings.Join(parts, " "))
}
