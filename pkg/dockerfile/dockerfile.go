// Package dockerfile implements a minimal parser for the Dockerfile
// instructions gantry needs to validate and build the stack images.
package dockerfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Instruction is a single Dockerfile instruction with its arguments.
type Instruction struct {
	// Cmd is the upper-cased instruction name (FROM, RUN, ...).
	Cmd string

	// Args is the raw argument string with continuations joined.
	Args string

	// Line is the line the instruction starts on (1-based).
	Line int
}

// Dockerfile is a parsed Dockerfile.
type Dockerfile struct {
	// Path is the file the Dockerfile was read from, if any.
	Path string

	Instructions []Instruction
}

// ParseFile parses the Dockerfile at path.
func ParseFile(path string) (*Dockerfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Dockerfile: %w", err)
	}
	defer f.Close()

	df, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	df.Path = path
	return df, nil
}

// Parse parses Dockerfile content from r. Comments and blank lines are
// dropped, continuation lines are joined. The first instruction must be FROM
// (ARG-before-FROM is not needed by any image in the stack).
func Parse(r io.Reader) (*Dockerfile, error) {
	df := &Dockerfile{}
	scanner := bufio.NewScanner(r)

	var (
		pending     string
		pendingLine int
		lineNo      int
	)

	flush := func() error {
		if pending == "" {
			return nil
		}
		cmd, args, _ := strings.Cut(strings.TrimSpace(pending), " ")
		cmd = strings.ToUpper(cmd)
		if !knownInstructions[cmd] {
			return fmt.Errorf("line %d: unknown instruction %q", pendingLine, cmd)
		}
		df.Instructions = append(df.Instructions, Instruction{
			Cmd:  cmd,
			Args: strings.TrimSpace(args),
			Line: pendingLine,
		})
		pending = ""
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if pending == "" {
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			pendingLine = lineNo
		} else if strings.HasPrefix(trimmed, "#") {
			// A comment line inside a continuation does not end it.
			continue
		}

		if strings.HasSuffix(trimmed, "\\") {
			pending += strings.TrimSuffix(trimmed, "\\") + " "
			continue
		}

		pending += trimmed
		if err := flush(); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if len(df.Instructions) == 0 {
		return nil, fmt.Errorf("empty Dockerfile")
	}
	if df.Instructions[0].Cmd != "FROM" {
		return nil, fmt.Errorf("line %d: first instruction must be FROM, got %s",
			df.Instructions[0].Line, df.Instructions[0].Cmd)
	}
	return df, nil
}

var knownInstructions = map[string]bool{
	"FROM":        true,
	"RUN":         true,
	"CMD":         true,
	"ENTRYPOINT":  true,
	"COPY":        true,
	"ADD":         true,
	"ENV":         true,
	"ARG":         true,
	"EXPOSE":      true,
	"WORKDIR":     true,
	"LABEL":       true,
	"USER":        true,
	"VOLUME":      true,
	"HEALTHCHECK": true,
}

// BaseImages returns the images named by FROM instructions, in order.
func (d *Dockerfile) BaseImages() []string {
	var images []string
	for _, ins := range d.Instructions {
		if ins.Cmd != "FROM" {
			continue
		}
		// Strip platform flag and build-stage alias.
		fields := strings.Fields(ins.Args)
		for _, f := range fields {
			if strings.HasPrefix(f, "--") {
				continue
			}
			images = append(images, f)
			break
		}
	}
	return images
}

// ExposedPorts returns the ports named by EXPOSE instructions. Protocol
// suffixes (":/tcp") are stripped; unparseable ports are skipped.
func (d *Dockerfile) ExposedPorts() []int {
	var ports []int
	for _, ins := range d.Instructions {
		if ins.Cmd != "EXPOSE" {
			continue
		}
		for _, arg := range strings.Fields(ins.Args) {
			portStr, _, _ := strings.Cut(arg, "/")
			port, err := strconv.Atoi(portStr)
			if err != nil {
				continue
			}
			ports = append(ports, port)
		}
	}
	return ports
}

// RunCommands returns the argument strings of all RUN instructions.
func (d *Dockerfile) RunCommands() []string {
	var cmds []string
	for _, ins := range d.Instructions {
		if ins.Cmd == "RUN" {
			cmds = append(cmds, ins.Args)
		}
	}
	return cmds
}

// HasEntrypoint reports whether the image declares a CMD or ENTRYPOINT.
func (d *Dockerfile) HasEntrypoint() bool {
	for _, ins := range d.Instructions {
		if ins.Cmd == "CMD" || ins.Cmd == "ENTRYPOINT" {
			return true
		}
	}
	return false
}
