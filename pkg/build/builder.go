// Package build produces container images from Dockerfiles and build
// contexts using a local Docker engine.
package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"

	"github.com/gantryhq/gantry/pkg/log"
)

// Options describes a single image build.
type Options struct {
	// ContextDir is the build context directory.
	ContextDir string

	// Dockerfile is the Dockerfile path relative to the context.
	// Defaults to "Dockerfile".
	Dockerfile string

	// Tags to apply to the built image.
	Tags []string

	// BuildArgs are passed to the build.
	BuildArgs map[string]*string

	// NoCache disables the build cache.
	NoCache bool
}

// Builder builds images against a Docker engine.
type Builder struct {
	client *client.Client
	logger log.Logger
}

// NewBuilder creates a Builder using the given Docker client.
func NewBuilder(cli *client.Client, logger log.Logger) *Builder {
	if logger == nil {
		logger = log.GetDefaultLogger().WithComponent("build")
	}
	return &Builder{client: cli, logger: logger}
}

// Build tars the context, submits the build and consumes the output stream.
// A daemon-side build failure surfaces as an error carrying the daemon's
// message (for example a missing npm build script).
func (b *Builder) Build(ctx context.Context, opts Options) error {
	if opts.ContextDir == "" {
		return fmt.Errorf("build context directory is required")
	}
	dockerfile := opts.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	b.logger.Info("Building image",
		log.Str("context", opts.ContextDir),
		log.Str("dockerfile", dockerfile),
		log.Str("tags", strings.Join(opts.Tags, ",")))

	buildCtx, err := archive.TarWithOptions(opts.ContextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to tar build context %s: %w", opts.ContextDir, err)
	}
	defer buildCtx.Close()

	resp, err := b.client.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       opts.Tags,
		Dockerfile: dockerfile,
		BuildArgs:  opts.BuildArgs,
		NoCache:    opts.NoCache,
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to start image build: %w", err)
	}
	defer resp.Body.Close()

	if err := b.consumeBuildOutput(resp.Body); err != nil {
		return fmt.Errorf("image build failed: %w", err)
	}

	b.logger.Info("Image build complete", log.Str("tags", strings.Join(opts.Tags, ",")))
	return nil
}

// buildMessage is one line of the daemon's JSON build stream.
type buildMessage struct {
	Stream      string `json:"stream"`
	ErrorMsg    string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// consumeBuildOutput drains the build stream, logging progress and
// returning the first error the daemon reports.
func (b *Builder) consumeBuildOutput(body io.Reader) error {
	decoder := json.NewDecoder(body)
	for {
		var msg buildMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read build output: %w", err)
		}

		if msg.ErrorMsg != "" {
			if msg.ErrorDetail.Message != "" {
				return errors.New(msg.ErrorDetail.Message)
			}
			return errors.New(msg.ErrorMsg)
		}
		if line := strings.TrimSpace(msg.Stream); line != "" {
			b.logger.Debug(line)
		}
	}
}
