package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gantryhq/gantry/pkg/deployer"
	"github.com/gantryhq/gantry/pkg/dockerfile"
	"github.com/gantryhq/gantry/pkg/lint"
	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/runner/docker"
	"github.com/gantryhq/gantry/pkg/store"
)

// newDockerRunner creates a Docker runner from the gantryfile settings.
func newDockerRunner() (*docker.Runner, error) {
	return docker.NewRunnerWithConfig(
		log.GetDefaultLogger().WithComponent("docker-runner"),
		activeConfig().RunnerConfig())
}

// newStore opens the badger-backed state store under the data directory.
func newStore() (store.Store, error) {
	st := store.NewBadgerStore(log.GetDefaultLogger().WithComponent("store"))
	if err := st.Open(activeConfig().StorePath()); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return st, nil
}

// newDeployer wires a deployer against the local Docker engine and the
// state store. The returned cleanup closes the store.
func newDeployer() (*deployer.Deployer, *docker.Runner, func(), error) {
	r, err := newDockerRunner()
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := newStore()
	if err != nil {
		return nil, nil, nil, err
	}
	d := deployer.New(r, r, st, log.GetDefaultLogger().WithComponent("deployer"))
	return d, r, func() { st.Close() }, nil
}

// parseBuildSpecs parses repeated image=dir flags into lint build contexts.
// Each context's Dockerfile is read from <dir>/Dockerfile.
func parseBuildSpecs(specs []string) (map[string]lint.BuildContext, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	contexts := make(map[string]lint.BuildContext, len(specs))
	for _, spec := range specs {
		image, dir, found := strings.Cut(spec, "=")
		if !found || image == "" || dir == "" {
			return nil, fmt.Errorf("invalid build spec %q, expected image=dir", spec)
		}
		df, err := dockerfile.ParseFile(filepath.Join(dir, "Dockerfile"))
		if err != nil {
			return nil, fmt.Errorf("build spec %q: %w", spec, err)
		}
		contexts[image] = lint.BuildContext{Dir: dir, Dockerfile: df}
	}
	return contexts, nil
}
