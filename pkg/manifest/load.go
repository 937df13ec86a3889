package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	yamlv3 "gopkg.in/yaml.v3"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	sigsyaml "sigs.k8s.io/yaml"
)

// typeMeta is the minimal header decoded to route a document to its type.
type typeMeta struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
}

// Load reads manifests from the given paths. Directories are walked for
// .yaml/.yml files; all parsed objects land in a single Set.
func Load(paths ...string) (*Set, error) {
	return LoadWithNamespace("", paths...)
}

// LoadWithNamespace is Load with namespace-less objects filed under the
// given namespace instead of "default".
func LoadWithNamespace(namespace string, paths ...string) (*Set, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no manifest paths given")
	}

	set := NewSetWithNamespace(namespace)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to access %s: %w", path, err)
		}
		if info.IsDir() {
			if err := loadDir(set, path); err != nil {
				return nil, err
			}
			continue
		}
		if err := loadFile(set, path); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// ParseBytes parses multi-document YAML into a fresh Set. The source name is
// used in errors and recorded object sources.
func ParseBytes(data []byte, source string) (*Set, error) {
	set := NewSet()
	if err := parseInto(set, data, source); err != nil {
		return nil, err
	}
	return set, nil
}

func loadDir(set *Set, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !hasYAMLExtension(path) {
			return nil
		}
		return loadFile(set, path)
	})
}

func loadFile(set *Set, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return parseInto(set, data, path)
}

// parseInto splits data into YAML documents and decodes each into its typed
// object. Unknown kinds and unknown fields are errors so that a typo in a
// manifest never silently deploys something else.
func parseInto(set *Set, data []byte, source string) error {
	decoder := yamlv3.NewDecoder(strings.NewReader(string(data)))

	for doc := 0; ; doc++ {
		var node yamlv3.Node
		err := decoder.Decode(&node)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: document %d: invalid YAML: %w", source, doc, err)
		}
		if node.Kind == 0 || isEmptyDocument(&node) {
			continue
		}

		raw, err := yamlv3.Marshal(&node)
		if err != nil {
			return fmt.Errorf("%s: document %d: %w", source, doc, err)
		}

		var meta typeMeta
		if err := yamlv3.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("%s: document %d: %w", source, doc, err)
		}
		if meta.Kind == "" {
			return fmt.Errorf("%s: document %d: missing kind", source, doc)
		}

		src := Source{File: source, Doc: doc, Line: node.Line}
		if err := decodeObject(set, meta.Kind, raw, src); err != nil {
			return fmt.Errorf("%s: document %d: %w", source, doc, err)
		}
	}
}

func decodeObject(set *Set, kind string, raw []byte, src Source) error {
	switch kind {
	case KindConfigMap:
		var cm corev1.ConfigMap
		if err := sigsyaml.UnmarshalStrict(raw, &cm); err != nil {
			return fmt.Errorf("invalid ConfigMap: %w", err)
		}
		if cm.Name == "" {
			return fmt.Errorf("ConfigMap is missing metadata.name")
		}
		return set.AddConfigMap(&cm, src)

	case KindService:
		var svc corev1.Service
		if err := sigsyaml.UnmarshalStrict(raw, &svc); err != nil {
			return fmt.Errorf("invalid Service: %w", err)
		}
		if svc.Name == "" {
			return fmt.Errorf("Service is missing metadata.name")
		}
		return set.AddService(&svc, src)

	case KindDeployment:
		var dep appsv1.Deployment
		if err := sigsyaml.UnmarshalStrict(raw, &dep); err != nil {
			return fmt.Errorf("invalid Deployment: %w", err)
		}
		if dep.Name == "" {
			return fmt.Errorf("Deployment is missing metadata.name")
		}
		return set.AddDeployment(&dep, src)

	case KindPersistentVolumeClaim:
		var pvc corev1.PersistentVolumeClaim
		if err := sigsyaml.UnmarshalStrict(raw, &pvc); err != nil {
			return fmt.Errorf("invalid PersistentVolumeClaim: %w", err)
		}
		if pvc.Name == "" {
			return fmt.Errorf("PersistentVolumeClaim is missing metadata.name")
		}
		return set.AddClaim(&pvc, src)

	default:
		return fmt.Errorf("unsupported kind %q", kind)
	}
}

func isEmptyDocument(node *yamlv3.Node) bool {
	if node.Kind != yamlv3.DocumentNode {
		return false
	}
	for _, c := range node.Content {
		if c.Kind != yamlv3.ScalarNode || c.Tag != "!!null" {
			return false
		}
	}
	return true
}

// hasYAMLExtension checks if a file has a YAML extension.
func hasYAMLExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}
