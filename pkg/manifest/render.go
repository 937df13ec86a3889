package manifest

import (
	"fmt"
	"io"

	sigsyaml "sigs.k8s.io/yaml"
)

// Render writes the set back out as normalized multi-document YAML, objects
// in their original input order. Inputs are never rewritten in place; this is
// an output path only.
func (s *Set) Render(w io.Writer) error {
	for i, ref := range s.order {
		var obj interface{}
		switch ref.Kind {
		case KindConfigMap:
			obj = s.configMaps[ref]
		case KindService:
			obj = s.services[ref]
		case KindDeployment:
			obj = s.deployments[ref]
		case KindPersistentVolumeClaim:
			obj = s.claims[ref]
		}

		data, err := sigsyaml.Marshal(obj)
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", ref, err)
		}
		if i > 0 {
			if _, err := io.WriteString(w, "---\n"); err != nil {
				return err
			}
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}
