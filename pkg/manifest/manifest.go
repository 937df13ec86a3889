// Package manifest loads Kubernetes-style YAML manifests into typed objects
// and indexes them for cross-resource validation and deployment.
package manifest

import (
	"fmt"
	"sort"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

// Supported object kinds.
const (
	KindConfigMap             = "ConfigMap"
	KindService               = "Service"
	KindDeployment            = "Deployment"
	KindPersistentVolumeClaim = "PersistentVolumeClaim"
)

// DefaultNamespace is assumed for objects that do not set metadata.namespace.
const DefaultNamespace = "default"

// ObjectRef identifies an object within a Set.
type ObjectRef struct {
	Kind      string
	Namespace string
	Name      string
}

// String returns kind/namespace/name.
func (r ObjectRef) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Kind, r.Namespace, r.Name)
}

// Source records where an object was parsed from.
type Source struct {
	// File is the path the object was read from (empty for in-memory sets).
	File string

	// Doc is the zero-based document index within the file.
	Doc int

	// Line is the starting line of the document within the file.
	Line int
}

// Set is an indexed collection of manifest objects.
type Set struct {
	configMaps  map[ObjectRef]*corev1.ConfigMap
	services    map[ObjectRef]*corev1.Service
	deployments map[ObjectRef]*appsv1.Deployment
	claims      map[ObjectRef]*corev1.PersistentVolumeClaim
	sources     map[ObjectRef]Source
	order       []ObjectRef

	// defaultNamespace is stamped onto objects added without one.
	defaultNamespace string
}

// NewSet creates an empty Set filing namespace-less objects under "default".
func NewSet() *Set {
	return NewSetWithNamespace(DefaultNamespace)
}

// NewSetWithNamespace creates an empty Set filing namespace-less objects
// under the given namespace.
func NewSetWithNamespace(namespace string) *Set {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Set{
		configMaps:       make(map[ObjectRef]*corev1.ConfigMap),
		services:         make(map[ObjectRef]*corev1.Service),
		deployments:      make(map[ObjectRef]*appsv1.Deployment),
		claims:           make(map[ObjectRef]*corev1.PersistentVolumeClaim),
		sources:          make(map[ObjectRef]Source),
		defaultNamespace: namespace,
	}
}

// Len returns the number of objects in the set.
func (s *Set) Len() int {
	return len(s.order)
}

// Refs returns all object refs in input order.
func (s *Set) Refs() []ObjectRef {
	refs := make([]ObjectRef, len(s.order))
	copy(refs, s.order)
	return refs
}

// Source returns where the object was parsed from.
func (s *Set) Source(ref ObjectRef) (Source, bool) {
	src, ok := s.sources[ref]
	return src, ok
}

// AddConfigMap adds a configmap to the set.
func (s *Set) AddConfigMap(cm *corev1.ConfigMap, src Source) error {
	s.stampNamespace(&cm.Namespace)
	ref := refFor(KindConfigMap, cm.Namespace, cm.Name)
	if err := s.track(ref, src); err != nil {
		return err
	}
	s.configMaps[ref] = cm
	return nil
}

// AddService adds a service to the set.
func (s *Set) AddService(svc *corev1.Service, src Source) error {
	s.stampNamespace(&svc.Namespace)
	ref := refFor(KindService, svc.Namespace, svc.Name)
	if err := s.track(ref, src); err != nil {
		return err
	}
	s.services[ref] = svc
	return nil
}

// AddDeployment adds a deployment to the set.
func (s *Set) AddDeployment(dep *appsv1.Deployment, src Source) error {
	s.stampNamespace(&dep.Namespace)
	ref := refFor(KindDeployment, dep.Namespace, dep.Name)
	if err := s.track(ref, src); err != nil {
		return err
	}
	s.deployments[ref] = dep
	return nil
}

// AddClaim adds a persistent volume claim to the set.
func (s *Set) AddClaim(pvc *corev1.PersistentVolumeClaim, src Source) error {
	s.stampNamespace(&pvc.Namespace)
	ref := refFor(KindPersistentVolumeClaim, pvc.Namespace, pvc.Name)
	if err := s.track(ref, src); err != nil {
		return err
	}
	s.claims[ref] = pvc
	return nil
}

// ConfigMap looks up a configmap by namespace and name.
func (s *Set) ConfigMap(namespace, name string) (*corev1.ConfigMap, bool) {
	cm, ok := s.configMaps[refFor(KindConfigMap, namespace, name)]
	return cm, ok
}

// Service looks up a service by namespace and name.
func (s *Set) Service(namespace, name string) (*corev1.Service, bool) {
	svc, ok := s.services[refFor(KindService, namespace, name)]
	return svc, ok
}

// Deployment looks up a deployment by namespace and name.
func (s *Set) Deployment(namespace, name string) (*appsv1.Deployment, bool) {
	dep, ok := s.deployments[refFor(KindDeployment, namespace, name)]
	return dep, ok
}

// Claim looks up a persistent volume claim by namespace and name.
func (s *Set) Claim(namespace, name string) (*corev1.PersistentVolumeClaim, bool) {
	pvc, ok := s.claims[refFor(KindPersistentVolumeClaim, namespace, name)]
	return pvc, ok
}

// ConfigMaps returns all configmaps sorted by namespace/name.
func (s *Set) ConfigMaps() []*corev1.ConfigMap {
	out := make([]*corev1.ConfigMap, 0, len(s.configMaps))
	for _, cm := range s.configMaps {
		out = append(out, cm)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Namespace+"/"+out[i].Name < out[j].Namespace+"/"+out[j].Name
	})
	return out
}

// Services returns all services sorted by namespace/name.
func (s *Set) Services() []*corev1.Service {
	out := make([]*corev1.Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Namespace+"/"+out[i].Name < out[j].Namespace+"/"+out[j].Name
	})
	return out
}

// Deployments returns all deployments sorted by namespace/name.
func (s *Set) Deployments() []*appsv1.Deployment {
	out := make([]*appsv1.Deployment, 0, len(s.deployments))
	for _, dep := range s.deployments {
		out = append(out, dep)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Namespace+"/"+out[i].Name < out[j].Namespace+"/"+out[j].Name
	})
	return out
}

// Claims returns all persistent volume claims sorted by namespace/name.
func (s *Set) Claims() []*corev1.PersistentVolumeClaim {
	out := make([]*corev1.PersistentVolumeClaim, 0, len(s.claims))
	for _, pvc := range s.claims {
		out = append(out, pvc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Namespace+"/"+out[i].Name < out[j].Namespace+"/"+out[j].Name
	})
	return out
}

// SelectDeployments returns the deployments whose pod template labels match
// the given selector. An empty selector matches nothing.
func (s *Set) SelectDeployments(namespace string, selector map[string]string) []*appsv1.Deployment {
	if len(selector) == 0 {
		return nil
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	var out []*appsv1.Deployment
	for _, dep := range s.Deployments() {
		if normalizeNamespace(dep.Namespace) != namespace {
			continue
		}
		if labelsMatch(selector, dep.Spec.Template.Labels) {
			out = append(out, dep)
		}
	}
	return out
}

// labelsMatch reports whether every selector key/value is present in labels.
func labelsMatch(selector, labels map[string]string) bool {
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}

func (s *Set) stampNamespace(namespace *string) {
	if *namespace == "" {
		*namespace = s.defaultNamespace
	}
}

func (s *Set) track(ref ObjectRef, src Source) error {
	if _, exists := s.sources[ref]; exists {
		return fmt.Errorf("duplicate object %s (already defined)", ref)
	}
	s.sources[ref] = src
	s.order = append(s.order, ref)
	return nil
}

func refFor(kind, namespace, name string) ObjectRef {
	return ObjectRef{Kind: kind, Namespace: normalizeNamespace(namespace), Name: name}
}

func normalizeNamespace(namespace string) string {
	if namespace == "" {
		return DefaultNamespace
	}
	return namespace
}
