// Package store persists gantry's record of applied resources and running
// instances across CLI invocations.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Resource types stored by gantry.
const (
	ResourceTypeConfigMap = "configmap"
	ResourceTypeService   = "service"
	ResourceTypeWorkload  = "workload"
	ResourceTypeClaim     = "claim"
	ResourceTypeInstance  = "instance"
)

// ErrNotFound is returned when a resource does not exist in the store.
var ErrNotFound = errors.New("resource not found")

// ErrAlreadyExists is returned when creating a resource that already exists.
var ErrAlreadyExists = errors.New("resource already exists")

// Store is the state storage interface.
type Store interface {
	// Open initializes the store at the given path.
	Open(path string) error

	// Close releases store resources.
	Close() error

	// Create stores a new resource; ErrAlreadyExists if present.
	Create(ctx context.Context, resourceType, namespace, name string, resource interface{}) error

	// Get loads a resource into the given value; ErrNotFound if absent.
	Get(ctx context.Context, resourceType, namespace, name string, resource interface{}) error

	// List loads all resources of a type in a namespace into a slice pointer.
	List(ctx context.Context, resourceType, namespace string, into interface{}) error

	// Update replaces an existing resource; ErrNotFound if absent.
	Update(ctx context.Context, resourceType, namespace, name string, resource interface{}) error

	// Delete removes a resource; ErrNotFound if absent.
	Delete(ctx context.Context, resourceType, namespace, name string) error
}

// MakeKey builds the canonical storage key for a resource.
func MakeKey(resourceType, namespace, name string) []byte {
	return []byte(fmt.Sprintf("gantry/%s/%s/%s", resourceType, namespace, name))
}

// MakePrefix builds the key prefix for listing a resource type in a namespace.
func MakePrefix(resourceType, namespace string) []byte {
	return []byte(fmt.Sprintf("gantry/%s/%s/", resourceType, namespace))
}
