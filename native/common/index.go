package common

import (
	"errors"
	"fmt"
)

// Store is the subset of the state manager the native modules persist through.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// RoleView answers capability checks.
type RoleView interface {
	HasRole(role string, addr [20]byte) bool
}

// ListLoad returns the enumeration stored under key.
func ListLoad[T comparable](store Store, key []byte) ([]T, error) {
	var list []T
	if _, err := store.KVGet(key, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ListAppend adds v to the enumeration stored under key. Values already
// present are ignored.
func ListAppend[T comparable](store Store, key []byte, v T) error {
	list, err := ListLoad[T](store, key)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing == v {
			return nil
		}
	}
	return store.KVPut(key, append(list, v))
}

// ListRemove deletes v by moving the last element into its position, the same
// ordering rule used by enumerable token registries.
func ListRemove[T comparable](store Store, key []byte, v T) (bool, error) {
	list, err := ListLoad[T](store, key)
	if err != nil {
		return false, err
	}
	for i, existing := range list {
		if existing != v {
			continue
		}
		last := len(list) - 1
		list[i] = list[last]
		list = list[:last]
		if len(list) == 0 {
			return true, store.KVDelete(key)
		}
		return true, store.KVPut(key, list)
	}
	return false, nil
}

// ListContains reports whether v is enumerated under key.
func ListContains[T comparable](store Store, key []byte, v T) (bool, error) {
	list, err := ListLoad[T](store, key)
	if err != nil {
		return false, err
	}
	for _, existing := range list {
		if existing == v {
			return true, nil
		}
	}
	return false, nil
}

// ListAt returns the element at index.
func ListAt[T comparable](store Store, key []byte, index uint64) (T, error) {
	var zero T
	list, err := ListLoad[T](store, key)
	if err != nil {
		return zero, err
	}
	if index >= uint64(len(list)) {
		return zero, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfBounds, index, len(list))
	}
	return list[index], nil
}

// ListLen returns the size of the enumeration stored under key.
func ListLen[T comparable](store Store, key []byte) (uint64, error) {
	list, err := ListLoad[T](store, key)
	if err != nil {
		return 0, err
	}
	return uint64(len(list)), nil
}

var ErrIndexOutOfBounds = errors.New("index out of bounds")
