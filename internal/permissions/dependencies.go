package permissions

import (
	"errors"
	"fmt"
)

// ErrCircularDependency signals that a dependency graph contains a cycle.
var ErrCircularDependency = errors.New("permission: circular dependency detected")

// ResolveDependencies returns the full dependency chain for the specified permission.
func ResolveDependencies(token Token) ([]Token, error) {
	perms := GetAll()

	root, ok := perms[token]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPermission, token)
	}

	visited := make(map[Token]bool, len(perms))
	recStack := make(map[Token]bool, len(perms))
	var resolved []Token

	var walk func(Token) error
	walk = func(current Token) error {
		perm, ok := perms[current]
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownPermission, current)
		}
		if recStack[current] {
			return fmt.Errorf("%w at %s", ErrCircularDependency, current)
		}
		if visited[current] {
			return nil
		}

		recStack[current] = true
		for _, dep := range perm.DependsOn {
			if err := walk(dep); err != nil {
				return err
			}
		}
		recStack[current] = false
		visited[current] = true

		if current != token {
			resolved = append(resolved, current)
		}

		return nil
	}

	for _, dep := range root.DependsOn {
		if err := walk(dep); err != nil {
			return nil, err
		}
	}

	return resolved, nil
}
