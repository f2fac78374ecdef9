// Package policy restricts which element factories a scenario may build.
// CI suites use it to keep feature files from reaching the filesystem or
// network through elements the harness cannot sandbox.
package policy

import "fmt"

// Policy is a deny list of element factory names. The zero value allows
// everything.
type Policy struct {
	DeniedFactories []string `yaml:"denied_factories,omitempty" json:"denied_factories,omitempty" jsonschema:"description=Element factories scenarios may not instantiate"`
}

// Check rejects denied factories.
func (p Policy) Check(factory string) error {
	for _, denied := range p.DeniedFactories {
		if factory == denied {
			return fmt.Errorf("element factory %q is denied by policy", factory)
		}
	}
	return nil
}

// Empty reports whether the policy denies nothing.
func (p Policy) Empty() bool { return len(p.DeniedFactories) == 0 }
