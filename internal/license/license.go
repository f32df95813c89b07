// Package license decides which credential and limits apply to a run
// based on the subscription package of the studio.
package license

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maauso/promptstudio/internal/generator"
)

// Package is a subscription tier.
type Package string

// Known packages.
const (
	PackageFree Package = "free"
	PackagePro1 Package = "pro1"
	PackagePro9 Package = "pro9"
)

// ErrUnknownPackage is returned when parsing an unknown package name.
var ErrUnknownPackage = errors.New("license: unknown package")

// ErrPackageLimit is returned when a run asks for more than the package allows.
var ErrPackageLimit = errors.New("license: not available on this package")

// ParsePackage parses a package name case-insensitively.
func ParsePackage(s string) (Package, error) {
	p := Package(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PackageFree, PackagePro1, PackagePro9:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPackage, s)
}

// Paid reports whether the package uses the server credential.
func (p Package) Paid() bool {
	return p == PackagePro1 || p == PackagePro9
}

// Resolver returns the package in effect at call time.
type Resolver interface {
	Package(ctx context.Context) (Package, error)
}

// Static is a Resolver for a package fixed at startup.
type Static struct {
	pkg Package
}

// NewStatic creates a resolver for pkg.
func NewStatic(pkg Package) *Static {
	return &Static{pkg: pkg}
}

// Package returns the configured package.
func (s *Static) Package(context.Context) (Package, error) {
	return s.pkg, nil
}

// Grant is what a run is allowed to do.
type Grant struct {
	Package    Package
	Credential string
	// MaxWidth is the widest parallel run allowed; 0 means sequential only.
	MaxWidth      int
	MaxResolution generator.Resolution
}

// Policy turns a package into a Grant.
type Policy struct {
	resolver  Resolver
	serverKey string
}

// NewPolicy creates a policy that hands paid packages the server key.
func NewPolicy(resolver Resolver, serverKey string) *Policy {
	return &Policy{resolver: resolver, serverKey: serverKey}
}

// Grant resolves the package and picks the credential for it.
// The free package needs the user's own key; a missing key is reported as
// generator.ErrCredential so callers can ask for one.
func (p *Policy) Grant(ctx context.Context, userKey string) (Grant, error) {
	pkg, err := p.resolver.Package(ctx)
	if err != nil {
		return Grant{}, fmt.Errorf("license: resolve package: %w", err)
	}

	userKey = strings.TrimSpace(userKey)
	if !pkg.Paid() {
		if userKey == "" {
			return Grant{}, &generator.Error{
				Kind: generator.ErrCredential,
				Op:   "license",
				Err:  errors.New("the free package needs your own Google API key"),
			}
		}
		return Grant{
			Package:       pkg,
			Credential:    userKey,
			MaxWidth:      0,
			MaxResolution: generator.Resolution720p,
		}, nil
	}

	key := p.serverKey
	if key == "" {
		key = userKey
	}
	if key == "" {
		return Grant{}, &generator.Error{Kind: generator.ErrCredential, Op: "license", Err: errors.New("no server key configured")}
	}
	return Grant{
		Package:       pkg,
		Credential:    key,
		MaxWidth:      5,
		MaxResolution: generator.Resolution1080p,
	}, nil
}

// Check reports ErrPackageLimit when the requested width or resolution
// exceeds the grant.
func (g Grant) Check(width int, res generator.Resolution) error {
	if width > g.MaxWidth {
		return fmt.Errorf("%w: %d parallel lanes on %s", ErrPackageLimit, width, g.Package)
	}
	if res == generator.Resolution1080p && g.MaxResolution != generator.Resolution1080p {
		return fmt.Errorf("%w: %s on %s", ErrPackageLimit, res, g.Package)
	}
	return nil
}
