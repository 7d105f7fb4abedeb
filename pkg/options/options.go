// Package options holds what every config section shares: the flag prefix
// rule and the aggregated validation.
package options

import (
	"strings"

	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// IOptions is one config section.
type IOptions interface {
	Validate() []error
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// Join turns prefixes into a dotted flag prefix, "" when there are none.
func Join(prefixes ...string) string {
	if len(prefixes) == 0 {
		return ""
	}
	return strings.Join(prefixes, ".") + "."
}

// ValidateAll validates every section and folds the errors into one
// aggregate, nil when all sections are valid.
func ValidateAll(sections ...IOptions) error {
	var errs []error
	for _, s := range sections {
		errs = append(errs, s.Validate()...)
	}
	return utilerrors.NewAggregate(errs)
}
