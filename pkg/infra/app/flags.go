package app

import (
	"github.com/spf13/pflag"
)

// NamedFlagSets groups flag sets by section, keeping the order in which
// sections were first requested.
type NamedFlagSets struct {
	Order    []string
	FlagSets map[string]*pflag.FlagSet
}

// FlagSet returns the flag set for name, creating it on first use.
func (nfs *NamedFlagSets) FlagSet(name string) *pflag.FlagSet {
	if nfs.FlagSets == nil {
		nfs.FlagSets = map[string]*pflag.FlagSet{}
	}
	if _, ok := nfs.FlagSets[name]; !ok {
		nfs.FlagSets[name] = pflag.NewFlagSet(name, pflag.ExitOnError)
		nfs.Order = append(nfs.Order, name)
	}
	return nfs.FlagSets[name]
}

// CliOptions is implemented by the options of every command built with App.
type CliOptions interface {
	// Flags returns the command flags grouped by section.
	Flags() NamedFlagSets
	// Complete fills derived and defaulted values.
	Complete() error
	// Validate reports invalid options.
	Validate() error
}
