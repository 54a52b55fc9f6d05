package tree

import "strings"

// Filter selects a subset of discovered versions or variants.
// The zero value is the "all" filter: it matches everything.
// A non-nil subset matches by exact string equality only.
type Filter struct {
	subset map[string]bool
}

// ParseFilter builds a Filter from a comma-separated CLI argument.
// An empty argument or the literal "." selects everything.
func ParseFilter(arg string) Filter {
	arg = strings.TrimSpace(arg)
	if arg == "" || arg == "." {
		return Filter{}
	}

	subset := make(map[string]bool)
	for _, item := range strings.Split(arg, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			subset[item] = true
		}
	}
	if len(subset) == 0 {
		return Filter{}
	}
	return Filter{subset: subset}
}

// All reports whether the filter matches everything.
func (f Filter) All() bool {
	return f.subset == nil
}

// Match reports whether item is selected.
func (f Filter) Match(item string) bool {
	if f.subset == nil {
		return true
	}
	return f.subset[item]
}
