// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package route

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Destination is a Service and port traffic is routed to.
type Destination struct {
	Host string
	Port uint32
}

func (d Destination) String() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// ServiceName returns the name of the destination Service, the host being either a short name or
// a cluster-internal DNS name.
func (d Destination) ServiceName() string {
	return strings.SplitN(d.Host, ".", 2)[0]
}

// Rule routes the requests whose path starts with Prefix. An empty Prefix makes the rule the catch-all.
type Rule struct {
	Prefix      string
	Destination Destination
}

// IsCatchAll returns true for the rule matching every request.
func (r Rule) IsCatchAll() bool {
	return r.Prefix == ""
}

// Table is a normalized, ordered list of routing rules: prefix rules first, longest prefix first,
// then exactly one catch-all. The first matching rule wins.
type Table struct {
	rules []Rule
}

// NewTable normalizes the given rules into a Table, whatever their declaration order.
func NewTable(rules ...Rule) (Table, error) {
	var prefixed []Rule
	var catchAll []Rule
	seen := map[string]bool{}
	for _, r := range rules {
		if r.Destination.Host == "" || r.Destination.Port == 0 {
			return Table{}, errors.Errorf("rule %q has an incomplete destination %s", r.Prefix, r.Destination)
		}
		if r.IsCatchAll() {
			catchAll = append(catchAll, r)
			continue
		}
		if !strings.HasPrefix(r.Prefix, "/") {
			return Table{}, errors.Errorf("prefix %q must start with /", r.Prefix)
		}
		if seen[r.Prefix] {
			return Table{}, errors.Errorf("prefix %q is routed more than once", r.Prefix)
		}
		seen[r.Prefix] = true
		prefixed = append(prefixed, r)
	}
	if len(catchAll) != 1 {
		return Table{}, errors.Errorf("a routing table needs exactly one catch-all rule, got %d", len(catchAll))
	}
	// a shorter prefix evaluated first would shadow the longer ones it contains
	sort.SliceStable(prefixed, func(i, j int) bool {
		return len(prefixed[i].Prefix) > len(prefixed[j].Prefix)
	})
	return Table{rules: append(prefixed, catchAll[0])}, nil
}

// Rules returns a copy of the normalized rules.
func (t Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Resolve returns the destination of a request path.
func (t Table) Resolve(path string) (Destination, bool) {
	for _, r := range t.rules {
		if r.IsCatchAll() || strings.HasPrefix(path, r.Prefix) {
			return r.Destination, true
		}
	}
	return Destination{}, false
}

// Destinations returns the distinct destinations of the table, in rule order.
func (t Table) Destinations() []Destination {
	var out []Destination
	seen := map[Destination]bool{}
	for _, r := range t.rules {
		if !seen[r.Destination] {
			seen[r.Destination] = true
			out = append(out, r.Destination)
		}
	}
	return out
}
