package registry

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

var stringType = reflect.TypeOf("")

type rankedMethod struct {
	method  *Method
	matched int
	text    int
}

// SelectOverload picks the action called name that best consumes the
// supplied argument names. Every parameter without a default must be
// supplied. Survivors are ranked by the number of supplied parameters and
// then by how many of those are plain strings; ties keep registration
// order.
func SelectOverload(candidates []*Method, name string, supplied []string) (*Method, bool) {
	var ranked []rankedMethod
	for _, m := range candidates {
		if !strings.EqualFold(m.Name, name) {
			continue
		}
		r := rankedMethod{method: m}
		usable := true
		for _, p := range m.Params {
			if !containsFold(supplied, p.Name) {
				if !p.HasDefault {
					usable = false
					break
				}
				continue
			}
			r.matched++
			if p.Type == stringType {
				r.text++
			}
		}
		if usable {
			ranked = append(ranked, r)
		}
	}
	if len(ranked) == 0 {
		return nil, false
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].matched != ranked[j].matched {
			return ranked[i].matched > ranked[j].matched
		}
		return ranked[i].text > ranked[j].text
	})
	return ranked[0].method, true
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// DescribeMiss explains why no overload called name was selected: it lists
// the same-named candidates with their parameters, or every known action
// name when none shares the name.
func DescribeMiss(candidates []*Method, name string) string {
	var same []string
	known := make(map[string]struct{})
	for _, m := range candidates {
		known[m.Name] = struct{}{}
		if strings.EqualFold(m.Name, name) {
			same = append(same, m.String())
		}
	}
	if len(same) > 0 {
		return fmt.Sprintf("candidate methods are: %s", strings.Join(same, "; "))
	}
	if len(known) == 0 {
		return "no methods are registered for this section"
	}
	names := make([]string, 0, len(known))
	for n := range known {
		names = append(names, n)
	}
	sort.Strings(names)
	return fmt.Sprintf("no method called %q exists; known methods are: %s", name, strings.Join(names, ", "))
}
