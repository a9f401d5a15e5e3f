package stage

import (
	"fmt"
	"strings"
)

// Health summarizes whether a stage can run on this host.
type Health struct {
	Name    string
	Ready   bool
	Detail  string
	Missing []string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// CheckTools reports st as unhealthy when any of its tools cannot be found.
func CheckTools(st Stage, lookup func(tool string) error) Health {
	var missing []string
	for _, tool := range st.Tools() {
		if err := lookup(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) == 0 {
		return Healthy(st.Name())
	}
	h := Unhealthy(st.Name(), fmt.Sprintf("missing tools: %s", strings.Join(missing, ", ")))
	h.Missing = missing
	return h
}
