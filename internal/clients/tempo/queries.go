package tempo

import "fmt"

// BuildServiceQuery constructs a TraceQL query to find all traces involving a specific service.
func BuildServiceQuery(serviceName string) string {
	if serviceName == "" {
		return "{}"
	}
	return fmt.Sprintf("{ resource.service.name = \"%s\" }", serviceName)
}
