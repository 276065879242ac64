package main

import "strings"

// routeLabel collapses ids out of a path so metric labels stay bounded.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" && (parts[1] == "runs" || parts[1] == "problems") && parts[2] != "random" {
		parts[2] = "{id}"
	}
	return "/" + strings.Join(parts, "/")
}
