// Command navgated runs the navigation gate daemon and its management CLI.
package main

import "os"

const (
	version = "0.1.0-dev"
	appName = "navgated"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
