// Command vxsim drives the broker against the built-in engine simulator.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
