// rsgis is the command line front end for the remote sensing library:
// classifier training and application, spectral indices, vector
// rasterisation and bulk downloads.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
